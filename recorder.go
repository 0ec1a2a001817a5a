package ntrc

import (
	"context"
	"sync"
)

// Recorder receives enter and exit events from an instrumentation boundary,
// and assembles them into trace trees, one per logical execution.
//
// The instrumentation boundary must call EnterMethod once per call, before any
// nested calls it makes, and exactly one of ExitWithReturn or ExitWithError
// per entry, even on failure, in strict LIFO order. Templates must already be
// resolved before the signature is passed to EnterMethod.
//
// Implementations are expected to be safe for concurrent use by multiple
// executions, and must never panic, even when the calls they receive are
// malformed.
type Recorder interface {
	// IsActive should return true if the recorder will capture anything at
	// all. Instrumentation uses it to skip all work, including parameter
	// rendering and template resolution, when tracing is disabled.
	IsActive() bool

	// EnterMethod should record the start of a call in the execution
	// identified by the context.
	EnterMethod(ctx context.Context, sig Signature)

	// ExitWithReturn should record the normal completion of the most recently
	// entered call in the execution identified by the context. An exit with
	// no matching entry should be ignored.
	ExitWithReturn(ctx context.Context, rendered string)

	// ExitWithError should record the completion of the most recently entered
	// call with the given error. If errorContext is non-empty, it should be
	// attached to the call's signature. An exit with no matching entry should
	// be ignored.
	ExitWithError(ctx context.Context, err error, errorContext string)

	// CaptureTrace should return an immutable tree of every completed root
	// call in the execution identified by the context. It should not clear
	// any state.
	CaptureTrace(ctx context.Context) *Tree

	// Reset should discard all state for the execution identified by the
	// context, as if it never ran.
	Reset(ctx context.Context)

	// Snapshot should return a handle that can isolate or transplant the
	// trace state of an execution.
	Snapshot() Snapshot
}

//
//
//

// Narrative is the default recorder. It keeps one stack per execution, and
// applies the capture policy defined by its level to every call.
//
// Narrative is safe for concurrent use. The map of executions to stacks is
// protected by a mutex, but each stack is only ever touched by its own
// execution, so executions never contend on anything but that map.
type Narrative struct {
	level *LevelVar

	mtx    sync.Mutex
	stacks map[ExecutionID]*stack
}

var _ Recorder = (*Narrative)(nil)

// NewNarrative returns a recorder which applies the capture policy of the
// given level. The level may be changed at any time, and takes effect on the
// next call. If level is nil, a new LevelVar is used, with LevelDetail.
func NewNarrative(level *LevelVar) *Narrative {
	if level == nil {
		level = &LevelVar{}
	}
	return &Narrative{
		level:  level,
		stacks: map[ExecutionID]*stack{},
	}
}

// Level returns the level var used by the recorder.
func (n *Narrative) Level() *LevelVar {
	return n.level
}

// IsActive implements Recorder.
func (n *Narrative) IsActive() bool {
	return n.level.Level().Enabled(LevelErrors)
}

// EnterMethod implements Recorder.
func (n *Narrative) EnterMethod(ctx context.Context, sig Signature) {
	level := n.level.Level()
	if !level.Enabled(LevelErrors) {
		return
	}

	s, ok := n.stackFor(ctx, true)
	if !ok {
		return
	}

	if !level.Enabled(LevelDetail) {
		sig = sig.withSuppressedValues()
	}

	s.push(sig)
}

// ExitWithReturn implements Recorder.
func (n *Narrative) ExitWithReturn(ctx context.Context, rendered string) {
	s, ok := n.stackFor(ctx, false)
	if !ok || s.isEmpty() {
		return
	}

	switch level := n.level.Level(); {
	case !level.Enabled(LevelErrors):
		s.discard()

	case level == LevelErrors:
		s.discard() // successful calls produce no record

	case level == LevelSummary:
		var (
			isRoot = s.depth() == 1
			isLeaf = len(s.peek().children) <= 0
		)
		if isRoot || isLeaf {
			s.pop(Returned{Value: rendered}, "")
		} else {
			s.discardAndPromote()
		}

	default:
		s.pop(Returned{Value: rendered}, "")
	}
}

// ExitWithError implements Recorder. Errors are recorded at every enabled
// level, including LevelErrors and LevelSummary, and are never pruned.
func (n *Narrative) ExitWithError(ctx context.Context, err error, errorContext string) {
	s, ok := n.stackFor(ctx, false)
	if !ok || s.isEmpty() {
		return
	}

	if !n.level.Level().Enabled(LevelErrors) {
		s.discard()
		return
	}

	s.pop(Threw{Err: err}, errorContext)
}

// CaptureTrace implements Recorder.
func (n *Narrative) CaptureTrace(ctx context.Context) *Tree {
	s, ok := n.stackFor(ctx, false)
	if !ok {
		return EmptyTree()
	}
	return NewTree(s.completed())
}

// Reset implements Recorder.
func (n *Narrative) Reset(ctx context.Context) {
	id, ok := ExecutionFrom(ctx)
	if !ok {
		return
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	delete(n.stacks, id)
}

// Snapshot implements Recorder.
func (n *Narrative) Snapshot() Snapshot {
	return &narrativeSnapshot{n: n}
}

// Executions returns the number of executions with live state. It's meant for
// diagnostics: executions which are never reset or scoped keep their state
// until the recorder itself is garbage collected.
func (n *Narrative) Executions() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	return len(n.stacks)
}

// stackFor returns the stack of the execution in the context. If create is
// true, a missing stack is created. Contexts without an execution have no
// stack.
func (n *Narrative) stackFor(ctx context.Context, create bool) (*stack, bool) {
	id, ok := ExecutionFrom(ctx)
	if !ok {
		return nil, false
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	s, ok := n.stacks[id]
	if !ok && create {
		s, ok = newStack(), true
		n.stacks[id] = s
	}
	return s, ok
}

// swap installs replacement as the stack of the execution id, and returns the
// stack that was installed before, if any. A nil replacement removes the
// execution's state.
func (n *Narrative) swap(id ExecutionID, replacement *stack) (previous *stack) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	previous = n.stacks[id]
	if replacement == nil {
		delete(n.stacks, id)
	} else {
		n.stacks[id] = replacement
	}
	return previous
}
