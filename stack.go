package ntrc

import (
	"slices"
	"time"
)

// nowFunc is the clock used for call timing. time.Now includes a monotonic
// clock reading, so durations computed with Sub are immune to wall-clock
// adjustments.
var nowFunc = time.Now

// frame is a call that has started but not yet completed. It's the only
// mutable structure in a trace, and it's discarded once popped.
type frame struct {
	sig      Signature
	begin    time.Time
	children []*Node
}

// stack is the call stack of a single logical execution. It's owned by that
// execution, and isn't safe for concurrent use.
type stack struct {
	frames []*frame
	roots  []*Node
}

func newStack() *stack {
	return &stack{}
}

func (s *stack) push(sig Signature) {
	s.frames = append(s.frames, &frame{sig: sig, begin: nowFunc()})
}

func (s *stack) depth() int {
	return len(s.frames)
}

func (s *stack) isEmpty() bool {
	return len(s.frames) <= 0
}

func (s *stack) peek() *frame {
	if len(s.frames) <= 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *stack) removeTop() *frame {
	top := s.peek()
	if top == nil {
		return nil
	}
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// discard pops the top frame without recording it. Its children are dropped.
func (s *stack) discard() {
	s.removeTop()
}

// discardAndPromote pops the top frame without recording it, and splices its
// children into the new top frame, or into the roots if the stack is empty.
func (s *stack) discardAndPromote() {
	f := s.removeTop()
	if f == nil {
		return
	}
	s.attach(f.children...)
}

// pop completes the top frame with the given outcome, and links the resulting
// node into its parent, or into the roots if the stack is now empty. If
// errorContext is non-empty, the node's signature carries it.
func (s *stack) pop(outcome Outcome, errorContext string) *Node {
	f := s.removeTop()
	if f == nil {
		return nil
	}

	took := nowFunc().Sub(f.begin)
	if took < 0 {
		took = 0
	}

	sig := f.sig
	if errorContext != "" {
		sig = sig.WithErrorContext(errorContext)
	}

	node := &Node{
		Signature: sig,
		Children:  slices.Clip(f.children),
		Outcome:   outcome,
		Duration:  took,
	}

	s.attach(node)
	return node
}

func (s *stack) attach(nodes ...*Node) {
	if len(nodes) <= 0 {
		return
	}
	if top := s.peek(); top != nil {
		top.children = append(top.children, nodes...)
		return
	}
	s.roots = append(s.roots, nodes...)
}

// completed returns a copy of the completed root nodes.
func (s *stack) completed() []*Node {
	return slices.Clone(s.roots)
}
