package ntrc

import (
	"context"
	"sync"
)

// Snapshot is a handle to the trace state of executions, used to isolate or
// transplant that state across an asynchronous boundary.
type Snapshot interface {
	// Activate should install a brand new, empty stack as the current stack of
	// the execution in the context, and return a scope which reinstalls the
	// previously current stack when closed. Activations nest: scopes must be
	// closed in LIFO order, and each close restores exactly the stack that was
	// current when the corresponding Activate was called.
	Activate(ctx context.Context) Scope
}

// Scope is returned by Snapshot.Activate. Closing it restores the stack that
// was current before the activation. Close is idempotent.
type Scope interface {
	Close()
}

// Wrap returns a function which runs fn in a new execution derived from ctx,
// with an isolated stack activated from the snapshot. The execution and its
// stack are torn down when fn returns, so fn should capture whatever trace it
// wants to keep before returning.
//
// Wrap is meant for handing work to another goroutine, e.g. via errgroup.
//
//	snap := rec.Snapshot()
//	g.Go(ntrc.Wrap(ctx, snap, func(ctx context.Context) error {
//	    return inventory.Reserve(ctx, sku)
//	}))
func Wrap(ctx context.Context, snap Snapshot, fn func(context.Context) error) func() error {
	return func() error {
		ctx := NewExecution(ctx)
		scope := snap.Activate(ctx)
		defer scope.Close()
		return fn(ctx)
	}
}

// Go runs fn on a new goroutine, as per Wrap, and returns a channel which
// receives fn's result when it completes.
func Go(ctx context.Context, snap Snapshot, fn func(context.Context) error) <-chan error {
	errc := make(chan error, 1)
	wrapped := Wrap(ctx, snap, fn)
	go func() { errc <- wrapped() }()
	return errc
}

//
//
//

type narrativeSnapshot struct {
	n *Narrative
}

func (s *narrativeSnapshot) Activate(ctx context.Context) Scope {
	id, ok := ExecutionFrom(ctx)
	if !ok {
		return noopScope{}
	}
	previous := s.n.swap(id, newStack())
	return &narrativeScope{n: s.n, id: id, previous: previous}
}

type narrativeScope struct {
	once     sync.Once
	n        *Narrative
	id       ExecutionID
	previous *stack // nil if the execution had no state before activation
}

func (s *narrativeScope) Close() {
	s.once.Do(func() {
		s.n.swap(s.id, s.previous)
	})
}
