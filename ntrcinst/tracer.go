// Package ntrcinst is the instrumentation boundary between application code
// and a recorder. It turns a call, described by a registered Method and its
// arguments, into a rendered signature with resolved narration, and reports
// the call's entry and exit to the recorder.
//
//	tracer := ntrcinst.NewTracer(rec)
//	tracer.Register(ntrcinst.Method{
//	    Class:    "OrderService",
//	    Name:     "placeOrder",
//	    Params:   []ntrcinst.Param{{Name: "customer"}, {Name: "card", Redacted: true}},
//	    Narrated: "Placing order for {customer.name}",
//	})
//
//	func (s *OrderService) PlaceOrder(ctx context.Context, c Customer, card string) (string, error) {
//	    return ntrcinst.Call(ctx, s.tracer, "OrderService.placeOrder", []any{c, card}, func(ctx context.Context) (string, error) {
//	        ...
//	    })
//	}
package ntrcinst

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrctmpl"
	"github.com/peterbourgon/ntrc/ntrcvalue"
)

// Tracer reports instrumented calls to a recorder.
type Tracer struct {
	// Values renders arguments and return values. If nil, the default
	// renderer is used.
	Values *ntrcvalue.Renderer

	// Templates resolves narration and error context. If nil, the default
	// resolver is used.
	Templates *ntrctmpl.Resolver

	rec ntrc.Recorder

	mtx     sync.RWMutex
	methods map[string]Method

	metadata sync.Map // key -> *metadata
}

// NewTracer returns a tracer reporting to rec. If rec is nil, ntrc.Noop is
// used.
func NewTracer(rec ntrc.Recorder) *Tracer {
	if rec == nil {
		rec = ntrc.Noop
	}
	return &Tracer{
		rec:     rec,
		methods: map[string]Method{},
	}
}

// Recorder returns the recorder the tracer reports to.
func (t *Tracer) Recorder() ntrc.Recorder {
	return t.rec
}

// Register the methods, replacing any existing registrations with the same
// keys. Methods must have a name.
func (t *Tracer) Register(methods ...Method) error {
	for _, m := range methods {
		if m.Name == "" {
			return fmt.Errorf("register %q: method name is required", m.Key())
		}
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	for _, m := range methods {
		key := m.Key()
		t.methods[key] = m
		t.metadata.Delete(key)
	}
	return nil
}

// MustRegister calls Register, and panics on error.
func (t *Tracer) MustRegister(methods ...Method) {
	if err := t.Register(methods...); err != nil {
		panic(err)
	}
}

// Do calls fn as the method registered under key, with the given arguments.
// A successful call is recorded as returning no value.
func (t *Tracer) Do(ctx context.Context, key string, args []any, fn func(context.Context) error) error {
	_, err := call(ctx, t, key, args, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, false)
	return err
}

// Call fn as the method registered under key, with the given arguments, and
// return its results. Unregistered keys are traced using the key as
// Class.Name, and arguments named arg0, arg1, and so on.
//
// If the tracer's recorder isn't active, fn is called directly, and nothing
// is rendered or resolved. If fn panics, the panic is recorded as a
// *PanicError, and then re-panicked.
func Call[T any](ctx context.Context, t *Tracer, key string, args []any, fn func(context.Context) (T, error)) (T, error) {
	return call(ctx, t, key, args, fn, true)
}

func call[T any](ctx context.Context, t *Tracer, key string, args []any, fn func(context.Context) (T, error), renderResult bool) (result T, err error) {
	if !t.rec.IsActive() {
		return fn(ctx)
	}

	var (
		md     = t.lookup(key)
		values = templateValues(md, args)
		sig    = t.signature(md, args, values)
	)

	t.rec.EnterMethod(ctx, sig)

	panicked := true
	defer func() {
		if !panicked {
			return
		}
		x := recover()
		if x == nil { // runtime.Goexit
			t.rec.ExitWithError(ctx, errGoexit, "")
			return
		}
		perr := &PanicError{Value: x, Stack: debug.Stack()}
		t.rec.ExitWithError(ctx, perr, t.errorContext(md, perr, values))
		panic(x)
	}()

	result, err = fn(ctx)
	panicked = false

	switch {
	case err != nil:
		t.rec.ExitWithError(ctx, err, t.errorContext(md, err, values))
	case renderResult:
		t.rec.ExitWithReturn(ctx, t.values().Render(result))
	default:
		t.rec.ExitWithReturn(ctx, "")
	}

	return result, err
}

// lookup returns the metadata for key, computing and caching it on first use.
func (t *Tracer) lookup(key string) *metadata {
	if md, ok := t.metadata.Load(key); ok {
		return md.(*metadata)
	}

	// Register invalidates under the write lock, so metadata computed and
	// stored under the read lock is never stale.
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	md := fallbackMetadata(key)
	if m, registered := t.methods[key]; registered {
		md = newMetadata(m)
	}

	actual, _ := t.metadata.LoadOrStore(key, md)
	return actual.(*metadata)
}

func (t *Tracer) signature(md *metadata, args []any, values map[string]any) ntrc.Signature {
	sig := ntrc.Signature{
		Class:  md.class,
		Method: md.name,
	}
	if len(args) > 0 {
		sig.Parameters = make([]ntrc.Parameter, len(args))
	}
	for i, arg := range args {
		name, redacted := md.paramName(i)
		p := ntrc.Parameter{Name: name, Redacted: redacted}
		if !redacted {
			p.Value = t.values().Render(arg)
		}
		sig.Parameters[i] = p
	}
	if md.narrated != nil {
		sig.Narration = t.templates().Execute(md.narrated, values)
	}
	return sig
}

func (t *Tracer) errorContext(md *metadata, err error, values map[string]any) string {
	tmpl := md.errorTemplate(err)
	if tmpl == nil {
		return ""
	}
	if md.errorName {
		values["err"] = err
	}
	return t.templates().Execute(tmpl, values)
}

func (t *Tracer) values() *ntrcvalue.Renderer {
	if t.Values == nil {
		return ntrcvalue.DefaultRenderer
	}
	return t.Values
}

func (t *Tracer) templates() *ntrctmpl.Resolver {
	if t.Templates == nil {
		return ntrctmpl.DefaultResolver
	}
	return t.Templates
}

// templateValues maps parameter names to arguments, with redacted arguments
// replaced by the redaction marker.
func templateValues(md *metadata, args []any) map[string]any {
	values := make(map[string]any, len(args)+1)
	for i, arg := range args {
		name, redacted := md.paramName(i)
		if redacted {
			values[name] = ntrc.RedactedMarker
		} else {
			values[name] = arg
		}
	}
	return values
}

//
//
//

var errGoexit = errors.New("goroutine exited")

// PanicError is recorded in place of an error when an instrumented call
// panics.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value, if it's an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
