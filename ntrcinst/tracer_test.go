package ntrcinst_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcinst"
)

type customer struct {
	Name string
	Tier string
}

func (c customer) Property(name string) (any, bool) {
	switch name {
	case "name":
		return c.Name, true
	case "tier":
		return c.Tier, true
	}
	return nil, false
}

type stockError struct{ SKU string }

func (e *stockError) Error() string { return "insufficient stock for " + e.SKU }

var errDeclined = errors.New("card declined")

var orderMethods = []ntrcinst.Method{
	{
		Class:    "OrderService",
		Name:     "placeOrder",
		Params:   []ntrcinst.Param{{Name: "customer"}, {Name: "qty"}, {Name: "card", Redacted: true}},
		Narrated: "Placing order of {qty} for {customer.name} with card {card}",
		OnErrors: []ntrcinst.OnError{
			{Template: "order for {customer.name} failed: {err}"},
			{Template: "{customer.name} was declined", Match: ntrcinst.ErrorIs(errDeclined)},
			{Template: "not enough stock for {qty} items", Match: ntrcinst.ErrorAs[*stockError]()},
		},
	},
	{
		Class:  "InventoryService",
		Name:   "reserve",
		Params: []ntrcinst.Param{{Name: "sku"}, {Name: "qty"}},
	},
}

func newTracer(t *testing.T, level ntrc.Level) (*ntrcinst.Tracer, *ntrc.Narrative, context.Context) {
	t.Helper()
	rec := ntrc.NewNarrative(ntrc.NewLevelVar(level))
	tracer := ntrcinst.NewTracer(rec)
	if err := tracer.Register(orderMethods...); err != nil {
		t.Fatal(err)
	}
	return tracer, rec, ntrc.NewExecution(context.Background())
}

func placeOrder(ctx context.Context, tracer *ntrcinst.Tracer, c customer, qty int, card string, fn func(context.Context) (string, error)) (string, error) {
	return ntrcinst.Call(ctx, tracer, "OrderService.placeOrder", []any{c, qty, card}, fn)
}

func TestCallSuccess(t *testing.T) {
	t.Parallel()

	tracer, rec, ctx := newTracer(t, ntrc.LevelDetail)
	alice := customer{Name: "Alice", Tier: "gold"}

	id, err := placeOrder(ctx, tracer, alice, 3, "4111-1111", func(ctx context.Context) (string, error) {
		if _, err := ntrcinst.Call(ctx, tracer, "InventoryService.reserve", []any{"apple", 3}, func(ctx context.Context) (bool, error) {
			return true, nil
		}); err != nil {
			return "", err
		}
		return "order-1", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, "order-1", id)

	roots := rec.CaptureTrace(ctx).Roots()
	AssertEqual(t, 1, len(roots))

	root := roots[0]
	AssertEqual(t, ntrc.Signature{
		Class:  "OrderService",
		Method: "placeOrder",
		Parameters: []ntrc.Parameter{
			{Name: "customer", Value: `customer{Name: "Alice", Tier: "gold"}`},
			{Name: "qty", Value: "3"},
			{Name: "card", Redacted: true},
		},
		Narration: "Placing order of 3 for Alice with card [REDACTED]",
	}, root.Signature)
	AssertEqual(t, ntrc.Outcome(ntrc.Returned{Value: `"order-1"`}), root.Outcome)

	AssertEqual(t, 1, len(root.Children))
	AssertEqual(t, ntrc.Signature{
		Class:  "InventoryService",
		Method: "reserve",
		Parameters: []ntrc.Parameter{
			{Name: "sku", Value: `"apple"`},
			{Name: "qty", Value: "3"},
		},
	}, root.Children[0].Signature)
	AssertEqual(t, ntrc.Outcome(ntrc.Returned{Value: "true"}), root.Children[0].Outcome)
}

func TestCallSuppressesValuesBelowDetail(t *testing.T) {
	t.Parallel()

	tracer, rec, ctx := newTracer(t, ntrc.LevelNarrative)

	placeOrder(ctx, tracer, customer{Name: "Bob"}, 1, "4111", func(ctx context.Context) (string, error) {
		return "order-2", nil
	})

	sig := rec.CaptureTrace(ctx).Roots()[0].Signature
	AssertEqual(t, []ntrc.Parameter{
		{Name: "customer"},
		{Name: "qty"},
		{Name: "card", Redacted: true},
	}, sig.Parameters)
	AssertEqual(t, "Placing order of 1 for Bob with card [REDACTED]", sig.Narration)
}

func TestCallErrorContext(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		err  error
		want string
	}{
		{"specific by identity", fmt.Errorf("charge: %w", errDeclined), "Carol was declined"},
		{"specific by type", &stockError{SKU: "pear"}, "not enough stock for 7 items"},
		{"catch-all declared first", errors.New("timeout"), "order for Carol failed: timeout"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tracer, rec, ctx := newTracer(t, ntrc.LevelErrors)

			_, err := placeOrder(ctx, tracer, customer{Name: "Carol"}, 7, "4111", func(ctx context.Context) (string, error) {
				return "", tc.err
			})
			if !errors.Is(err, tc.err) {
				t.Fatalf("want %v, have %v", tc.err, err)
			}

			roots := rec.CaptureTrace(ctx).Roots()
			AssertEqual(t, 1, len(roots))
			AssertEqual(t, tc.want, roots[0].Signature.ErrorContext)
			AssertEqual(t, true, roots[0].Errored())
		})
	}
}

func TestCallErrorContextWithoutMatch(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	tracer.MustRegister(ntrcinst.Method{
		Class:    "Payment",
		Name:     "charge",
		OnErrors: []ntrcinst.OnError{{Template: "declined", Match: ntrcinst.ErrorIs(errDeclined)}},
	})
	ctx := ntrc.NewExecution(context.Background())

	tracer.Do(ctx, "Payment.charge", nil, func(context.Context) error { return errors.New("other") })

	AssertEqual(t, "", rec.CaptureTrace(ctx).Roots()[0].Signature.ErrorContext)
}

func TestCallPanickingMatcher(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	tracer.MustRegister(ntrcinst.Method{
		Class: "Payment",
		Name:  "charge",
		OnErrors: []ntrcinst.OnError{
			{Template: "bad matcher", Match: func(error) bool { panic("oops") }},
			{Template: "fallback"},
		},
	})
	ctx := ntrc.NewExecution(context.Background())

	tracer.Do(ctx, "Payment.charge", nil, func(context.Context) error { return errDeclined })

	AssertEqual(t, "fallback", rec.CaptureTrace(ctx).Roots()[0].Signature.ErrorContext)
}

func TestCallPanic(t *testing.T) {
	t.Parallel()

	tracer, rec, ctx := newTracer(t, ntrc.LevelDetail)

	func() {
		defer func() {
			AssertEqual[any](t, "kaboom", recover())
		}()
		placeOrder(ctx, tracer, customer{Name: "Dave"}, 1, "4111", func(ctx context.Context) (string, error) {
			panic("kaboom")
		})
	}()

	roots := rec.CaptureTrace(ctx).Roots()
	AssertEqual(t, 1, len(roots))

	threw, ok := roots[0].Outcome.(ntrc.Threw)
	if !ok {
		t.Fatalf("want Threw, have %T", roots[0].Outcome)
	}
	var perr *ntrcinst.PanicError
	if !errors.As(threw.Err, &perr) {
		t.Fatalf("want *PanicError, have %T", threw.Err)
	}
	AssertEqual[any](t, "kaboom", perr.Value)
	AssertEqual(t, "panic: kaboom", perr.Error())
	AssertEqual(t, true, len(perr.Stack) > 0)
	AssertEqual(t, "order for Dave failed: panic: kaboom", roots[0].Signature.ErrorContext)
}

func TestCallInactiveSkipsWork(t *testing.T) {
	t.Parallel()

	var rendered atomic.Int64
	probe := probeValue{rendered: &rendered}

	rec := &spyRecorder{Recorder: ntrc.NewNarrative(ntrc.NewLevelVar(ntrc.LevelOff))}
	tracer := ntrcinst.NewTracer(rec)
	tracer.MustRegister(ntrcinst.Method{Class: "Svc", Name: "run", Params: []ntrcinst.Param{{Name: "p"}}, Narrated: "{p}"})
	ctx := ntrc.NewExecution(context.Background())

	var ran bool
	v, err := ntrcinst.Call(ctx, tracer, "Svc.run", []any{probe}, func(context.Context) (int, error) {
		ran = true
		return 7, nil
	})

	AssertEqual(t, 7, v)
	AssertEqual[error](t, nil, err)
	AssertEqual(t, true, ran)
	AssertEqual(t, int64(0), rendered.Load())
	AssertEqual(t, int64(0), rec.enters.Load())
}

func TestCallNoopTracer(t *testing.T) {
	t.Parallel()

	tracer := ntrcinst.NewTracer(nil)
	if tracer.Recorder() != ntrc.Noop {
		t.Errorf("want noop recorder, have %T", tracer.Recorder())
	}

	err := tracer.Do(context.Background(), "Svc.run", nil, func(context.Context) error { return errDeclined })
	AssertEqual(t, true, errors.Is(err, errDeclined))
}

func TestCallUnregistered(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	ctx := ntrc.NewExecution(context.Background())

	tracer.Do(ctx, "pkg.Shipping.dispatch", []any{"A-1", 2}, func(context.Context) error { return nil })
	tracer.Do(ctx, "standalone", nil, func(context.Context) error { return nil })

	roots := rec.CaptureTrace(ctx).Roots()
	AssertEqual(t, 2, len(roots))
	AssertEqual(t, ntrc.Signature{
		Class:  "pkg.Shipping",
		Method: "dispatch",
		Parameters: []ntrc.Parameter{
			{Name: "arg0", Value: `"A-1"`},
			{Name: "arg1", Value: "2"},
		},
	}, roots[0].Signature)
	AssertEqual(t, ntrc.Outcome(ntrc.Returned{}), roots[0].Outcome)
	AssertEqual(t, ntrc.Signature{Method: "standalone"}, roots[1].Signature)
}

func TestCallExtraArguments(t *testing.T) {
	t.Parallel()

	tracer, rec, ctx := newTracer(t, ntrc.LevelDetail)

	tracer.Do(ctx, "InventoryService.reserve", []any{"plum", 1, true}, func(context.Context) error { return nil })

	params := rec.CaptureTrace(ctx).Roots()[0].Signature.Parameters
	AssertEqual(t, []string{"sku", "qty", "arg2"}, []string{params[0].Name, params[1].Name, params[2].Name})
}

func TestRegisterAfterFirstCall(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	ctx := ntrc.NewExecution(context.Background())

	tracer.Do(ctx, "Svc.run", []any{1}, func(context.Context) error { return nil })
	tracer.MustRegister(ntrcinst.Method{Class: "Svc", Name: "run", Params: []ntrcinst.Param{{Name: "n"}}, Narrated: "Running {n}"})
	tracer.Do(ctx, "Svc.run", []any{2}, func(context.Context) error { return nil })

	roots := rec.CaptureTrace(ctx).Roots()
	AssertEqual(t, "arg0", roots[0].Signature.Parameters[0].Name)
	AssertEqual(t, "n", roots[1].Signature.Parameters[0].Name)
	AssertEqual(t, "Running 2", roots[1].Signature.Narration)
}

func TestRegisterConcurrentWithCalls(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	run := func(ctx context.Context) error { return nil }

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx := ntrc.NewExecution(context.Background())
				defer rec.Reset(ctx)
				tracer.Do(ctx, "Svc.run", []any{i}, run)
			}()
		}
		tracer.MustRegister(ntrcinst.Method{Class: "Svc", Name: "run", Params: []ntrcinst.Param{{Name: "n"}}, Narrated: fmt.Sprintf("Running {n} v%d", i)})
		wg.Wait()

		ctx := ntrc.NewExecution(context.Background())
		tracer.Do(ctx, "Svc.run", []any{i}, run)
		AssertEqual(t, fmt.Sprintf("Running %d v%d", i, i), rec.CaptureTrace(ctx).Roots()[0].Signature.Narration)
		rec.Reset(ctx)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	t.Parallel()

	tracer := ntrcinst.NewTracer(nil)
	if err := tracer.Register(ntrcinst.Method{Class: "Svc"}); err == nil {
		t.Errorf("want error, have none")
	}
}

func TestUnresolvedNarration(t *testing.T) {
	t.Parallel()

	rec := ntrc.NewNarrative(nil)
	tracer := ntrcinst.NewTracer(rec)
	tracer.MustRegister(ntrcinst.Method{Class: "Svc", Name: "run", Params: []ntrcinst.Param{{Name: "a"}}, Narrated: "Run {a} with {b} and {a.missing}"})
	ctx := ntrc.NewExecution(context.Background())

	tracer.Do(ctx, "Svc.run", []any{"x"}, func(context.Context) error { return nil })

	AssertEqual(t, "Run x with {b} and {a.missing}", rec.CaptureTrace(ctx).Roots()[0].Signature.Narration)
}

func TestErrorMatchers(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("wrapped: %w", &stockError{SKU: "x"})
	AssertEqual(t, true, ntrcinst.ErrorAs[*stockError]()(wrapped))
	AssertEqual(t, false, ntrcinst.ErrorAs[*stockError]()(errDeclined))
	AssertEqual(t, true, ntrcinst.ErrorIs(errDeclined)(fmt.Errorf("x: %w", errDeclined)))
	AssertEqual(t, false, ntrcinst.ErrorIs(errDeclined)(wrapped))
}

//
//
//

type probeValue struct {
	rendered *atomic.Int64
}

func (p probeValue) String() string {
	p.rendered.Add(1)
	return "probe"
}

func (p probeValue) Property(string) (any, bool) {
	p.rendered.Add(1)
	return "probe", true
}

type spyRecorder struct {
	ntrc.Recorder
	enters atomic.Int64
}

func (r *spyRecorder) EnterMethod(ctx context.Context, sig ntrc.Signature) {
	r.enters.Add(1)
	r.Recorder.EnterMethod(ctx, sig)
}

func AssertEqual[T any](t *testing.T, want, have T) {
	t.Helper()
	if diff := cmp.Diff(want, have); diff != "" {
		t.Fatalf("(-want +have)\n%s", diff)
	}
}
