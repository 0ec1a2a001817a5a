package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcinst"
	"github.com/peterbourgon/ntrc/ntrcrender"
	"github.com/peterbourgon/ntrc/ntrctmpl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Money is an amount in cents.
type Money int64

func (m Money) String() string {
	return fmt.Sprintf("$%d.%02d", m/100, m%100)
}

// Customer places orders.
type Customer struct {
	Name string
	Tier string
}

// Item is a line of an order.
type Item struct {
	SKU string
	Qty int
}

// parseItem parses "sku:qty", or "sku" for a quantity of 1.
func parseItem(s string) (Item, error) {
	sku, qtystr, ok := strings.Cut(s, ":")
	if !ok {
		return Item{SKU: sku, Qty: 1}, nil
	}
	qty, err := strconv.Atoi(qtystr)
	if err != nil || qty < 1 {
		return Item{}, fmt.Errorf("%s: invalid quantity", s)
	}
	return Item{SKU: sku, Qty: qty}, nil
}

// Order is a request to buy some items.
type Order struct {
	ID       string
	Customer Customer
	Items    []Item
}

// Property implements ntrctmpl.Propertier.
func (o Order) Property(name string) (any, bool) {
	switch name {
	case "id":
		return o.ID, true
	case "customer":
		return o.Customer.Name, true
	case "items":
		return len(o.Items), true
	default:
		return nil, false
	}
}

func init() {
	ntrctmpl.RegisterAccessor("tier", func(c Customer) any { return c.Tier })
}

// OutOfStockError is returned when an item can't be reserved.
type OutOfStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// Property implements ntrctmpl.Propertier.
func (e *OutOfStockError) Property(name string) (any, bool) {
	switch name {
	case "sku":
		return e.SKU, true
	case "available":
		return e.Available, true
	default:
		return nil, false
	}
}

// ErrCardDeclined is returned by the payment gateway for the declined card.
var ErrCardDeclined = errors.New("card declined")

const declinedCard = "4000000000000002"

var shopMethods = []ntrcinst.Method{
	{
		Class:    "OrderService",
		Name:     "placeOrder",
		Params:   []ntrcinst.Param{{Name: "order"}, {Name: "card", Redacted: true}},
		Narrated: "Placing order {order.id} for {order.customer}",
		OnErrors: []ntrcinst.OnError{
			{Template: "Order {order.id} could not be fulfilled from stock", Match: ntrcinst.ErrorAs[*OutOfStockError]()},
			{Template: "Order {order.id} failed: {err}"},
		},
	},
	{
		Class:    "Inventory",
		Name:     "reserve",
		Params:   []ntrcinst.Param{{Name: "sku"}, {Name: "qty"}},
		Narrated: "Reserving {qty} of {sku}",
		OnErrors: []ntrcinst.OnError{
			{Template: "Only {err.available} of {sku} left", Match: ntrcinst.ErrorAs[*OutOfStockError]()},
		},
	},
	{
		Class:  "Pricing",
		Name:   "quote",
		Params: []ntrcinst.Param{{Name: "order"}},
	},
	{
		Class:    "Loyalty",
		Name:     "discount",
		Params:   []ntrcinst.Param{{Name: "customer"}, {Name: "amount"}},
		Narrated: "Applying the {customer.tier} discount to {amount}",
	},
	{
		Class:    "Payment",
		Name:     "charge",
		Params:   []ntrcinst.Param{{Name: "card", Redacted: true}, {Name: "amount"}},
		Narrated: "Charging {amount}",
		OnErrors: []ntrcinst.OnError{
			{Template: "Payment of {amount} was declined", Match: ntrcinst.ErrorIs(ErrCardDeclined)},
		},
	},
	{
		Class:    "Notifier",
		Name:     "send",
		Params:   []ntrcinst.Param{{Name: "channel"}, {Name: "order"}},
		Narrated: "Sending {channel} confirmation for {order.id}",
	},
}

var prices = map[string]Money{
	"apple": 125,
	"pear":  250,
	"plum":  99,
}

// shop is the sample order workflow. Every method goes through the tracer.
type shop struct {
	tracer *ntrcinst.Tracer
	logger *zap.Logger

	mtx   sync.Mutex
	stock map[string]int
}

func newShop(tracer *ntrcinst.Tracer, logger *zap.Logger) *shop {
	return &shop{
		tracer: tracer,
		logger: logger,
		stock:  map[string]int{"apple": 10, "pear": 3, "plum": 0},
	}
}

func (s *shop) placeOrder(ctx context.Context, order Order, card string) (string, error) {
	return ntrcinst.Call(ctx, s.tracer, "OrderService.placeOrder", []any{order, card}, func(ctx context.Context) (string, error) {
		for _, item := range order.Items {
			if err := s.reserve(ctx, item.SKU, item.Qty); err != nil {
				return "", fmt.Errorf("reserve: %w", err)
			}
		}

		amount, err := s.quote(ctx, order)
		if err != nil {
			return "", fmt.Errorf("quote: %w", err)
		}

		amount, err = s.discount(ctx, order.Customer, amount)
		if err != nil {
			return "", fmt.Errorf("discount: %w", err)
		}

		if err := s.charge(ctx, card, amount); err != nil {
			return "", fmt.Errorf("charge: %w", err)
		}

		if err := s.notify(ctx, order); err != nil {
			return "", fmt.Errorf("notify: %w", err)
		}

		return "confirmed " + order.ID, nil
	})
}

func (s *shop) reserve(ctx context.Context, sku string, qty int) error {
	return s.tracer.Do(ctx, "Inventory.reserve", []any{sku, qty}, func(ctx context.Context) error {
		s.mtx.Lock()
		defer s.mtx.Unlock()

		available := s.stock[sku]
		if available < qty {
			return &OutOfStockError{SKU: sku, Requested: qty, Available: available}
		}
		s.stock[sku] = available - qty
		return nil
	})
}

func (s *shop) quote(ctx context.Context, order Order) (Money, error) {
	return ntrcinst.Call(ctx, s.tracer, "Pricing.quote", []any{order}, func(ctx context.Context) (Money, error) {
		var total Money
		for _, item := range order.Items {
			price, ok := prices[item.SKU]
			if !ok {
				return 0, fmt.Errorf("%s: no price", item.SKU)
			}
			total += price * Money(item.Qty)
		}
		return total, nil
	})
}

func (s *shop) discount(ctx context.Context, customer Customer, amount Money) (Money, error) {
	return ntrcinst.Call(ctx, s.tracer, "Loyalty.discount", []any{customer, amount}, func(ctx context.Context) (Money, error) {
		switch customer.Tier {
		case "gold":
			return amount * 90 / 100, nil
		case "silver":
			return amount * 95 / 100, nil
		default:
			return amount, nil
		}
	})
}

func (s *shop) charge(ctx context.Context, card string, amount Money) error {
	return s.tracer.Do(ctx, "Payment.charge", []any{card, amount}, func(ctx context.Context) error {
		if card == declinedCard {
			return ErrCardDeclined
		}
		return nil
	})
}

// notify sends confirmations concurrently. Each send runs in its own scope,
// so its calls are captured separately from the order's trace.
func (s *shop) notify(ctx context.Context, order Order) error {
	snap := s.tracer.Recorder().Snapshot()

	g, ctx := errgroup.WithContext(ctx)
	for _, channel := range []string{"email", "sms"} {
		g.Go(ntrc.Wrap(ctx, snap, func(ctx context.Context) error {
			err := s.tracer.Do(ctx, "Notifier.send", []any{channel, order}, func(ctx context.Context) error {
				return nil
			})
			if tree := s.tracer.Recorder().CaptureTrace(ctx); !tree.IsEmpty() {
				s.logger.Debug("notification trace", zap.String("channel", channel), zap.String("trace", ntrcrender.Text(tree, ntrcrender.Options{HideDurations: true})))
			}
			return err
		}))
	}
	return g.Wait()
}
