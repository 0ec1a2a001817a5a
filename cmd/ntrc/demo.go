package main

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"go.uber.org/zap"
)

type demoConfig struct {
	*rootConfig

	orderID  string
	customer string
	tier     string
	items    []string
	card     string
}

func (cfg *demoConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{LongName: "order" /*    */, Value: ffval.NewValueDefault(&cfg.orderID, "A-1") /*         */, Usage: "order ID"})
	fs.AddFlag(ff.FlagConfig{LongName: "customer" /* */, Value: ffval.NewValueDefault(&cfg.customer, "Ada") /*        */, Usage: "customer name"})
	fs.AddFlag(ff.FlagConfig{LongName: "tier" /*     */, Value: ffval.NewEnum(&cfg.tier, "gold", "silver", "none") /* */, Usage: "customer loyalty tier: gold, silver, none"})
	fs.AddFlag(ff.FlagConfig{LongName: "item" /*     */, Value: ffval.NewUniqueList(&cfg.items) /*                     */, Usage: "order item as sku:qty, e.g. apple:2 (repeatable, default apple:2 pear:1)", Placeholder: "ITEM"})
	fs.AddFlag(ff.FlagConfig{LongName: "card" /*     */, Value: ffval.NewValueDefault(&cfg.card, "4111111111111111") /* */, Usage: "card number, " + declinedCard + " is declined"})
}

func (cfg *demoConfig) Exec(ctx context.Context, args []string) error {
	order, err := cfg.order()
	if err != nil {
		return err
	}

	var (
		shop   = newShop(cfg.tracer, cfg.logger)
		rec    = cfg.recorder
		result = "success"
	)

	ctx = ntrc.NewExecution(ctx)
	defer rec.Reset(ctx)

	confirmation, err := shop.placeOrder(ctx, order, cfg.card)
	if err != nil {
		result = "failure"
		cfg.logger.Info("order failed", zap.Error(err))
	} else {
		cfg.logger.Info("order placed", zap.String("confirmation", confirmation))
	}

	tree := rec.CaptureTrace(ctx)
	if err := writeTrace(cfg.stdout, tree, cfg.format, cfg.color, ntrcexport.Metadata{Scenario: "demo " + order.ID, Result: result}); err != nil {
		return err
	}
	writeWarnings(cfg.stderr, tree)

	return nil
}

func (cfg *demoConfig) order() (Order, error) {
	specs := cfg.items
	if len(specs) == 0 {
		specs = []string{"apple:2", "pear:1"}
	}

	order := Order{
		ID:       cfg.orderID,
		Customer: Customer{Name: cfg.customer, Tier: cfg.tier},
	}
	for _, s := range specs {
		item, err := parseItem(s)
		if err != nil {
			return Order{}, fmt.Errorf("--item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return order, nil
}
