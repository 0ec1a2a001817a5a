package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"github.com/peterbourgon/ntrc/ntrchttp"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"go.uber.org/zap"
)

type serveConfig struct {
	*rootConfig

	listenAddr string
	recent     int
	jsonLines  bool
}

func (cfg *serveConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{LongName: "listen" /* */, Value: ffval.NewValueDefault(&cfg.listenAddr, "localhost:8080") /* */, Usage: "HTTP listen address, or unix:///path/to/socket"})
	fs.AddFlag(ff.FlagConfig{LongName: "recent" /* */, Value: ffval.NewValueDefault(&cfg.recent, 100) /*                  */, Usage: "number of recent traces to keep"})
	fs.AddFlag(ff.FlagConfig{LongName: "jsonl" /*  */, Value: ffval.NewValue(&cfg.jsonLines) /*                           */, Usage: "also write every trace to stdout as a JSON line", NoDefault: true})
}

func (cfg *serveConfig) Exec(ctx context.Context, args []string) error {
	ln, err := unixproxy.ListenURI(ctx, cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cfg.logger.Info("listening", zap.String("addr", cfg.listenAddr), zap.Stringer("level", cfg.config.Level))

	server := &http.Server{
		Handler:           cfg.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	{
		g.Add(func() error {
			return server.Serve(ln)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	err = g.Run()
	cfg.logger.Info("stopped", zap.Error(err))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handler serves the instrumented order endpoint, and the recent traces it
// produces.
func (cfg *serveConfig) handler() http.Handler {
	recent := ntrchttp.NewRecent(cfg.recent)

	exporters := []ntrcexport.Exporter{recent, ntrcexport.LogExporter(cfg.logger.Named("export"))}
	if cfg.jsonLines {
		exporters = append(exporters, ntrcexport.JSONLinesExporter(cfg.stdout))
	}

	var (
		shop       = newShop(cfg.tracer, cfg.logger)
		orders     = &orderHandler{shop: shop, logger: cfg.logger}
		middleware = ntrchttp.Middleware(cfg.recorder, ntrcexport.Multi(exporters...), cfg.logger.Named("middleware"))
		traces     = ntrchttp.NewHandler(recent, cfg.logger.Named("http"))
		mux        = http.NewServeMux()
	)

	mux.Handle("POST /orders", middleware(orders))
	mux.Handle("/traces", traces)
	mux.Handle("/traces/", traces)
	return mux
}

// orderHandler places an order described by the query parameters of the
// request: id, customer, tier, item (repeatable), and card.
type orderHandler struct {
	shop   *shop
	logger *zap.Logger
}

func (h *orderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	order := Order{
		ID:       query.Get("id"),
		Customer: Customer{Name: query.Get("customer"), Tier: query.Get("tier")},
	}
	if order.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	for _, s := range query["item"] {
		item, err := parseItem(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		order.Items = append(order.Items, item)
	}

	confirmation, err := h.shop.placeOrder(r.Context(), order, query.Get("card"))

	var (
		code     = http.StatusOK
		response = map[string]string{}
		stockErr *OutOfStockError
	)
	switch {
	case err == nil:
		response["confirmation"] = confirmation
	case errors.As(err, &stockErr):
		code, response["error"] = http.StatusConflict, err.Error()
	case errors.Is(err, ErrCardDeclined):
		code, response["error"] = http.StatusPaymentRequired, err.Error()
	default:
		code, response["error"] = http.StatusInternalServerError, err.Error()
	}

	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Debug("write response", zap.Error(err))
	}
}
