package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ntrc/ntrchttp"
	"github.com/peterbourgon/unixtransport"
	"go.uber.org/zap"
)

type streamConfig struct {
	*rootConfig

	uri           string
	buffer        int
	retryInterval time.Duration
}

func (cfg *streamConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*          */, Value: ffval.NewValueDefault(&cfg.uri, "localhost:8080/traces/stream") /* */, Usage: "stream endpoint URI, e.g. unix:///tmp/ntrc.sock:/traces/stream"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "buffer" /*       */, Value: ffval.NewValueDefault(&cfg.buffer, 100) /*                          */, Usage: "remote send buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second) /*        */, Usage: "connection retry interval"})
}

func (cfg *streamConfig) Exec(ctx context.Context, args []string) error {
	// The stream client uses the default HTTP client.
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		unixtransport.Register(t)
	}

	traces := make(chan *ntrchttp.Trace, cfg.buffer)
	client := &ntrchttp.StreamClient{
		URI:           cfg.uri,
		Buffer:        cfg.buffer,
		RetryInterval: cfg.retryInterval,
		Logger:        cfg.logger.Named("stream"),
	}

	cfg.logger.Info("streaming", zap.String("uri", cfg.uri))

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return client.Stream(ctx, traces)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.writeTraces(ctx, traces)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	return g.Run()
}

func (cfg *streamConfig) writeTraces(ctx context.Context, traces <-chan *ntrchttp.Trace) error {
	var count uint64
	for {
		select {
		case tr := <-traces:
			count++
			fmt.Fprintf(cfg.stdout, "%s %s\n%s\n\n", tr.ID, tr.Request, tr.Text)
		case <-ctx.Done():
			cfg.logger.Debug("stream finished", zap.Uint64("count", count))
			return ctx.Err()
		}
	}
}
