package ntrcexport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/peterbourgon/ntrc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestInfo describes the request that produced a trace.
type RequestInfo struct {
	Method   string        `json:"method"`
	URI      string        `json:"uri"`
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration"`
}

// String returns e.g. "GET /orders [200] 42ms".
func (ri RequestInfo) String() string {
	return fmt.Sprintf("%s %s [%d] %dms", ri.Method, ri.URI, ri.Status, ri.Duration.Milliseconds())
}

// Exporter receives captured traces at request boundaries. Trees are never
// empty. Implementations must be safe for concurrent use, and shouldn't block.
type Exporter interface {
	Export(ctx context.Context, tree *ntrc.Tree, info RequestInfo)
}

// ExporterFunc adapts a function to an Exporter.
type ExporterFunc func(ctx context.Context, tree *ntrc.Tree, info RequestInfo)

// Export implements Exporter.
func (f ExporterFunc) Export(ctx context.Context, tree *ntrc.Tree, info RequestInfo) {
	f(ctx, tree, info)
}

// Multi returns an exporter which passes every trace to each of the
// exporters, in order.
func Multi(exporters ...Exporter) Exporter {
	return ExporterFunc(func(ctx context.Context, tree *ntrc.Tree, info RequestInfo) {
		for _, e := range exporters {
			e.Export(ctx, tree, info)
		}
	})
}

//
//
//

// LogExporter logs each trace at info level, as a message describing the
// request with the JSON events in the "trace" field. Nothing is encoded if the
// logger doesn't log info.
func LogExporter(logger *zap.Logger) Exporter {
	return ExporterFunc(func(ctx context.Context, tree *ntrc.Tree, info RequestInfo) {
		ce := logger.Check(zapcore.InfoLevel, info.String())
		if ce == nil {
			return
		}
		buf, err := JSON(tree)
		if err != nil {
			ce.Write(zap.Error(err))
			return
		}
		ce.Write(zap.String("trace", string(buf)))
	})
}

// JSONLinesExporter writes each trace to w as a single line of JSON, with the
// request info and the events of the trace.
func JSONLinesExporter(w io.Writer) Exporter {
	var mtx sync.Mutex
	return ExporterFunc(func(ctx context.Context, tree *ntrc.Tree, info RequestInfo) {
		buf, err := jsonLine(tree, info)
		if err != nil {
			return
		}

		mtx.Lock()
		defer mtx.Unlock()

		w.Write(buf)
	})
}
