package ntrc

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DecoratorFunc wraps a recorder with additional behavior.
type DecoratorFunc func(Recorder) Recorder

// Decorate applies the decorators to the recorder, in order, so that the last
// decorator is the outermost.
func Decorate(rec Recorder, decorators ...DecoratorFunc) Recorder {
	for _, decorator := range decorators {
		rec = decorator(rec)
	}
	return rec
}

//
//
//

// LogLevels are the levels at which the log decorator logs each kind of
// event.
type LogLevels struct {
	Entry  zapcore.Level
	Return zapcore.Level
	Error  zapcore.Level
}

// DefaultLogLevels logs entries and returns at debug, and errors at warn.
var DefaultLogLevels = LogLevels{
	Entry:  zapcore.DebugLevel,
	Return: zapcore.DebugLevel,
	Error:  zapcore.WarnLevel,
}

// LogDecorator logs every entry and exit to the logger, and then passes it
// along to the decorated recorder. Entries are logged as
//
//	→ OrderService.place(id: "A-1", qty: 5)
//
// with class, method, and depth fields. Redacted parameters are logged as the
// redaction marker.
func LogDecorator(logger *zap.Logger, levels LogLevels) DecoratorFunc {
	return func(rec Recorder) Recorder {
		return &logRecorder{
			Recorder: rec,
			logger:   logger,
			levels:   levels,
			depths:   map[ExecutionID]int{},
		}
	}
}

type logRecorder struct {
	Recorder

	logger *zap.Logger
	levels LogLevels

	mtx    sync.Mutex
	depths map[ExecutionID]int
}

func (lr *logRecorder) EnterMethod(ctx context.Context, sig Signature) {
	id, depth := lr.adjustDepth(ctx, +1)
	if ce := lr.logger.Check(lr.levels.Entry, "→ "+sig.String()); ce != nil {
		ce.Write(
			zap.String("class", sig.Class),
			zap.String("method", sig.Method),
			zap.Int("depth", depth),
			zap.String("execution", string(id)),
		)
	}
	lr.Recorder.EnterMethod(ctx, sig)
}

func (lr *logRecorder) ExitWithReturn(ctx context.Context, rendered string) {
	id, _ := lr.adjustDepth(ctx, -1)
	if ce := lr.logger.Check(lr.levels.Return, "← returned: "+rendered); ce != nil {
		ce.Write(zap.String("execution", string(id)))
	}
	lr.Recorder.ExitWithReturn(ctx, rendered)
}

func (lr *logRecorder) ExitWithError(ctx context.Context, err error, errorContext string) {
	id, _ := lr.adjustDepth(ctx, -1)
	var sb strings.Builder
	sb.WriteString("!! ")
	sb.WriteString(ErrorType(err))
	sb.WriteString(": ")
	sb.WriteString(ErrorMessage(err))
	if errorContext != "" {
		sb.WriteString(" [")
		sb.WriteString(errorContext)
		sb.WriteString("]")
	}
	if ce := lr.logger.Check(lr.levels.Error, sb.String()); ce != nil {
		ce.Write(zap.Error(err), zap.String("execution", string(id)))
	}
	lr.Recorder.ExitWithError(ctx, err, errorContext)
}

func (lr *logRecorder) Reset(ctx context.Context) {
	if id, ok := ExecutionFrom(ctx); ok {
		lr.mtx.Lock()
		delete(lr.depths, id)
		lr.mtx.Unlock()
	}
	lr.Recorder.Reset(ctx)
}

// adjustDepth applies delta to the depth of the execution in the context, and
// returns the execution ID and the depth after an increment, or before a
// decrement. Depth never goes below zero.
func (lr *logRecorder) adjustDepth(ctx context.Context, delta int) (ExecutionID, int) {
	id, _ := ExecutionFrom(ctx)

	lr.mtx.Lock()
	defer lr.mtx.Unlock()

	current := lr.depths[id]
	next := current + delta
	switch {
	case next <= 0:
		delete(lr.depths, id)
	default:
		lr.depths[id] = next
	}

	if delta > 0 {
		return id, next
	}
	return id, current
}
