package ntrc

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionID identifies a logical execution: one request, one test, or one
// asynchronous task. Every execution owns exactly one call stack per recorder.
type ExecutionID string

// NewExecution mints a new execution ID, and injects it into the context. If
// the context already contained an execution, it becomes "shadowed" by the
// new one, and calls made with the returned context are recorded separately.
func NewExecution(ctx context.Context) context.Context {
	return WithExecution(ctx, newExecutionID())
}

// WithExecution injects the given execution ID into the context.
func WithExecution(ctx context.Context, id ExecutionID) context.Context {
	return context.WithValue(ctx, executionContextVal, id)
}

// ExecutionFrom returns the execution ID in the context, if it exists.
func ExecutionFrom(ctx context.Context) (ExecutionID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(executionContextVal).(ExecutionID)
	return id, ok && id != ""
}

type executionContextKey struct{}

var executionContextVal executionContextKey

var executionIDEntropy = ulid.DefaultEntropy()

func newExecutionID() ExecutionID {
	return ExecutionID(ulid.MustNew(ulid.Timestamp(time.Now()), executionIDEntropy).String())
}
