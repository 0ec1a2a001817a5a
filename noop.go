package ntrc

import "context"

// Noop is a recorder which does nothing. It's meant for when tracing is fully
// disabled: every operation is inert, CaptureTrace always returns the shared
// empty tree, and nothing is allocated.
var Noop Recorder = noopRecorder{}

type noopRecorder struct{}

// IsActive implements Recorder, and always returns false.
func (noopRecorder) IsActive() bool { return false }

// EnterMethod implements Recorder, but does nothing.
func (noopRecorder) EnterMethod(context.Context, Signature) { /* no-op */ }

// ExitWithReturn implements Recorder, but does nothing.
func (noopRecorder) ExitWithReturn(context.Context, string) { /* no-op */ }

// ExitWithError implements Recorder, but does nothing.
func (noopRecorder) ExitWithError(context.Context, error, string) { /* no-op */ }

// CaptureTrace implements Recorder, and always returns the empty tree.
func (noopRecorder) CaptureTrace(context.Context) *Tree { return emptyTree }

// Reset implements Recorder, but does nothing.
func (noopRecorder) Reset(context.Context) { /* no-op */ }

// Snapshot implements Recorder, and returns an inert snapshot.
func (noopRecorder) Snapshot() Snapshot { return noopSnapshot{} }

type noopSnapshot struct{}

func (noopSnapshot) Activate(context.Context) Scope { return noopScope{} }

type noopScope struct{}

func (noopScope) Close() { /* no-op */ }
