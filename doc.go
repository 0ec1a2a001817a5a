// Package ntrc records narrative call trees: the nested sequence of method
// calls made while serving a request or running a test, along with their
// parameters, outcomes, and timings, in a form that can be rendered as prose,
// diagrams, or JSON for human review.
//
// The basic idea is that an instrumentation boundary, like a hand-written
// wrapper or an HTTP middleware, reports every call to a [Recorder] via EnterMethod and a matching ExitWithReturn or ExitWithError.
// The recorder maintains a call stack per logical execution, decides what to
// keep according to a configured [Level], and assembles completed calls into
// an immutable [Tree], which is read out via CaptureTrace.
//
// Logical executions are identified by an [ExecutionID] carried in the
// context. Each execution owns exactly one stack, so concurrent executions
// never observe each other's calls. Use [NewExecution] to mint an execution
// for each request, test, or goroutine that should produce its own trace, and
// [Snapshot] to give an asynchronous task an isolated trace without
// disturbing the caller's.
//
// Tracing must never be the reason traced code fails. Mismatched exits,
// orphaned calls without an execution, and level changes in the middle of a
// call are all tolerated silently.
//
// Most applications should not call the recorder directly, and should instead
// use [github.com/peterbourgon/ntrc/ntrcinst], which renders parameters,
// resolves narration templates, and pairs entries with exits.
package ntrc
