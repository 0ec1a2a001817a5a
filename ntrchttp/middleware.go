// Package ntrchttp captures a trace for each HTTP request, and serves recently
// captured traces over HTTP.
package ntrchttp

import (
	"net/http"
	"time"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"go.uber.org/zap"
)

// Middleware decorates an HTTP handler so that each request runs in a new
// execution of the recorder. The execution starts from a clean state, and when
// the request completes, a non-empty trace is passed to the exporter along
// with basic request metadata, and the execution's state is discarded. This
// happens even if the handler panics.
//
// If the recorder isn't active when a request arrives, the request is served
// without a new execution. A panicking exporter is recovered and logged to the
// logger, which may be nil.
func Middleware(rec ntrc.Recorder, exporter ntrcexport.Exporter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rec.IsActive() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := ntrc.NewExecution(r.Context())
			rec.Reset(ctx)

			iw := newInterceptor(w)
			defer func(begin time.Time) {
				defer rec.Reset(ctx)

				tree := rec.CaptureTrace(ctx)
				if tree.IsEmpty() || exporter == nil {
					return
				}

				info := ntrcexport.RequestInfo{
					Method:   r.Method,
					URI:      r.URL.RequestURI(),
					Status:   iw.Code(),
					Duration: time.Since(begin),
				}

				defer func() {
					if x := recover(); x != nil {
						logger.Error("export panicked", zap.Stringer("request", info), zap.Any("panic", x))
					}
				}()

				exporter.Export(ctx, tree, info)
			}(time.Now())

			next.ServeHTTP(iw, r.WithContext(ctx))
		})
	}
}

//
//
//

type interceptor struct {
	http.ResponseWriter

	code int
	n    int
}

func newInterceptor(w http.ResponseWriter) *interceptor {
	return &interceptor{ResponseWriter: w}
}

func (i *interceptor) WriteHeader(code int) {
	if i.code == 0 {
		i.code = code
	}
	i.ResponseWriter.WriteHeader(code)
}

func (i *interceptor) Write(p []byte) (int, error) {
	if i.code == 0 {
		i.code = http.StatusOK
	}
	n, err := i.ResponseWriter.Write(p)
	i.n += n
	return n, err
}

// Flush implements http.Flusher, if the wrapped writer supports it.
func (i *interceptor) Flush() {
	if f, ok := i.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (i *interceptor) Unwrap() http.ResponseWriter {
	return i.ResponseWriter
}

func (i *interceptor) Code() int {
	if i.code == 0 {
		return http.StatusOK
	}
	return i.code
}

func (i *interceptor) Written() int {
	return i.n
}
