package ntrchttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"github.com/peterbourgon/ntrc/ntrchttp"
	"go.uber.org/goleak"
)

func sampleTree(method string) *ntrc.Tree {
	return ntrc.NewTree([]*ntrc.Node{{
		Signature: ntrc.Signature{Class: "Order", Method: method},
		Outcome:   ntrc.Returned{Value: `"ok"`},
	}})
}

func TestRecent(t *testing.T) {
	t.Parallel()

	recent := ntrchttp.NewRecent(2)
	for _, method := range []string{"a", "b", "c"} {
		recent.Export(context.Background(), sampleTree(method), ntrcexport.RequestInfo{Method: "GET", URI: "/" + method})
	}

	AssertEqual(t, 2, recent.Len())

	traces := recent.Traces(0)
	AssertEqual(t, 2, len(traces))
	AssertEqual(t, "/c", traces[0].Request.URI)
	AssertEqual(t, "/b", traces[1].Request.URI)
	AssertEqual(t, "c", traces[0].Events[0].Method)
	AssertEqual(t, 1, traces[0].Tree().Len())
	AssertEqual(t, true, traces[1].ID.Compare(traces[0].ID) <= 0)
}

func TestHandlerTracesJSON(t *testing.T) {
	t.Parallel()

	recent := ntrchttp.NewRecent(10)
	for _, method := range []string{"a", "b", "c"} {
		recent.Export(context.Background(), sampleTree(method), ntrcexport.RequestInfo{Method: "GET", URI: "/" + method, Status: 200})
	}
	handler := ntrchttp.NewHandler(recent, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/traces?n=2", nil))
	AssertEqual(t, http.StatusOK, w.Code)
	AssertEqual(t, "application/json; charset=utf-8", w.Header().Get("content-type"))

	var res ntrchttp.TracesResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, 3, res.Total)
	AssertEqual(t, 2, len(res.Traces))
	AssertEqual(t, "/c", res.Traces[0].Request.URI)
	AssertEqual(t, ntrcexport.EventEnter, res.Traces[0].Events[0].Type)
}

func TestHandlerTracesText(t *testing.T) {
	t.Parallel()

	recent := ntrchttp.NewRecent(10)
	recent.Export(context.Background(), sampleTree("place"), ntrcexport.RequestInfo{Method: "POST", URI: "/orders", Status: 201, Duration: 42 * time.Millisecond})
	handler := ntrchttp.NewHandler(recent, nil)

	r := httptest.NewRequest("GET", "/traces", nil)
	r.Header.Set("Accept", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	body := w.Body.String()
	if want := "POST /orders [201] 42ms\n"; !strings.Contains(body, want) {
		t.Errorf("body %q doesn't contain %q", body, want)
	}
	if want := `Order.place() → "ok"`; !strings.Contains(body, want) {
		t.Errorf("body %q doesn't contain %q", body, want)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	t.Parallel()

	handler := ntrchttp.NewHandler(ntrchttp.NewRecent(1), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("DELETE", "/traces", nil))
	AssertEqual(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandlerStreamRequiresAccept(t *testing.T) {
	t.Parallel()

	handler := ntrchttp.NewHandler(ntrchttp.NewRecent(1), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/traces/stream", nil))
	AssertEqual(t, http.StatusPreconditionRequired, w.Code)
}

func TestHandlerStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		recent      = ntrchttp.NewRecent(10)
		handler     = ntrchttp.NewHandler(recent, nil)
		ctx, cancel = context.WithCancel(context.Background())
		r           = httptest.NewRequest("GET", "/traces/stream", nil).WithContext(ctx)
		w           = &streamWriter{header: http.Header{}}
		done        = make(chan struct{})
	)
	defer cancel()

	r.Header.Set("Accept", "text/event-stream")

	go func() {
		defer close(done)
		handler.ServeHTTP(w, r)
	}()

	waitFor(t, func() bool { return recent.Subscribers() == 1 })

	recent.Export(context.Background(), sampleTree("place"), ntrcexport.RequestInfo{Method: "GET", URI: "/orders"})

	waitFor(t, func() bool { return strings.Contains(w.String(), `"uri":"/orders"`) })

	cancel()
	<-done

	AssertEqual(t, 0, recent.Subscribers())
	AssertEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	if body := w.String(); !strings.Contains(body, `"method":"place"`) {
		t.Errorf("body %q missing trace event", body)
	}
}

type streamWriter struct {
	mtx    sync.Mutex
	header http.Header
	code   int
	buf    bytes.Buffer
}

func (w *streamWriter) Header() http.Header { return w.header }

func (w *streamWriter) WriteHeader(code int) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.code = code
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.buf.Write(p)
}

func (w *streamWriter) Flush() {}

func (w *streamWriter) String() string {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
