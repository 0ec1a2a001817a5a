package ntrchttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/bernerdschaefer/eventsource"
	"github.com/peterbourgon/ntrc/internal/ntrcutil"
	"github.com/peterbourgon/ntrc/ntrcrender"
	"go.uber.org/zap"
)

const (
	defaultTraceCount = 10
	maxTraceCount     = 1000
	defaultStreamBuf  = 10
	maxStreamBuf      = 1000
)

// Handler serves the traces retained by a Recent.
//
//	GET /traces          most recent traces, as JSON or text/plain
//	GET /traces/stream   new traces as server-sent events
type Handler struct {
	recent *Recent
	logger *zap.Logger
	mux    *http.ServeMux
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a handler for the traces in recent. A nil logger is
// replaced by a no-op logger.
func NewHandler(recent *Recent, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		recent: recent,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /traces", h.handleTraces)
	h.mux.HandleFunc("GET /traces/stream", h.handleStream)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// TracesResponse is the JSON body returned by GET /traces.
type TracesResponse struct {
	Total  int      `json:"total"`
	Traces []*Trace `json:"traces"`
}

func (h *Handler) handleTraces(w http.ResponseWriter, r *http.Request) {
	var (
		n      = parseRange(r.URL.Query().Get("n"), strconv.Atoi, 1, defaultTraceCount, maxTraceCount)
		traces = h.recent.Traces(n)
	)

	if requestExplicitlyAccepts(r, "text/plain") {
		renderText(w, traces)
		return
	}

	renderJSON(w, h.logger, TracesResponse{
		Total:  h.recent.Len(),
		Traces: traces,
	})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if !requestExplicitlyAccepts(r, "text/event-stream") {
		http.Error(w, "request must Accept: text/event-stream", http.StatusPreconditionRequired)
		return
	}

	var (
		ctx    = r.Context()
		buf    = parseRange(r.URL.Query().Get("buf"), strconv.Atoi, 0, defaultStreamBuf, maxStreamBuf)
		ch     = make(chan *Trace, buf)
		logger = h.logger.With(zap.String("remote_addr", r.RemoteAddr))
	)

	unsubscribe, err := h.recent.subscribe(ch)
	if err != nil {
		http.Error(w, fmt.Sprintf("subscribe: %v", err), http.StatusInternalServerError)
		return
	}

	logger.Debug("stream subscribed", zap.Int("buf", buf))

	defer func() {
		stats := unsubscribe()
		logger.Debug("stream unsubscribed",
			zap.Uint64("skips", stats.Skips),
			zap.Uint64("sends", stats.Sends),
			zap.Uint64("drops", stats.Drops),
		)
	}()

	eventsource.Handler(func(lastID string, enc *eventsource.Encoder, stop <-chan bool) {
		var seq uint64
		for {
			select {
			case tr := <-ch:
				data, err := json.Marshal(tr)
				if err != nil {
					logger.Error("marshal trace", zap.Error(err))
					continue
				}
				seq++
				if err := enc.Encode(eventsource.Event{
					Type: "trace",
					ID:   strconv.FormatUint(seq, 10),
					Data: data,
				}); err != nil {
					logger.Debug("encode trace", zap.Error(err))
					return
				}

			case <-ctx.Done():
				return

			case <-stop:
				return
			}
		}
	}).ServeHTTP(w, r)
}

//
//
//

func renderJSON(w http.ResponseWriter, logger *zap.Logger, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")

	code := http.StatusOK
	if err := enc.Encode(data); err != nil {
		code = http.StatusInternalServerError
		logger.Error("marshal JSON", zap.Error(err))
		buf.Reset()
		buf.WriteString(`{"error":"failed to marshal response"}`)
	} else {
		logger.Debug("marshaled JSON response", zap.String("size", ntrcutil.HumanizeBytes(buf.Len())))
	}

	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

func renderText(w http.ResponseWriter, traces []*Trace) {
	var sb strings.Builder
	for i, tr := range traces {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %s\n", tr.ID, tr.Request)
		sb.WriteString(ntrcrender.Text(tr.Tree(), ntrcrender.Options{}))
		sb.WriteString("\n")
	}

	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sb.String()))
}

func requestExplicitlyAccepts(r *http.Request, acceptable ...string) bool {
	accept := parseAcceptMediaTypes(r)
	for _, want := range acceptable {
		if _, ok := accept[want]; ok {
			return true
		}
	}
	return false
}

func parseAcceptMediaTypes(r *http.Request) map[string]map[string]string {
	mediaTypes := map[string]map[string]string{} // type: params
	for _, a := range strings.Split(r.Header.Get("accept"), ",") {
		mediaType, params, err := mime.ParseMediaType(a)
		if err != nil {
			continue
		}
		mediaTypes[mediaType] = params
	}
	return mediaTypes
}

func parseRange[T int](s string, parse func(string) (T, error), min, def, max T) T {
	v, err := parse(s)
	switch {
	case err != nil:
		return def
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
