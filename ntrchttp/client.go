package ntrchttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"go.uber.org/zap"
)

// StreamClient reads new traces from the stream endpoint of a Handler.
type StreamClient struct {
	// URI of the stream endpoint, e.g. localhost:8080/traces/stream. URIs
	// without a scheme are taken to be http. Required.
	URI string

	// Buffer requested of the server for this subscription. Min 0, max 1000.
	Buffer int

	// RetryInterval between reconnect attempts. Default 3s, min 1s, max 60s.
	RetryInterval time.Duration

	// Logger for connection details. Optional.
	Logger *zap.Logger
}

func (c *StreamClient) initialize() {
	if c.URI != "" && !strings.Contains(c.URI, "://") {
		c.URI = "http://" + c.URI
	}

	if min, max := 0, maxStreamBuf; c.Buffer < min {
		c.Buffer = min
	} else if c.Buffer > max {
		c.Buffer = max
	}

	if def, min, max := 3*time.Second, 1*time.Second, 60*time.Second; c.RetryInterval == 0 {
		c.RetryInterval = def
	} else if c.RetryInterval < min {
		c.RetryInterval = min
	} else if c.RetryInterval > max {
		c.RetryInterval = max
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Stream traces from the server to ch, until the context is canceled or a
// non-recoverable error occurs. Connection failures, server errors, and broken
// streams are recoverable: the client waits RetryInterval and reconnects.
func (c *StreamClient) Stream(ctx context.Context, ch chan<- *Trace) error {
	c.initialize()

	uri, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("parse URI: %w", err)
	}
	query := uri.Query()
	if c.Buffer > 0 {
		query.Set("buf", strconv.Itoa(c.Buffer))
	}
	uri.RawQuery = query.Encode()

	for {
		err := c.stream(ctx, uri.String(), ch)

		var fatal *unrecoverableError
		switch {
		case ctx.Err() != nil:
			c.Logger.Debug("stream closed", zap.String("uri", c.URI))
			return nil
		case err == nil:
			c.Logger.Debug("stream finished by server", zap.String("uri", c.URI))
			return nil
		case errors.As(err, &fatal):
			return fatal.err
		}

		c.Logger.Debug("stream interrupted", zap.String("uri", c.URI), zap.Error(err), zap.Duration("retry", c.RetryInterval))

		select {
		case <-ctx.Done():
			c.Logger.Debug("stream closed", zap.String("uri", c.URI))
			return nil
		case <-time.After(c.RetryInterval):
		}
	}
}

type unrecoverableError struct{ err error }

func (e *unrecoverableError) Error() string { return e.err.Error() }

func (e *unrecoverableError) Unwrap() error { return e.err }

func unrecoverable(format string, args ...any) error {
	return &unrecoverableError{err: fmt.Errorf(format, args...)}
}

// stream makes a single connection and reads traces from it until the
// connection breaks or the context is canceled. A nil error means the server
// ended the stream with 204 No Content.
func (c *StreamClient) stream(ctx context.Context, uri string, ch chan<- *Trace) error {
	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return unrecoverable("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("server returned %s", resp.Status)
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode != http.StatusOK:
		return unrecoverable("server returned unrecoverable status %s", resp.Status)
	}

	if mediatype, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediatype != "text/event-stream" {
		return unrecoverable("invalid content type %q", resp.Header.Get("Content-Type"))
	}

	c.Logger.Debug("stream connected", zap.String("uri", uri))

	dec := eventsource.NewDecoder(resp.Body)
	for {
		var ev eventsource.Event
		err := dec.Decode(&ev)
		if errors.Is(err, eventsource.ErrInvalidEncoding) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}
		if len(ev.Data) == 0 {
			continue
		}

		switch ev.Type {
		case "trace":
			var tr Trace
			if err := json.Unmarshal(ev.Data, &tr); err != nil {
				return unrecoverable("decode trace event: %w", err)
			}
			select {
			case ch <- &tr:
			case <-ctx.Done():
				return ctx.Err()
			}

		default:
			c.Logger.Debug("unknown event type", zap.String("type", ev.Type))
		}
	}
}
