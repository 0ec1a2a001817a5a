// Package ntrcexport converts trace trees into flat, machine-readable event
// streams, and delivers them to exporters at request boundaries.
package ntrcexport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/peterbourgon/ntrc"
)

// Event types.
const (
	EventEnter = "enter"
	EventExit  = "exit"
	EventError = "error"
)

// Event is a single entry or exit in a flattened trace. Every call produces
// an enter event, followed by the events of its children, followed by either
// an exit or an error event. IDs are assigned in emission order, starting at
// 1; ParentID refers to the ID of the enter event of the parent call, and is
// nil for root calls.
type Event struct {
	ID           int        `json:"id"`
	Type         string     `json:"type"`
	Class        string     `json:"class"`
	Method       string     `json:"method"`
	Narration    string     `json:"narration,omitempty"`
	Params       Params     `json:"params,omitempty"`
	ReturnValue  *string    `json:"returnValue,omitempty"`
	Error        *ErrorInfo `json:"error,omitempty"`
	ErrorContext string     `json:"errorContext,omitempty"`
	DurationMs   *int64     `json:"durationMs,omitempty"`
	Depth        int        `json:"depth"`
	ParentID     *int       `json:"parentId"`
}

// ErrorInfo describes the error of an error event.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Events flattens the tree into events, depth-first, in call order.
func Events(tree *ntrc.Tree) []Event {
	var (
		events []Event
		nextID = 1
	)

	var flatten func(n *ntrc.Node, depth int, parentID *int)
	flatten = func(n *ntrc.Node, depth int, parentID *int) {
		sig := n.Signature

		enterID := nextID
		nextID++
		events = append(events, Event{
			ID:        enterID,
			Type:      EventEnter,
			Class:     sig.Class,
			Method:    sig.Method,
			Narration: sig.Narration,
			Params:    paramsFrom(sig.Parameters),
			Depth:     depth,
			ParentID:  parentID,
		})

		for _, child := range n.Children {
			flatten(child, depth+1, &enterID)
		}

		durationMs := n.Duration.Milliseconds()
		exit := Event{
			ID:         nextID,
			Class:      sig.Class,
			Method:     sig.Method,
			DurationMs: &durationMs,
			Depth:      depth,
			ParentID:   parentID,
		}
		nextID++

		switch o := n.Outcome.(type) {
		case ntrc.Returned:
			v := o.Value
			exit.Type = EventExit
			exit.ReturnValue = &v
		case ntrc.Threw:
			exit.Type = EventError
			exit.Error = &ErrorInfo{Type: ntrc.ErrorType(o.Err), Message: ntrc.ErrorMessage(o.Err)}
			exit.ErrorContext = sig.ErrorContext
		default: // incomplete node, constructed by hand
			exit.Type = EventExit
		}
		events = append(events, exit)
	}

	for _, root := range tree.Roots() {
		flatten(root, 0, nil)
	}
	return events
}

//
//
//

// Param is a single parameter of an enter event. Value is nil if the value
// was suppressed by the capture level. Redacted values are the redaction
// marker.
type Param struct {
	Name  string
	Value *string
}

// Params are encoded as an object of parameter names to values, preserving
// parameter order.
type Params []Param

func paramsFrom(params []ntrc.Parameter) Params {
	if len(params) <= 0 {
		return nil
	}
	ps := make(Params, len(params))
	for i, p := range params {
		ps[i] = Param{Name: p.Name}
		if v := p.Display(); v != "" {
			ps[i].Value = &v
		}
	}
	return ps
}

// MarshalJSON implements json.Marshaler.
func (ps Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (ps *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("params: want object, have %v", tok)
	}

	var result Params
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("params: want name, have %v", tok)
		}
		var value *string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("params: %s: %w", name, err)
		}
		result = append(result, Param{Name: name, Value: value})
	}

	*ps = result
	return nil
}
