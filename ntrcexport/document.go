package ntrcexport

import (
	"encoding/json"
	"io"

	"github.com/peterbourgon/ntrc"
	"github.com/vmihailenco/msgpack/v5"
)

// DocumentVersion is the version of the document format.
const DocumentVersion = "1.0"

// Metadata describes the scenario that produced a trace, e.g. a test case.
type Metadata struct {
	Scenario string
	Result   string // e.g. "passed" or "failed"
}

// Document is a self-describing export of a single trace.
type Document struct {
	Version  string   `json:"version"`
	Scenario Scenario `json:"scenario"`
	Events   []Event  `json:"events"`
}

// Scenario is the scenario section of a document. DurationMs is the duration
// of the first root call, and is nil for empty traces.
type Scenario struct {
	Name       string `json:"name"`
	Result     string `json:"result"`
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// NewDocument returns a document describing the tree.
func NewDocument(tree *ntrc.Tree, md Metadata) Document {
	doc := Document{
		Version:  DocumentVersion,
		Scenario: Scenario{Name: md.Scenario, Result: md.Result},
		Events:   Events(tree),
	}
	if doc.Events == nil {
		doc.Events = []Event{}
	}
	if roots := tree.Roots(); len(roots) > 0 {
		ms := roots[0].Duration.Milliseconds()
		doc.Scenario.DurationMs = &ms
	}
	return doc
}

// JSON returns the compact JSON encoding of the events of the tree, as an
// object with a single "events" key.
func JSON(tree *ntrc.Tree) ([]byte, error) {
	events := Events(tree)
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(struct {
		Events []Event `json:"events"`
	}{
		Events: events,
	})
}

// JSONDocument returns the indented JSON encoding of a document describing
// the tree.
func JSONDocument(tree *ntrc.Tree, md Metadata) ([]byte, error) {
	return json.MarshalIndent(NewDocument(tree, md), "", "  ")
}

//
//
//

// WriteMsgpack writes the events of the tree to w as MessagePack, using the
// same field names as the JSON encoding.
func WriteMsgpack(w io.Writer, tree *ntrc.Tree) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(Events(tree))
}

// ReadMsgpack reads events written by WriteMsgpack.
func ReadMsgpack(r io.Reader) ([]Event, error) {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	var events []Event
	if err := dec.Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}

// EncodeMsgpack implements msgpack.CustomEncoder, encoding params as a map,
// in order.
func (ps Params) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(ps)); err != nil {
		return err
	}
	for _, p := range ps {
		if err := enc.EncodeString(p.Name); err != nil {
			return err
		}
		if p.Value == nil {
			if err := enc.EncodeNil(); err != nil {
				return err
			}
			continue
		}
		if err := enc.EncodeString(*p.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (ps *Params) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n < 0 {
		*ps = nil
		return nil
	}
	result := make(Params, 0, n)
	for i := 0; i < n; i++ {
		name, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var value *string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		result = append(result, Param{Name: name, Value: value})
	}
	*ps = result
	return nil
}

var (
	_ msgpack.CustomEncoder = Params(nil)
	_ msgpack.CustomDecoder = (*Params)(nil)
)

func jsonLine(tree *ntrc.Tree, info RequestInfo) ([]byte, error) {
	events := Events(tree)
	if events == nil {
		events = []Event{}
	}
	buf, err := json.Marshal(struct {
		Request RequestInfo `json:"request"`
		Events  []Event     `json:"events"`
	}{
		Request: info,
		Events:  events,
	})
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}
