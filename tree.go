package ntrc

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Node is a single completed call in a trace tree. Children are the calls
// made while this call was on top of the stack, in call order.
//
// Nodes are constructed by the recorder when a call completes, and are never
// modified afterwards. Callers must treat them as read-only.
type Node struct {
	Signature Signature
	Children  []*Node
	Outcome   Outcome
	Duration  time.Duration
}

// DurationNanos returns the duration of the call in nanoseconds.
func (n *Node) DurationNanos() int64 {
	return n.Duration.Nanoseconds()
}

// Errored returns true if the call completed with an error.
func (n *Node) Errored() bool {
	_, ok := n.Outcome.(Threw)
	return ok
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonNodeFrom(n))
}

type jsonNode struct {
	Signature Signature      `json:"signature"`
	Outcome   jsonOutcome    `json:"outcome"`
	Duration  durationString `json:"duration"`
	Children  []*Node        `json:"children,omitempty"`
}

type jsonOutcome struct {
	Returned *string    `json:"returned,omitempty"`
	Threw    *jsonError `json:"threw,omitempty"`
}

type jsonError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func jsonNodeFrom(n *Node) jsonNode {
	jn := jsonNode{
		Signature: n.Signature,
		Duration:  durationString(n.Duration),
		Children:  n.Children,
	}
	switch o := n.Outcome.(type) {
	case Returned:
		v := o.Value
		jn.Outcome.Returned = &v
	case Threw:
		jn.Outcome.Threw = &jsonError{Type: ErrorType(o.Err), Message: ErrorMessage(o.Err)}
	}
	return jn
}

//
//
//

// Tree is an immutable trace: the completed root calls of a logical
// execution, in call order. It's safe to traverse a tree from any goroutine,
// even while the execution it was captured from continues to run.
type Tree struct {
	roots []*Node
}

var emptyTree = &Tree{}

// EmptyTree returns the single, shared empty tree.
func EmptyTree() *Tree {
	return emptyTree
}

// NewTree returns a tree with the given roots. The slice is copied.
func NewTree(roots []*Node) *Tree {
	if len(roots) <= 0 {
		return emptyTree
	}
	return &Tree{roots: slices.Clone(roots)}
}

// Roots returns a copy of the root nodes of the tree.
func (t *Tree) Roots() []*Node {
	if t == nil {
		return nil
	}
	return slices.Clone(t.roots)
}

// IsEmpty returns true if the tree has no roots.
func (t *Tree) IsEmpty() bool {
	return t == nil || len(t.roots) <= 0
}

// Len returns the total number of nodes in the tree.
func (t *Tree) Len() int {
	var n int
	t.Walk(func(*Node, int) bool { n++; return true })
	return n
}

// Walk visits every node in the tree depth-first, parents before children,
// passing the depth of each node (0 for roots). If fn returns false, the
// children of that node are skipped.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	if t == nil {
		return
	}
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(t.roots, 0)
}

// MarshalJSON implements json.Marshaler.
func (t *Tree) MarshalJSON() ([]byte, error) {
	roots := t.Roots()
	if roots == nil {
		roots = []*Node{}
	}
	return json.Marshal(struct {
		Roots []*Node `json:"roots"`
	}{
		Roots: roots,
	})
}

//
//
//

// durationString is a time.Duration which JSON marshals as a string.
type durationString time.Duration

// MarshalJSON implements json.Marshaler.
func (d durationString) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *durationString) UnmarshalJSON(data []byte) error {
	dur, err := time.ParseDuration(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = durationString(dur)
	return nil
}
