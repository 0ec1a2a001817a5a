package ntrchttp

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/internal/ntrcpubsub"
	"github.com/peterbourgon/ntrc/internal/ntrcringbuf"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"github.com/peterbourgon/ntrc/ntrcrender"
)

// Trace is a captured trace as retained by Recent.
type Trace struct {
	ID       ulid.ULID              `json:"id"`
	Request  ntrcexport.RequestInfo `json:"request"`
	Captured time.Time              `json:"captured"`
	Events   []ntrcexport.Event     `json:"events"`
	Text     string                 `json:"text"`

	tree *ntrc.Tree
}

// Tree returns the captured tree. Traces decoded from JSON have an empty tree,
// but keep their events and text.
func (tr *Trace) Tree() *ntrc.Tree {
	if tr.tree == nil {
		return ntrc.EmptyTree()
	}
	return tr.tree
}

// Recent is an exporter which retains the most recent traces in memory, and
// publishes every new trace to stream subscribers.
type Recent struct {
	ring   *ntrcringbuf.Ring[*Trace]
	broker *ntrcpubsub.Broker[*Trace]
}

var _ ntrcexport.Exporter = (*Recent)(nil)

// DefaultRecentCapacity is used when NewRecent is given a capacity below 1.
const DefaultRecentCapacity = 100

// NewRecent returns an empty Recent retaining up to capacity traces.
func NewRecent(capacity int) *Recent {
	if capacity < 1 {
		capacity = DefaultRecentCapacity
	}
	return &Recent{
		ring:   ntrcringbuf.New[*Trace](capacity),
		broker: ntrcpubsub.NewBroker[*Trace](),
	}
}

// Export implements ntrcexport.Exporter.
func (rt *Recent) Export(ctx context.Context, tree *ntrc.Tree, info ntrcexport.RequestInfo) {
	now := time.Now().UTC()
	tr := &Trace{
		ID:       ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Request:  info,
		Captured: now,
		Events:   ntrcexport.Events(tree),
		Text:     ntrcrender.Text(tree, ntrcrender.Options{HideDurations: true}),
		tree:     tree,
	}
	rt.ring.Add(tr)
	rt.broker.Publish(tr)
}

// Traces returns up to n of the most recent traces, newest first. If n is less
// than 1, every retained trace is returned.
func (rt *Recent) Traces(n int) []*Trace {
	return rt.ring.Recent(n)
}

// Len returns the number of retained traces.
func (rt *Recent) Len() int {
	return rt.ring.Len()
}

func (rt *Recent) subscribe(ch chan<- *Trace) (func() ntrcpubsub.Stats, error) {
	return rt.broker.Subscribe(ch, nil)
}

// Subscribers returns the number of active stream subscribers.
func (rt *Recent) Subscribers() int {
	return rt.broker.Subscribers()
}
