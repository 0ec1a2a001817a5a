// Package ntrcrender renders trace trees as human-readable text.
package ntrcrender

import (
	"strings"

	"github.com/fatih/color"
	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/internal/ntrcutil"
)

// Options for text rendering.
type Options struct {
	// Color output with ANSI escape codes, regardless of the terminal.
	Color bool

	// HideDurations omits call durations, which is useful when the output
	// must be stable, e.g. in golden files.
	HideDurations bool
}

// Text renders the tree as an indented call tree, one call per line.
//
//	OrderService.place(id: "A-1", card: [REDACTED])
//	│   // Placing order A-1
//	├── Inventory.reserve(sku: "apple") → true (1.2ms)
//	├── Payment.charge(amount: 5) !! DeclinedError: card declined | payment for A-1 failed (3ms)
//	└── !! DeclinedError: card declined (4.5ms)
//
// Leaf calls show their outcome inline. Calls with children show their
// outcome on a closing line after the children.
func Text(tree *ntrc.Tree, opts Options) string {
	tr := newTextRenderer(opts)
	for _, root := range tree.Roots() {
		tr.node(root, "", "")
	}
	return strings.TrimRight(tr.sb.String(), " \n")
}

type textRenderer struct {
	opts Options
	sb   strings.Builder

	header    func(a ...any) string
	narration func(a ...any) string
	returned  func(a ...any) string
	threw     func(a ...any) string
	duration  func(a ...any) string
}

func newTextRenderer(opts Options) *textRenderer {
	colorizer := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return &textRenderer{
		opts:      opts,
		header:    colorizer(color.Bold),
		narration: colorizer(color.FgCyan),
		returned:  colorizer(color.FgGreen),
		threw:     colorizer(color.FgRed),
		duration:  colorizer(color.Faint),
	}
}

func (tr *textRenderer) node(n *ntrc.Node, linePrefix, contPrefix string) {
	tr.sb.WriteString(linePrefix)
	tr.sb.WriteString(tr.header(n.Signature.String()))

	if len(n.Children) <= 0 {
		tr.sb.WriteByte(' ')
		tr.outcome(n)
		tr.durationSuffix(n)
		tr.sb.WriteByte('\n')
		return
	}

	tr.sb.WriteByte('\n')
	if n.Signature.Narration != "" {
		tr.sb.WriteString(contPrefix)
		tr.sb.WriteString("│   ")
		tr.sb.WriteString(tr.narration("// " + n.Signature.Narration))
		tr.sb.WriteByte('\n')
	}
	for _, child := range n.Children {
		tr.node(child, contPrefix+"├── ", contPrefix+"│   ")
	}
	tr.sb.WriteString(contPrefix)
	tr.sb.WriteString("└── ")
	tr.outcome(n)
	tr.durationSuffix(n)
	tr.sb.WriteByte('\n')
}

func (tr *textRenderer) outcome(n *ntrc.Node) {
	switch o := n.Outcome.(type) {
	case ntrc.Returned:
		tr.sb.WriteString(tr.returned(returnedText(o)))
	case ntrc.Threw:
		tr.sb.WriteString(tr.threw(threwText(o, n.Signature.ErrorContext)))
	default:
		tr.sb.WriteString("?")
	}
}

func (tr *textRenderer) durationSuffix(n *ntrc.Node) {
	if tr.opts.HideDurations || n.Duration <= 0 {
		return
	}
	tr.sb.WriteString(tr.duration(" (" + ntrcutil.HumanizeDuration(n.Duration) + ")"))
}

func returnedText(r ntrc.Returned) string {
	if r.Value == "" {
		return "→ ok"
	}
	return "→ " + r.Value
}

func threwText(t ntrc.Threw, errorContext string) string {
	s := "!! " + ntrc.ErrorType(t.Err) + ": " + ntrc.ErrorMessage(t.Err)
	if errorContext != "" {
		s += " | " + errorContext
	}
	return s
}
