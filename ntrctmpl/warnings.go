package ntrctmpl

import (
	"strings"

	"github.com/peterbourgon/ntrc"
)

// Warning is a placeholder that remained unresolved in a captured call.
type Warning struct {
	Class       string
	Method      string
	Placeholder string // inner text, e.g. "order.id"
	Field       string // "narration" or "error_context"
}

// Warnings walks the tree and returns a warning for every unresolved
// placeholder in the narration and error context of every call, in tree
// order.
func Warnings(tree *ntrc.Tree) []Warning {
	var warnings []Warning
	tree.Walk(func(n *ntrc.Node, _ int) bool {
		sig := n.Signature
		for _, p := range FindUnresolved(sig.Narration) {
			warnings = append(warnings, Warning{sig.Class, sig.Method, p, "narration"})
		}
		for _, p := range FindUnresolved(sig.ErrorContext) {
			warnings = append(warnings, Warning{sig.Class, sig.Method, p, "error_context"})
		}
		return true
	})
	return warnings
}

// FormatWarnings renders warnings as a human-readable block, suitable for a
// console. It returns the empty string if there are no warnings.
func FormatWarnings(warnings []Warning) string {
	if len(warnings) <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("WARNING: unresolved template placeholders:\n")
	for _, w := range warnings {
		sb.WriteString("  - ")
		sb.WriteString(ntrc.Signature{Class: w.Class, Method: w.Method}.Name())
		sb.WriteString(": {")
		sb.WriteString(w.Placeholder)
		sb.WriteString("} in ")
		sb.WriteString(w.Field)
		sb.WriteString("\n")
	}
	return sb.String()
}
