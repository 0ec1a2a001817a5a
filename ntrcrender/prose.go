package ntrcrender

import (
	"regexp"
	"strings"

	"github.com/peterbourgon/ntrc"
)

// Prose renders the tree as indented sentences, e.g.
//
//	The order service place order for customer: "Alice":
//	  The inventory service reserve, returning true.
//	  Returned "order-1".
//
// Narrated calls use their narration in place of their parameters, unless
// they failed.
func Prose(tree *ntrc.Tree) string {
	var sb strings.Builder
	for _, root := range tree.Roots() {
		proseNode(&sb, root, 0)
	}
	return strings.TrimRight(sb.String(), " \n")
}

func proseNode(sb *strings.Builder, n *ntrc.Node, depth int) {
	var (
		indent  = strings.Repeat("  ", depth)
		sig     = n.Signature
		errored = n.Errored()
	)

	sb.WriteString(indent)
	sb.WriteString("The ")
	sb.WriteString(phrase(sig.Class))
	sb.WriteByte(' ')
	if errored {
		sb.WriteString("failed to ")
	}
	sb.WriteString(phrase(sig.Method))

	switch {
	case sig.Narration != "" && !errored:
		sb.WriteString(": ")
		sb.WriteString(sig.Narration)
	case len(sig.Parameters) > 0:
		sb.WriteString(" for ")
		for i, p := range sig.Parameters {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(p.Name)
			sb.WriteString(": ")
			sb.WriteString(p.Display())
		}
	}

	if len(n.Children) <= 0 {
		switch o := n.Outcome.(type) {
		case ntrc.Returned:
			if o.Value != "" {
				sb.WriteString(", returning ")
				sb.WriteString(o.Value)
			}
		case ntrc.Threw:
			sb.WriteString(", with ")
			sb.WriteString(ntrc.ErrorType(o.Err))
			sb.WriteString(": ")
			sb.WriteString(ntrc.ErrorMessage(o.Err))
			if sig.ErrorContext != "" {
				sb.WriteString(" (")
				sb.WriteString(sig.ErrorContext)
				sb.WriteString(")")
			}
		}
		sb.WriteString(".\n")
		return
	}

	sb.WriteString(":\n")
	for _, child := range n.Children {
		proseNode(sb, child, depth+1)
	}

	switch o := n.Outcome.(type) {
	case ntrc.Returned:
		if o.Value != "" {
			sb.WriteString(indent)
			sb.WriteString("  Returned ")
			sb.WriteString(o.Value)
			sb.WriteString(".\n")
		}
	case ntrc.Threw:
		sb.WriteString(indent)
		sb.WriteString("  ")
		sb.WriteString(ntrc.ErrorType(o.Err))
		sb.WriteString(": ")
		sb.WriteString(ntrc.ErrorMessage(o.Err))
		sb.WriteString(".\n")
	}
}

var wordBoundaryRegexp = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// phrase splits a camel case identifier into lower case words, e.g.
// "OrderService" becomes "order service".
func phrase(s string) string {
	return strings.ToLower(wordBoundaryRegexp.ReplaceAllString(s, "$1 $2"))
}
