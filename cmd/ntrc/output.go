package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/internal/ntrcutil"
	"github.com/peterbourgon/ntrc/ntrcexport"
	"github.com/peterbourgon/ntrc/ntrcrender"
	"github.com/peterbourgon/ntrc/ntrctmpl"
)

// writeTrace writes the tree to w in the given format. MessagePack output is
// summarized by its size rather than written to the terminal.
func writeTrace(w io.Writer, tree *ntrc.Tree, format string, color bool, md ntrcexport.Metadata) error {
	switch format {
	case "text", "":
		_, err := fmt.Fprintln(w, ntrcrender.Text(tree, ntrcrender.Options{Color: color}))
		return err

	case "prose":
		_, err := fmt.Fprintln(w, ntrcrender.Prose(tree))
		return err

	case "json":
		buf, err := ntrcexport.JSONDocument(tree, md)
		if err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", buf)
		return err

	case "msgpack":
		var buf bytes.Buffer
		if err := ntrcexport.WriteMsgpack(&buf, tree); err != nil {
			return fmt.Errorf("encode msgpack: %w", err)
		}
		_, err := fmt.Fprintf(w, "msgpack: %d events, %s\n", len(ntrcexport.Events(tree)), ntrcutil.HumanizeBytes(buf.Len()))
		return err

	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// writeWarnings writes any unresolved template placeholders in the tree to w.
func writeWarnings(w io.Writer, tree *ntrc.Tree) {
	if warnings := ntrctmpl.Warnings(tree); len(warnings) > 0 {
		fmt.Fprint(w, ntrctmpl.FormatWarnings(warnings))
	}
}
