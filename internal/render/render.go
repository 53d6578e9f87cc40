package render

import (
	"fmt"
	"io"
)

// Options controls Write.
type Options struct {
	// Color enables terminal highlighting of text dumps.
	Color bool
	// Width renders markdown for a terminal of that many columns; zero
	// writes plain markdown.
	Width int
}

// Write renders rep in the named format: text, json, cbor or markdown.
func Write(w io.Writer, format string, rep Report, opts Options) error {
	switch format {
	case "", "text":
		return Text(w, rep, opts.Color)
	case "json":
		return JSON(w, rep)
	case "cbor":
		return CBOR(w, rep)
	case "markdown", "md":
		return Markdown(w, rep, opts.Width)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
