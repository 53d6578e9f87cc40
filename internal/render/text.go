package render

import (
	"fmt"
	"io"
	"strings"

	"unstack/internal/ui/colorize"
)

// Text writes each unit's forest as a tree dump, followed by any findings.
func Text(w io.Writer, rep Report, color bool) error {
	for i, u := range rep.Units {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if u.Error != "" {
			if _, err := fmt.Fprintf(w, "%s: error: %s\n", u.Name, u.Error); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s:\n", u.Name); err != nil {
			return err
		}
		dump := UnitDump(u)
		if color {
			if colored, err := colorize.ColorizeTree(dump); err == nil {
				dump = colored
			}
		}
		if _, err := io.WriteString(w, dump); err != nil {
			return err
		}
	}

	if len(rep.Findings) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	for _, f := range rep.Findings {
		if _, err := fmt.Fprintf(w, "%s: %s %s at offset %d: %s [%s]\n", f.Severity, f.Unit, f.Op, f.Offset, f.Message, f.Check); err != nil {
			return err
		}
	}
	return nil
}

// UnitDump is the dump of every top-level command of u, separated by
// blank lines.
func UnitDump(u Unit) string {
	var sb strings.Builder
	for i, cmd := range u.forest {
		if i > 0 {
			sb.WriteString("\n")
		}
		_ = cmd.Dump(&sb)
	}
	return sb.String()
}
