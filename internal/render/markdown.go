package render

import (
	"fmt"
	"io"
	"strings"

	"unstack/internal/unstack/styles"
)

// MarkdownSource builds the markdown report: a summary table, one section
// per unit with its dump, and the findings.
func MarkdownSource(rep Report) string {
	var sb strings.Builder
	sb.WriteString("# Reconstruction report\n\n")
	sb.WriteString("| Unit | Instructions | Commands | Status |\n")
	sb.WriteString("|---|---:|---:|---|\n")
	for _, u := range rep.Units {
		status := "ok"
		if u.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(&sb, "| `%s` | %d | %d | %s |\n", u.Name, u.Instructions, u.CommandCount(), status)
	}

	for _, u := range rep.Units {
		fmt.Fprintf(&sb, "\n## `%s`\n\n", u.Name)
		if u.Error != "" {
			fmt.Fprintf(&sb, "*%s*\n", u.Error)
			continue
		}
		sb.WriteString("```text\n")
		sb.WriteString(UnitDump(u))
		sb.WriteString("```\n")
	}

	if len(rep.Findings) > 0 {
		sb.WriteString("\n## Findings\n\n")
		for _, f := range rep.Findings {
			fmt.Fprintf(&sb, "- **%s** `%s` `%s` at offset %d: %s (%s)\n", f.Severity, f.Unit, f.Op, f.Offset, f.Message, f.Check)
		}
	}
	return sb.String()
}

// Markdown writes the report, rendered for the terminal when width is
// positive and as plain markdown otherwise.
func Markdown(w io.Writer, rep Report, width int) error {
	md := MarkdownSource(rep)
	if width > 0 {
		md = styles.RenderMarkdown(md, width)
	}
	_, err := io.WriteString(w, md)
	return err
}
