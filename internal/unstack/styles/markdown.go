// Package styles holds the glamour styles used for markdown reports.
package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Report colours.
var (
	ReportForeground = charmtone.Smoke.Hex()
	ReportHeading    = charmtone.Malibu.Hex()
	ReportTitle      = charmtone.Zest.Hex()
	ReportTitleBg    = charmtone.Charple.Hex()
	ReportCode       = charmtone.Guac.Hex()
	ReportMuted      = charmtone.Squid.Hex()
	ReportRule       = charmtone.Charcoal.Hex()
	ReportError      = charmtone.Cheeky.Hex()
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

func heading(prefix string) ansi.StyleBlock {
	return ansi.StyleBlock{
		StylePrimitive: ansi.StylePrimitive{
			Prefix: prefix,
			Color:  stringPtr(ReportHeading),
			Bold:   boolPtr(true),
		},
	}
}

// GetReportStyle returns the glamour style for reconstruction reports.
func GetReportStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(ReportForeground),
			},
			Margin: uintPtr(1),
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  stringPtr(ReportMuted),
				Italic: boolPtr(true),
			},
			Indent:      uintPtr(1),
			IndentToken: stringPtr("│ "),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(ReportHeading),
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix:          " ",
				Suffix:          " ",
				Color:           stringPtr(ReportTitle),
				BackgroundColor: stringPtr(ReportTitleBg),
				Bold:            boolPtr(true),
			},
		},
		H2: heading("## "),
		H3: heading("### "),
		H4: heading("#### "),
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		Emph: ansi.StylePrimitive{
			Italic: boolPtr(true),
			Color:  stringPtr(ReportError),
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  stringPtr(ReportRule),
			Format: "\n--------\n",
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Enumeration: ansi.StylePrimitive{
			BlockPrefix: ". ",
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(ReportCode),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(ReportForeground),
				},
				Margin: uintPtr(2),
			},
		},
		Table: ansi.StyleTable{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(ReportForeground),
				},
			},
			CenterSeparator: stringPtr("┼"),
			ColumnSeparator: stringPtr("│"),
			RowSeparator:    stringPtr("─"),
		},
		Text: ansi.StylePrimitive{},
	}
}

// GetMarkdownRenderer returns a glamour TermRenderer for reports wrapped at
// width columns.
func GetMarkdownRenderer(width int) *glamour.TermRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithStyles(GetReportStyle()),
		glamour.WithWordWrap(width),
	)
	return r
}

// RenderMarkdown renders md with the report style, returning md unchanged
// if rendering fails.
func RenderMarkdown(md string, width int) string {
	r := GetMarkdownRenderer(width)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
