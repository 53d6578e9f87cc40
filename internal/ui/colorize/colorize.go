// Package colorize highlights Command tree dumps for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether UNSTACK_NO_COLOR turns highlighting off.
func Disabled() bool {
	return os.Getenv("UNSTACK_NO_COLOR") != ""
}

// getTreeStyle returns the tree style with fallbacks
func getTreeStyle() *chroma.Style {
	candidates := []string{"tree-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	// Try high-color first, then fallback
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeTree highlights a whole dump. On failure the input is returned
// unchanged together with the error.
func ColorizeTree(dump string) (string, error) {
	if Disabled() {
		return dump, nil
	}

	iterator, err := TreeLexer.Tokenise(nil, dump)
	if err != nil {
		return dump, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getTreeStyle(), iterator); err != nil {
		return dump, err
	}
	return buf.String(), nil
}

// ColorizeLine highlights one dump line, falling back to the plain line.
func ColorizeLine(line string) string {
	out, err := ColorizeTree(line)
	if err != nil {
		return line
	}
	return out
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// VisibleWidth counts the characters left after StripANSI.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
