package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	_ = TreeDark
	_ = TreeLexer
}

// TreeLexer tokenises Command dumps:
//
//	>   3:12      LOAD_CONST 1 (1)
var TreeLexer = lexers.Register(chroma.MustNewLexer(
	&chroma.Config{
		Name:    "unstack-tree",
		Aliases: []string{"unstack"},
	},
	func() chroma.Rules {
		return chroma.Rules{
			"root": {
				{Pattern: `^([> ])( *\d*)(:)(\d+)`, Type: chroma.ByGroups(chroma.NameLabel, chroma.CommentPreproc, chroma.Punctuation, chroma.LiteralNumberHex)},
				{Pattern: `\b(SETUP_[A-Z]+|POP_BLOCK)\b`, Type: chroma.KeywordReserved},
				{Pattern: `\b[A-Z][A-Z0-9_]+\b`, Type: chroma.Keyword},
				{Pattern: `\(`, Type: chroma.Punctuation, Mutator: chroma.Push("value")},
				{Pattern: `-?\d+`, Type: chroma.LiteralNumber},
				{Pattern: `\s+`, Type: chroma.Text},
				{Pattern: `.`, Type: chroma.Text},
			},
			"value": {
				{Pattern: `'[^'\n]*'|"[^"\n]*"`, Type: chroma.LiteralString},
				{Pattern: `-?\d+(\.\d+)?`, Type: chroma.LiteralNumber},
				{Pattern: `\)`, Type: chroma.Punctuation, Mutator: chroma.Pop(1)},
				{Pattern: `\n`, Type: chroma.Text, Mutator: chroma.Pop(1)},
				{Pattern: `[^)'"\d\n]+`, Type: chroma.NameVariable},
				{Pattern: `.`, Type: chroma.Text},
			},
		}
	},
))

// TreeDark is the style for tree dumps.
var TreeDark = styles.Register(chroma.MustNewStyle("tree-dark", chroma.StyleEntries{
	chroma.Text:           "#D4D4D4",
	chroma.Background:     "bg:#1e1e1e",
	chroma.CommentPreproc: "#858585", // line numbers

	chroma.Keyword:         "#FFFFFF", // opcodes
	chroma.KeywordReserved: "#C586C0", // block markers
	chroma.NameVariable:    "#9CDCFE", // resolved names
	chroma.NameLabel:       "#FFD700", // jump target marker

	chroma.LiteralNumber:    "#FF5F87",
	chroma.LiteralNumberHex: "#4F4F4F", // offsets

	chroma.Punctuation: "#808080",
	chroma.String:      "#EACD53",
}))
