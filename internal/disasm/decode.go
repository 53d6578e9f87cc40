package disasm

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	pathpkg "path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies a listing encoding.
type Format int

const (
	FormatText Format = iota // disassembler text output
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "text"
	}
}

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "dis":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatText, fmt.Errorf("unknown listing format %q", s)
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(pathpkg.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Load reads every code unit from path. "-" reads a text listing from
// stdin. shift is the operand width used to split extended operands; zero
// means opcodes.ExtendedArgShift.
func Load(path string, shift uint) ([]CodeUnit, error) {
	if path == "-" {
		return Decode(os.Stdin, FormatText, shift)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	defer f.Close()

	units, err := Decode(f, FormatFor(path), shift)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// Decode reads code units in the given format. Operands that carry the
// bits of a preceding EXTENDED_ARG are split at shift, as in Load.
func Decode(r io.Reader, f Format, shift uint) ([]CodeUnit, error) {
	switch f {
	case FormatJSON:
		return decodeJSON(r, shift)
	case FormatYAML:
		return decodeYAML(r, shift)
	default:
		ls := NewListingScanner()
		ls.ExtendedArgShift = shift
		return ls.Parse(r)
	}
}

// DecodeJSON reads a Listing document encoded as JSON.
func DecodeJSON(r io.Reader) ([]CodeUnit, error) {
	return decodeJSON(r, 0)
}

func decodeJSON(r io.Reader, shift uint) ([]CodeUnit, error) {
	var l Listing
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("decode json listing: %w", err)
	}
	return l.normalize(shift)
}

// DecodeYAML reads a Listing document encoded as YAML.
func DecodeYAML(r io.Reader) ([]CodeUnit, error) {
	return decodeYAML(r, 0)
}

func decodeYAML(r io.Reader, shift uint) ([]CodeUnit, error) {
	var l Listing
	if err := yaml.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode yaml listing: %w", err)
	}
	return l.normalize(shift)
}

// normalize names anonymous units, folds integral numbers to int so
// resolved operands compare the same whatever the encoding, checks
// offset ordering and splits extended operands.
func (l Listing) normalize(shift uint) ([]CodeUnit, error) {
	for u := range l.Units {
		unit := &l.Units[u]
		if unit.Name == "" {
			unit.Name = fmt.Sprintf("unit%d", u)
		}
		for i := range unit.Instructions {
			unit.Instructions[i].ArgVal = normalizeValue(unit.Instructions[i].ArgVal)
		}
		if err := unit.Instructions.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", unit.Name, err)
		}
		unit.Instructions.SplitExtendedArgs(shift)
	}
	return l.Units, nil
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int(n)
		}
	case int64:
		return int(n)
	case uint64:
		return int(n)
	}
	return v
}
