package disasm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned for listing lines that are neither a unit
// header nor an instruction.
var ErrMalformedLine = errors.New("malformed listing line")

const (
	headerPrefix = "Disassembly of "
	moduleName   = "<module>"
)

// ListingScanner incrementally parses the text listing printed by the VM's
// disassembler:
//
//	Disassembly of <code object f at 0x10, file "m.py", line 3>:
//	  4           0 LOAD_FAST                0 (x)
//	              3 LOAD_CONST               1 (1)
//	              6 BINARY_ADD
//	        >>    7 RETURN_VALUE
//
// Lines are fed one at a time, which lets a caller follow a listing that is
// still being written.
//
// The disassembler prints an operand that follows EXTENDED_ARG with the
// high bits already folded in; the scanner splits them off again (see
// Stream.SplitExtendedArgs).
type ListingScanner struct {
	// ExtendedArgShift is the operand width of the VM that produced the
	// listing. Zero means opcodes.ExtendedArgShift.
	ExtendedArgShift uint

	unit   *CodeUnit
	lineNo int
}

// NewListingScanner returns a scanner positioned before the first unit.
func NewListingScanner() *ListingScanner {
	return &ListingScanner{}
}

// Feed consumes one line. When the line opens a new code unit, the unit
// that was in progress is returned.
func (s *ListingScanner) Feed(line string) (*CodeUnit, error) {
	s.lineNo++
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	if name, ok := parseHeader(trimmed); ok {
		done := s.Flush()
		s.unit = &CodeUnit{Name: name}
		return done, nil
	}

	inst, err := parseInstruction(line)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", s.lineNo, err)
	}
	if s.unit == nil {
		s.unit = &CodeUnit{Name: moduleName}
	}
	if n := len(s.unit.Instructions); n > 0 {
		prev := s.unit.Instructions[n-1]
		if inst.Offset <= prev.Offset {
			return nil, fmt.Errorf("line %d: offset %d does not follow %d: %w",
				s.lineNo, inst.Offset, prev.Offset, ErrMalformedLine)
		}
		inst = splitExtendedArg(prev, inst, s.ExtendedArgShift)
	}
	s.unit.Instructions = append(s.unit.Instructions, inst)
	return nil, nil
}

// Flush returns the unit in progress, or nil when it has no instructions.
func (s *ListingScanner) Flush() *CodeUnit {
	u := s.unit
	s.unit = nil
	if u == nil || len(u.Instructions) == 0 {
		return nil
	}
	return u
}

// Pending reports whether a unit with at least one instruction is in
// progress.
func (s *ListingScanner) Pending() bool {
	return s.unit != nil && len(s.unit.Instructions) > 0
}

// ParseListing reads a complete text listing.
func ParseListing(r io.Reader) ([]CodeUnit, error) {
	return NewListingScanner().Parse(r)
}

// Parse feeds every line of r to the scanner and returns all units.
func (s *ListingScanner) Parse(r io.Reader) ([]CodeUnit, error) {
	in := bufio.NewScanner(r)
	in.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var units []CodeUnit
	for in.Scan() {
		u, err := s.Feed(in.Text())
		if err != nil {
			return nil, err
		}
		if u != nil {
			units = append(units, *u)
		}
	}
	if err := in.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if u := s.Flush(); u != nil {
		units = append(units, *u)
	}
	return units, nil
}

// parseHeader recognises "Disassembly of <name>:" and extracts a short
// name from code object reprs.
func parseHeader(line string) (string, bool) {
	if !strings.HasPrefix(line, headerPrefix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(line, headerPrefix), ":")
	if rest, ok := strings.CutPrefix(name, "<code object "); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			name = fields[0]
		}
	}
	return name, true
}

func parseInstruction(line string) (Inst, error) {
	fields := strings.Fields(line)

	var numbers []int
	var inst Inst
	opIdx := -1
	for i, f := range fields {
		if f == ">>" {
			inst.IsJumpTarget = true
			continue
		}
		if f == "-->" {
			continue
		}
		if n, err := strconv.Atoi(f); err == nil {
			numbers = append(numbers, n)
			continue
		}
		if isOpname(f) {
			opIdx = i
		}
		break
	}
	if opIdx < 0 {
		return Inst{}, fmt.Errorf("%w: %q", ErrMalformedLine, strings.TrimSpace(line))
	}

	switch len(numbers) {
	case 1:
		inst.Offset = numbers[0]
	case 2:
		inst = inst.WithLine(numbers[0])
		inst.Offset = numbers[1]
	default:
		return Inst{}, fmt.Errorf("%w: expected [line] offset before %s", ErrMalformedLine, fields[opIdx])
	}
	inst.Opname = fields[opIdx]

	// Everything after the opname: "arg (argrepr)". The repr may contain
	// spaces, so slice the raw line instead of using fields.
	pos := strings.Index(line, inst.Opname)
	rest := strings.TrimSpace(line[pos+len(inst.Opname):])
	if rest == "" {
		return inst, nil
	}

	end := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' })
	if end < 0 {
		end = len(rest)
	}
	arg, err := strconv.Atoi(rest[:end])
	if err != nil {
		return Inst{}, fmt.Errorf("%w: bad operand %q for %s", ErrMalformedLine, rest[:end], inst.Opname)
	}
	rest = strings.TrimSpace(rest[end:])

	var val any
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		val = resolveRepr(rest[1 : len(rest)-1])
	}
	return inst.WithArg(arg, val), nil
}

func isOpname(s string) bool {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// resolveRepr turns the disassembler's operand repr into a Go value: jump
// targets and integers become int, quoted strings are unquoted, anything
// else (names, comparison operators, code objects) is kept verbatim.
func resolveRepr(repr string) any {
	if target, ok := strings.CutPrefix(repr, "to "); ok {
		if n, err := strconv.Atoi(target); err == nil {
			return n
		}
	}
	if n, err := strconv.Atoi(repr); err == nil {
		return n
	}
	if len(repr) >= 2 {
		q := repr[0]
		if (q == '\'' || q == '"') && repr[len(repr)-1] == q {
			return repr[1 : len(repr)-1]
		}
	}
	if f, err := strconv.ParseFloat(repr, 64); err == nil {
		return f
	}
	return repr
}
