// Package disasm defines the decoded instruction representation consumed
// by the command tree builder, and readers for the textual listings that
// carry it.
package disasm

import (
	"fmt"

	"unstack/internal/opcodes"
)

// Inst is one decoded stack-machine instruction.
type Inst struct {
	Opname       string `json:"opname" yaml:"opname" jsonschema:"title=Opcode name,description=Name of the operation (e.g. LOAD_CONST)"`
	Arg          *int   `json:"arg,omitempty" yaml:"arg,omitempty" jsonschema:"description=Raw operand as encoded in the stream"`
	ArgVal       any    `json:"argval,omitempty" yaml:"argval,omitempty" jsonschema:"description=Operand after constant/name table resolution"`
	Offset       int    `json:"offset" yaml:"offset" jsonschema:"description=Byte offset in the code unit"`
	StartsLine   *int   `json:"starts_line,omitempty" yaml:"starts_line,omitempty" jsonschema:"description=Source line this instruction starts"`
	IsJumpTarget bool   `json:"is_jump_target,omitempty" yaml:"is_jump_target,omitempty"`
}

// New returns an operand-less instruction at offset.
func New(offset int, opname string) Inst {
	return Inst{Opname: opname, Offset: offset}
}

// WithArg returns a copy of i carrying the raw operand arg and its resolved
// value. A nil val leaves the operand unresolved.
func (i Inst) WithArg(arg int, val any) Inst {
	i.Arg = &arg
	i.ArgVal = val
	return i
}

// WithLine returns a copy of i marked as the first instruction of line.
func (i Inst) WithLine(line int) Inst {
	i.StartsLine = &line
	return i
}

// AsJumpTarget returns a copy of i marked as a branch destination.
func (i Inst) AsJumpTarget() Inst {
	i.IsJumpTarget = true
	return i
}

// HasArg reports whether a raw operand is present.
func (i Inst) HasArg() bool {
	return i.Arg != nil
}

// IntOperand returns the operand as an integer: the resolved value when it
// is integral, otherwise the raw operand.
func (i Inst) IntOperand() (int, bool) {
	switch v := i.ArgVal.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	if i.Arg != nil {
		return *i.Arg, true
	}
	return 0, false
}

func (i Inst) String() string {
	s := fmt.Sprintf("%d %s", i.Offset, i.Opname)
	if i.Arg != nil {
		s += fmt.Sprintf(" %d", *i.Arg)
		if i.ArgVal != nil {
			s += fmt.Sprintf(" (%v)", i.ArgVal)
		}
	}
	return s
}

// Stream is a linear sequence of instructions for one code unit, ordered
// by offset.
type Stream []Inst

// Validate checks that offsets strictly increase.
func (s Stream) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Offset <= s[i-1].Offset {
			return fmt.Errorf("instruction %d at offset %d does not follow offset %d", i, s[i].Offset, s[i-1].Offset)
		}
	}
	return nil
}

// SplitExtendedArgs undoes the operand merge disassemblers apply after
// EXTENDED_ARG. An operand that already carries its predecessor's value
// above shift keeps only its low shift bits, so that extraction merges it
// exactly once. Operands without the high bits are left alone. Zero shift
// means opcodes.ExtendedArgShift.
func (s Stream) SplitExtendedArgs(shift uint) {
	for i := 1; i < len(s); i++ {
		s[i] = splitExtendedArg(s[i-1], s[i], shift)
	}
}

func splitExtendedArg(prev, inst Inst, shift uint) Inst {
	if prev.Opname != opcodes.EXTENDED_ARG.String() || inst.Arg == nil {
		return inst
	}
	if shift == 0 {
		shift = opcodes.ExtendedArgShift
	}
	high, ok := prev.IntOperand()
	if !ok || high == 0 || *inst.Arg>>shift != high {
		return inst
	}
	low := *inst.Arg & (1<<shift - 1)
	inst.Arg = &low
	return inst
}

// CodeUnit is one independently compiled body: a module, class or function.
type CodeUnit struct {
	Name         string `json:"name" yaml:"name" jsonschema:"title=Name,description=Code unit name"`
	Instructions Stream `json:"instructions" yaml:"instructions"`
}

// Listing is the document form of a set of code units.
type Listing struct {
	Units []CodeUnit `json:"units" yaml:"units"`
}
