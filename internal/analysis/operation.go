package analysis

import (
	"fmt"

	"unstack/internal/opcodes"
)

// Operation is the semantic descriptor of one instruction: its opcode,
// fully merged operand and stack effect.
type Operation struct {
	op      opcodes.Opcode
	arg     int
	hasArg  bool
	value   any
	consume int
	produce int
}

// NewOperation builds the Operation for a named opcode. arg is the raw
// operand (nil for operand-less instructions) and value its resolved form.
func NewOperation(name string, arg *int, value any) (Operation, error) {
	op, ok := opcodes.Lookup(name)
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrUnsupportedOperation, name)
	}
	if arg == nil {
		return newOperation(op, 0, false, value), nil
	}
	return newOperation(op, *arg, true, value), nil
}

func newOperation(op opcodes.Opcode, arg int, hasArg bool, value any) Operation {
	pop, push := op.StackEffect(arg)
	return Operation{
		op:      op,
		arg:     arg,
		hasArg:  hasArg,
		value:   value,
		consume: pop,
		produce: push,
	}
}

// Opcode returns the registry entry this operation was built from.
func (o Operation) Opcode() opcodes.Opcode { return o.op }

// Name returns the opcode name.
func (o Operation) Name() string { return o.op.String() }

// Arg returns the raw operand after extended-argument merging.
func (o Operation) Arg() (int, bool) { return o.arg, o.hasArg }

// Value returns the resolved operand as supplied by the decoder.
func (o Operation) Value() any { return o.value }

// Argument returns the fully resolved operand: the decoded value when
// there is one, otherwise the raw operand, otherwise nil.
func (o Operation) Argument() any {
	if o.value != nil {
		return o.value
	}
	if o.hasArg {
		return o.arg
	}
	return nil
}

// ConsumeCount is the number of stack slots this operation pops.
func (o Operation) ConsumeCount() int { return o.consume }

// ProduceCount is the number of stack slots this operation pushes.
func (o Operation) ProduceCount() int { return o.produce }

func (o Operation) OpensBlock() bool  { return o.op.OpensBlock() }
func (o Operation) ClosesBlock() bool { return o.op.ClosesBlock() }

// String formats the operation the way the disassembler prints it:
// name, raw operand, and the resolved operand in parentheses.
func (o Operation) String() string {
	if !o.hasArg {
		return o.Name()
	}
	if o.value == nil {
		return fmt.Sprintf("%s %d", o.Name(), o.arg)
	}
	if s, ok := o.value.(string); ok {
		return fmt.Sprintf("%s %d (%s)", o.Name(), o.arg, s)
	}
	return fmt.Sprintf("%s %d (%v)", o.Name(), o.arg, o.value)
}
