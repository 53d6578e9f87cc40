package analysis

import (
	"fmt"
	"slices"

	"unstack/internal/disasm"
	"unstack/internal/logging"
	"unstack/internal/opcodes"
)

// Extractor rebuilds command trees from a decoded instruction stream. The
// zero value uses DefaultExtendedArgShift.
type Extractor struct {
	// ExtendedArgShift is the width in bits of one instruction's operand
	// field. Zero means DefaultExtendedArgShift.
	ExtendedArgShift uint
}

func (x Extractor) shift() uint {
	if x.ExtendedArgShift == 0 {
		return DefaultExtendedArgShift
	}
	return x.ExtendedArgShift
}

// ExtractCommand extracts a single command ending at insts[cursor-1] and
// returns the cursor of the first instruction it covers.
//
// Each command is a "result", so extraction starts at the end and works
// backwards: an operation pulls preceding commands until its inputs are
// satisfied, and a block closer pulls commands until it meets its opener.
func ExtractCommand(insts disasm.Stream, cursor int) (int, *Command, error) {
	return Extractor{}.ExtractCommand(insts, cursor)
}

// ExtractCommands splits a whole code unit into top-level commands in
// program order.
func ExtractCommands(insts disasm.Stream) ([]*Command, error) {
	return Extractor{}.ExtractCommands(insts)
}

// ExtractCommand is the package-level ExtractCommand with x's settings.
func (x Extractor) ExtractCommand(insts disasm.Stream, cursor int) (int, *Command, error) {
	if cursor <= 0 || cursor > len(insts) {
		return cursor, nil, fmt.Errorf("%w: %d not in 1..%d", ErrCursorOutOfRange, cursor, len(insts))
	}
	return x.extract(insts, cursor)
}

// ExtractCommands runs ExtractCommand from the end of the stream until the
// cursor reaches the start. Any failure aborts the unit; no partial forest
// is returned.
func (x Extractor) ExtractCommands(insts disasm.Stream) ([]*Command, error) {
	var lg *logging.LoggerCloser
	if logging.IsDebug() {
		lg = logging.NewLogger()
		defer lg.Close()
	}

	var collected []*Command
	cursor := len(insts)
	for cursor > 0 {
		next, cmd, err := x.extract(insts, cursor)
		if err != nil {
			return nil, err
		}
		if lg != nil {
			lg.Debug("extracted command",
				"op", cmd.Operation().Name(),
				"offset", cmd.Offset(),
				"args", cmd.NumArguments(),
				"instructions", cursor-next)
		}
		collected = append(collected, cmd)
		cursor = next
	}

	slices.Reverse(collected)
	return collected, nil
}

func (x Extractor) extract(insts disasm.Stream, i int) (int, *Command, error) {
	i--
	inst := insts[i]

	op, i, err := x.operationAt(insts, i)
	if err != nil {
		return i, nil, err
	}

	var gathered []*Command
	switch {
	case op.ClosesBlock():
		// Create a command that contains everything back to the start of
		// the block. The opener only ends the search.
		for {
			if i <= 0 {
				return i, nil, &StructuralUnderflowError{Offset: inst.Offset, Opname: op.Name(), InBlock: true}
			}
			var arg *Command
			i, arg, err = x.extract(insts, i)
			if err != nil {
				return i, nil, err
			}
			if arg.operation.OpensBlock() {
				break
			}
			gathered = append(gathered, arg)
		}

	case op.OpensBlock():
		// The start of a block closes out a command; the enclosing
		// closer recognises it.
		return i, newCommand(op, inst, nil), nil

	default:
		// Pull commands until the stack is back to an empty state.
		pending := op.ConsumeCount()
		for pending > 0 {
			if i <= 0 {
				return i, nil, &StructuralUnderflowError{Offset: inst.Offset, Opname: op.Name(), Pending: pending}
			}
			var arg *Command
			i, arg, err = x.extract(insts, i)
			if err != nil {
				return i, nil, err
			}
			gathered = append(gathered, arg)
			pending += arg.ConsumeCount() - arg.ProduceCount()
		}
	}

	return i, newCommand(op, inst, gathered), nil
}

// operationAt resolves the Operation for insts[i]. If the preceding
// instruction is EXTENDED_ARG its value supplies the high bits of the
// operand and it is consumed as well, so the returned index may be i-1.
func (x Extractor) operationAt(insts disasm.Stream, i int) (Operation, int, error) {
	inst := insts[i]
	op, ok := opcodes.Lookup(inst.Opname)
	if !ok {
		return Operation{}, i, &UnsupportedOperationError{Offset: inst.Offset, Opname: inst.Opname}
	}

	arg, hasArg := 0, inst.Arg != nil
	if hasArg {
		arg = *inst.Arg
	}
	value := inst.ArgVal

	if i > 0 {
		if prev, ok := opcodes.Lookup(insts[i-1].Opname); ok && prev.IsExtendedArg() {
			i--
			high, _ := insts[i].IntOperand()
			merged := high<<x.shift() | arg
			// A decoder that resolved the operand to a symbol already
			// used the full index; only echo-of-raw values are replaced.
			if v, isInt := value.(int); isInt && v == arg {
				value = merged
			}
			arg, hasArg = merged, true
		}
	}

	return newOperation(op, arg, hasArg, value), i, nil
}
