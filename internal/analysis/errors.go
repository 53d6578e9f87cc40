package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation matches failures caused by an opcode name
	// with no registry entry.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrStructuralUnderflow matches failures where the start of the
	// stream was reached while operands or a block opener were still
	// outstanding.
	ErrStructuralUnderflow = errors.New("structural underflow")

	// ErrDanglingBlockOpener is reported when strict block matching is on
	// and a block opener appears as a top-level command.
	ErrDanglingBlockOpener = errors.New("dangling block opener")

	// ErrCheckFailed is the cause of error-severity findings that carry no
	// more specific one.
	ErrCheckFailed = errors.New("structural check failed")

	// ErrCursorOutOfRange is returned when ExtractCommand is called with a
	// cursor outside 1..len(stream).
	ErrCursorOutOfRange = errors.New("cursor out of range")
)

// UnsupportedOperationError reports an instruction whose opcode name is
// not in the registry.
type UnsupportedOperationError struct {
	Offset int
	Opname string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q at offset %d", e.Opname, e.Offset)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// StructuralUnderflowError reports an operation that ran out of preceding
// instructions. Pending is the number of stack values still owed; InBlock
// is set when a block closer never found its opener.
type StructuralUnderflowError struct {
	Offset  int
	Opname  string
	Pending int
	InBlock bool
}

func (e *StructuralUnderflowError) Error() string {
	if e.InBlock {
		return fmt.Sprintf("structural underflow: %s at offset %d reached the start of the stream before its block opener",
			e.Opname, e.Offset)
	}
	return fmt.Sprintf("structural underflow: %s at offset %d still needs %d stack value(s)",
		e.Opname, e.Offset, e.Pending)
}

func (e *StructuralUnderflowError) Is(target error) bool {
	return target == ErrStructuralUnderflow
}

// UnitError attaches the code unit name to a reconstruction failure.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
