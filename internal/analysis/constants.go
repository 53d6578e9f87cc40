// Package analysis rebuilds expression and statement trees ("commands")
// from the flat instruction stream of one code unit. It works backwards
// from the last instruction, using only stack depth to decide which
// preceding instructions feed each operation.
package analysis

import "unstack/internal/opcodes"

// Constants for command extraction
const (
	// DefaultExtendedArgShift is the width in bits of one instruction's
	// operand field; an EXTENDED_ARG value is shifted left by this much
	// before it is merged with its successor's operand.
	DefaultExtendedArgShift = opcodes.ExtendedArgShift

	// MaxExtendedArgShift bounds configurable shifts so merged operands
	// stay inside an int on every platform.
	MaxExtendedArgShift = 30
)
