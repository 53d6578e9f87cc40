// Package opcodes is the descriptor registry for the stack-machine
// instruction set: for every recognised opcode it records how many stack
// slots the operation pops and pushes (possibly as a function of its
// operand) and whether it opens or closes a block.
package opcodes

import "fmt"

// Opcode identifies one operation of the virtual machine. Values follow the
// CPython 3.4 numbering so listings can be cross-checked against the VM.
type Opcode uint8

const (
	// ========================================================================
	// Stack manipulation
	// ========================================================================

	POP_TOP     Opcode = 1
	ROT_TWO     Opcode = 2
	ROT_THREE   Opcode = 3
	DUP_TOP     Opcode = 4
	DUP_TOP_TWO Opcode = 5
	NOP         Opcode = 9

	// ========================================================================
	// Unary operations
	// ========================================================================

	UNARY_POSITIVE Opcode = 10
	UNARY_NEGATIVE Opcode = 11
	UNARY_NOT      Opcode = 12
	UNARY_INVERT   Opcode = 15

	// ========================================================================
	// Binary and in-place operations
	// ========================================================================

	BINARY_POWER         Opcode = 19
	BINARY_MULTIPLY      Opcode = 20
	BINARY_MODULO        Opcode = 22
	BINARY_ADD           Opcode = 23
	BINARY_SUBTRACT      Opcode = 24
	BINARY_SUBSCR        Opcode = 25
	BINARY_FLOOR_DIVIDE  Opcode = 26
	BINARY_TRUE_DIVIDE   Opcode = 27
	INPLACE_FLOOR_DIVIDE Opcode = 28
	INPLACE_TRUE_DIVIDE  Opcode = 29
	STORE_MAP            Opcode = 54
	INPLACE_ADD          Opcode = 55
	INPLACE_SUBTRACT     Opcode = 56
	INPLACE_MULTIPLY     Opcode = 57
	INPLACE_MODULO       Opcode = 59
	STORE_SUBSCR         Opcode = 60
	DELETE_SUBSCR        Opcode = 61
	BINARY_LSHIFT        Opcode = 62
	BINARY_RSHIFT        Opcode = 63
	BINARY_AND           Opcode = 64
	BINARY_XOR           Opcode = 65
	BINARY_OR            Opcode = 66
	INPLACE_POWER        Opcode = 67
	GET_ITER             Opcode = 68
	PRINT_EXPR           Opcode = 70
	LOAD_BUILD_CLASS     Opcode = 71
	YIELD_FROM           Opcode = 72
	INPLACE_LSHIFT       Opcode = 75
	INPLACE_RSHIFT       Opcode = 76
	INPLACE_AND          Opcode = 77
	INPLACE_XOR          Opcode = 78
	INPLACE_OR           Opcode = 79
	BREAK_LOOP           Opcode = 80
	WITH_CLEANUP         Opcode = 81
	RETURN_VALUE         Opcode = 83
	IMPORT_STAR          Opcode = 84
	YIELD_VALUE          Opcode = 86
	POP_BLOCK            Opcode = 87
	END_FINALLY          Opcode = 88
	POP_EXCEPT           Opcode = 89

	// ========================================================================
	// Operations with an operand (>= HAVE_ARGUMENT)
	// ========================================================================

	STORE_NAME           Opcode = 90
	DELETE_NAME          Opcode = 91
	UNPACK_SEQUENCE      Opcode = 92
	FOR_ITER             Opcode = 93
	UNPACK_EX            Opcode = 94
	STORE_ATTR           Opcode = 95
	DELETE_ATTR          Opcode = 96
	STORE_GLOBAL         Opcode = 97
	DELETE_GLOBAL        Opcode = 98
	LOAD_CONST           Opcode = 100
	LOAD_NAME            Opcode = 101
	BUILD_TUPLE          Opcode = 102
	BUILD_LIST           Opcode = 103
	BUILD_SET            Opcode = 104
	BUILD_MAP            Opcode = 105
	LOAD_ATTR            Opcode = 106
	COMPARE_OP           Opcode = 107
	IMPORT_NAME          Opcode = 108
	IMPORT_FROM          Opcode = 109
	JUMP_FORWARD         Opcode = 110
	JUMP_IF_FALSE_OR_POP Opcode = 111
	JUMP_IF_TRUE_OR_POP  Opcode = 112
	JUMP_ABSOLUTE        Opcode = 113
	POP_JUMP_IF_FALSE    Opcode = 114
	POP_JUMP_IF_TRUE     Opcode = 115
	LOAD_GLOBAL          Opcode = 116
	CONTINUE_LOOP        Opcode = 119
	SETUP_LOOP           Opcode = 120
	SETUP_EXCEPT         Opcode = 121
	SETUP_FINALLY        Opcode = 122
	LOAD_FAST            Opcode = 124
	STORE_FAST           Opcode = 125
	DELETE_FAST          Opcode = 126
	RAISE_VARARGS        Opcode = 130
	CALL_FUNCTION        Opcode = 131
	MAKE_FUNCTION        Opcode = 132
	BUILD_SLICE          Opcode = 133
	MAKE_CLOSURE         Opcode = 134
	LOAD_CLOSURE         Opcode = 135
	LOAD_DEREF           Opcode = 136
	STORE_DEREF          Opcode = 137
	DELETE_DEREF         Opcode = 138
	CALL_FUNCTION_VAR    Opcode = 140
	CALL_FUNCTION_KW     Opcode = 141
	CALL_FUNCTION_VAR_KW Opcode = 142
	SETUP_WITH           Opcode = 143
	EXTENDED_ARG         Opcode = 144
	LIST_APPEND          Opcode = 145
	SET_ADD              Opcode = 146
	MAP_ADD              Opcode = 147
	LOAD_CLASSDEREF      Opcode = 148
)

// HAVE_ARGUMENT is the first opcode that carries an operand.
const HAVE_ARGUMENT Opcode = 90

// ExtendedArgShift is the width in bits of an instruction's operand field.
// EXTENDED_ARG supplies the bits above it.
const ExtendedArgShift = 16

// EffectFunc computes the stack effect of an operation whose arity is
// encoded in its operand.
type EffectFunc func(arg int) (pop, push int)

// OpcodeInfo describes one opcode.
type OpcodeInfo struct {
	Name   string
	Pop    int        // slots popped when Effect is nil
	Push   int        // slots pushed when Effect is nil
	Effect EffectFunc // operand-dependent stack effect, or nil

	OpensBlock  bool
	ClosesBlock bool
}

func fixed(name string, pop, push int) OpcodeInfo {
	return OpcodeInfo{Name: name, Pop: pop, Push: push}
}

func variable(name string, effect EffectFunc) OpcodeInfo {
	return OpcodeInfo{Name: name, Effect: effect}
}

func opener(name string) OpcodeInfo {
	return OpcodeInfo{Name: name, OpensBlock: true}
}

func closer(name string) OpcodeInfo {
	return OpcodeInfo{Name: name, ClosesBlock: true}
}

// nItems pops arg values and pushes one aggregate.
func nItems(arg int) (int, int) { return arg, 1 }

// callEffect pops the callable, the positional arguments in the low byte
// and the keyword name/value pairs counted in the next byte; extra is the
// number of trailing *args/**kwargs operands.
func callEffect(extra int) EffectFunc {
	return func(arg int) (int, int) {
		positional := arg & 0xff
		keyword := (arg >> 8) & 0xff
		return 1 + positional + 2*keyword + extra, 1
	}
}

// functionEffect pops code object and qualified name plus defaults,
// keyword-only default pairs and annotations.
func functionEffect(extra int) EffectFunc {
	return func(arg int) (int, int) {
		defaults := arg & 0xff
		kwDefaults := (arg >> 8) & 0xff
		annotations := (arg >> 16) & 0x7fff
		return 2 + defaults + 2*kwDefaults + annotations + extra, 1
	}
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	POP_TOP:     fixed("POP_TOP", 1, 0),
	ROT_TWO:     fixed("ROT_TWO", 2, 2),
	ROT_THREE:   fixed("ROT_THREE", 3, 3),
	DUP_TOP:     fixed("DUP_TOP", 1, 2),
	DUP_TOP_TWO: fixed("DUP_TOP_TWO", 2, 4),
	NOP:         fixed("NOP", 0, 0),

	// Unary
	UNARY_POSITIVE: fixed("UNARY_POSITIVE", 1, 1),
	UNARY_NEGATIVE: fixed("UNARY_NEGATIVE", 1, 1),
	UNARY_NOT:      fixed("UNARY_NOT", 1, 1),
	UNARY_INVERT:   fixed("UNARY_INVERT", 1, 1),
	GET_ITER:       fixed("GET_ITER", 1, 1),

	// Binary
	BINARY_POWER:        fixed("BINARY_POWER", 2, 1),
	BINARY_MULTIPLY:     fixed("BINARY_MULTIPLY", 2, 1),
	BINARY_MODULO:       fixed("BINARY_MODULO", 2, 1),
	BINARY_ADD:          fixed("BINARY_ADD", 2, 1),
	BINARY_SUBTRACT:     fixed("BINARY_SUBTRACT", 2, 1),
	BINARY_SUBSCR:       fixed("BINARY_SUBSCR", 2, 1),
	BINARY_FLOOR_DIVIDE: fixed("BINARY_FLOOR_DIVIDE", 2, 1),
	BINARY_TRUE_DIVIDE:  fixed("BINARY_TRUE_DIVIDE", 2, 1),
	BINARY_LSHIFT:       fixed("BINARY_LSHIFT", 2, 1),
	BINARY_RSHIFT:       fixed("BINARY_RSHIFT", 2, 1),
	BINARY_AND:          fixed("BINARY_AND", 2, 1),
	BINARY_XOR:          fixed("BINARY_XOR", 2, 1),
	BINARY_OR:           fixed("BINARY_OR", 2, 1),

	// In-place
	INPLACE_FLOOR_DIVIDE: fixed("INPLACE_FLOOR_DIVIDE", 2, 1),
	INPLACE_TRUE_DIVIDE:  fixed("INPLACE_TRUE_DIVIDE", 2, 1),
	INPLACE_ADD:          fixed("INPLACE_ADD", 2, 1),
	INPLACE_SUBTRACT:     fixed("INPLACE_SUBTRACT", 2, 1),
	INPLACE_MULTIPLY:     fixed("INPLACE_MULTIPLY", 2, 1),
	INPLACE_MODULO:       fixed("INPLACE_MODULO", 2, 1),
	INPLACE_POWER:        fixed("INPLACE_POWER", 2, 1),
	INPLACE_LSHIFT:       fixed("INPLACE_LSHIFT", 2, 1),
	INPLACE_RSHIFT:       fixed("INPLACE_RSHIFT", 2, 1),
	INPLACE_AND:          fixed("INPLACE_AND", 2, 1),
	INPLACE_XOR:          fixed("INPLACE_XOR", 2, 1),
	INPLACE_OR:           fixed("INPLACE_OR", 2, 1),

	// Subscripts and maps
	STORE_MAP:     fixed("STORE_MAP", 3, 1),
	STORE_SUBSCR:  fixed("STORE_SUBSCR", 3, 0),
	DELETE_SUBSCR: fixed("DELETE_SUBSCR", 2, 0),

	// Statements without operand
	PRINT_EXPR:       fixed("PRINT_EXPR", 1, 0),
	LOAD_BUILD_CLASS: fixed("LOAD_BUILD_CLASS", 0, 1),
	YIELD_FROM:       fixed("YIELD_FROM", 2, 1),
	YIELD_VALUE:      fixed("YIELD_VALUE", 1, 1),
	BREAK_LOOP:       fixed("BREAK_LOOP", 0, 0),
	RETURN_VALUE:     fixed("RETURN_VALUE", 1, 0),
	IMPORT_STAR:      fixed("IMPORT_STAR", 1, 0),

	// Exception-state slots pushed implicitly by the VM are not modelled.
	WITH_CLEANUP: fixed("WITH_CLEANUP", 0, 0),
	END_FINALLY:  fixed("END_FINALLY", 0, 0),
	POP_EXCEPT:   fixed("POP_EXCEPT", 0, 0),

	// Names
	STORE_NAME:      fixed("STORE_NAME", 1, 0),
	DELETE_NAME:     fixed("DELETE_NAME", 0, 0),
	LOAD_NAME:       fixed("LOAD_NAME", 0, 1),
	STORE_ATTR:      fixed("STORE_ATTR", 2, 0),
	DELETE_ATTR:     fixed("DELETE_ATTR", 1, 0),
	LOAD_ATTR:       fixed("LOAD_ATTR", 1, 1),
	STORE_GLOBAL:    fixed("STORE_GLOBAL", 1, 0),
	DELETE_GLOBAL:   fixed("DELETE_GLOBAL", 0, 0),
	LOAD_GLOBAL:     fixed("LOAD_GLOBAL", 0, 1),
	LOAD_FAST:       fixed("LOAD_FAST", 0, 1),
	STORE_FAST:      fixed("STORE_FAST", 1, 0),
	DELETE_FAST:     fixed("DELETE_FAST", 0, 0),
	LOAD_CLOSURE:    fixed("LOAD_CLOSURE", 0, 1),
	LOAD_DEREF:      fixed("LOAD_DEREF", 0, 1),
	STORE_DEREF:     fixed("STORE_DEREF", 1, 0),
	DELETE_DEREF:    fixed("DELETE_DEREF", 0, 0),
	LOAD_CLASSDEREF: fixed("LOAD_CLASSDEREF", 0, 1),
	LOAD_CONST:      fixed("LOAD_CONST", 0, 1),

	// Comparison and imports
	COMPARE_OP:  fixed("COMPARE_OP", 2, 1),
	IMPORT_NAME: fixed("IMPORT_NAME", 2, 1),
	IMPORT_FROM: fixed("IMPORT_FROM", 1, 2),

	// Control flow
	FOR_ITER:             fixed("FOR_ITER", 1, 2),
	JUMP_FORWARD:         fixed("JUMP_FORWARD", 0, 0),
	JUMP_IF_FALSE_OR_POP: fixed("JUMP_IF_FALSE_OR_POP", 1, 0),
	JUMP_IF_TRUE_OR_POP:  fixed("JUMP_IF_TRUE_OR_POP", 1, 0),
	JUMP_ABSOLUTE:        fixed("JUMP_ABSOLUTE", 0, 0),
	POP_JUMP_IF_FALSE:    fixed("POP_JUMP_IF_FALSE", 1, 0),
	POP_JUMP_IF_TRUE:     fixed("POP_JUMP_IF_TRUE", 1, 0),
	CONTINUE_LOOP:        fixed("CONTINUE_LOOP", 0, 0),
	RAISE_VARARGS:        variable("RAISE_VARARGS", func(arg int) (int, int) { return arg, 0 }),

	// Blocks
	SETUP_LOOP:    opener("SETUP_LOOP"),
	SETUP_EXCEPT:  opener("SETUP_EXCEPT"),
	SETUP_FINALLY: opener("SETUP_FINALLY"),
	SETUP_WITH:    opener("SETUP_WITH"),
	POP_BLOCK:     closer("POP_BLOCK"),

	// Builders
	BUILD_TUPLE: variable("BUILD_TUPLE", nItems),
	BUILD_LIST:  variable("BUILD_LIST", nItems),
	BUILD_SET:   variable("BUILD_SET", nItems),
	BUILD_SLICE: variable("BUILD_SLICE", nItems),
	BUILD_MAP:   fixed("BUILD_MAP", 0, 1), // operand is a size hint

	// Unpacking
	UNPACK_SEQUENCE: variable("UNPACK_SEQUENCE", func(arg int) (int, int) {
		return 1, arg
	}),
	UNPACK_EX: variable("UNPACK_EX", func(arg int) (int, int) {
		return 1, (arg & 0xff) + (arg >> 8) + 1
	}),

	// Calls
	CALL_FUNCTION:        variable("CALL_FUNCTION", callEffect(0)),
	CALL_FUNCTION_VAR:    variable("CALL_FUNCTION_VAR", callEffect(1)),
	CALL_FUNCTION_KW:     variable("CALL_FUNCTION_KW", callEffect(1)),
	CALL_FUNCTION_VAR_KW: variable("CALL_FUNCTION_VAR_KW", callEffect(2)),
	MAKE_FUNCTION:        variable("MAKE_FUNCTION", functionEffect(0)),
	MAKE_CLOSURE:         variable("MAKE_CLOSURE", functionEffect(1)),

	// Comprehensions
	LIST_APPEND: fixed("LIST_APPEND", 1, 0),
	SET_ADD:     fixed("SET_ADD", 1, 0),
	MAP_ADD:     fixed("MAP_ADD", 2, 0),

	EXTENDED_ARG: fixed("EXTENDED_ARG", 0, 0),
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// Lookup resolves an opcode name. The second result is false for names
// that have no registry entry.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", byte(op))}
}

// String returns the opcode name.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op has a registry entry.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// HasArg reports whether the opcode carries an operand.
func (op Opcode) HasArg() bool {
	return op >= HAVE_ARGUMENT
}

// StackEffect returns the number of slots popped and pushed for the given
// resolved operand.
func (op Opcode) StackEffect(arg int) (pop, push int) {
	info := GetOpcodeInfo(op)
	if info.Effect != nil {
		return info.Effect(arg)
	}
	return info.Pop, info.Push
}

// OpensBlock returns true if this opcode starts a block.
func (op Opcode) OpensBlock() bool {
	return GetOpcodeInfo(op).OpensBlock
}

// ClosesBlock returns true if this opcode ends a block.
func (op Opcode) ClosesBlock() bool {
	return GetOpcodeInfo(op).ClosesBlock
}

// IsExtendedArg returns true for the instruction that carries the high
// bits of its successor's operand.
func (op Opcode) IsExtendedArg() bool {
	return op == EXTENDED_ARG
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
