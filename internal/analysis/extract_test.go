package analysis

import (
	"errors"
	"strings"
	"testing"

	"unstack/internal/disasm"
)

// stream assigns offsets 0, 3, 6, ... to the given instructions.
func stream(insts ...disasm.Inst) disasm.Stream {
	s := make(disasm.Stream, len(insts))
	for i, inst := range insts {
		inst.Offset = i * 3
		s[i] = inst
	}
	return s
}

func op(name string) disasm.Inst { return disasm.New(0, name) }

func opArg(name string, arg int, val any) disasm.Inst {
	return disasm.New(0, name).WithArg(arg, val)
}

func loadConst(v int) disasm.Inst { return opArg("LOAD_CONST", v, v) }

func names(cmds []*Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Operation().Name()
	}
	return out
}

func argNames(c *Command) []string { return names(c.Arguments()) }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// balance recomputes the running stack balance a non-block command closed
// on: the operation's own demand plus each argument's net consumption.
func balance(c *Command) int {
	b := c.Operation().ConsumeCount()
	for _, arg := range c.Arguments() {
		b += arg.ConsumeCount() - arg.ProduceCount()
	}
	return b
}

// checkInvariants verifies order preservation everywhere in the forest and
// returns the offsets of every command.
func checkInvariants(t *testing.T, forest []*Command) map[int]bool {
	t.Helper()
	seen := make(map[int]bool)
	last := -1
	for _, root := range forest {
		if root.Offset() <= last {
			t.Errorf("top-level command at %d does not follow %d", root.Offset(), last)
		}
		last = root.Offset()
		root.Walk(func(c *Command, _ int) bool {
			if seen[c.Offset()] {
				t.Errorf("offset %d covered twice", c.Offset())
			}
			seen[c.Offset()] = true
			prev := -1
			for _, arg := range c.Arguments() {
				if arg.Offset() <= prev || arg.Offset() >= c.Offset() {
					t.Errorf("%s at %d: argument offset %d out of order", c.Operation().Name(), c.Offset(), arg.Offset())
				}
				prev = arg.Offset()
			}
			return true
		})
	}
	return seen
}

func TestSimpleExpressionTree(t *testing.T) {
	insts := stream(loadConst(1), loadConst(2), op("BINARY_ADD"))

	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("got %d commands, want 1", len(forest))
	}

	add := forest[0]
	if add.Operation().Name() != "BINARY_ADD" || add.Offset() != 6 {
		t.Errorf("root = %s at %d", add.Operation().Name(), add.Offset())
	}
	if got := argNames(add); !equalStrings(got, []string{"LOAD_CONST", "LOAD_CONST"}) {
		t.Fatalf("arguments = %v", got)
	}
	if add.Argument(0).Operation().Argument() != 1 || add.Argument(1).Operation().Argument() != 2 {
		t.Errorf("arguments out of execution order: %v, %v",
			add.Argument(0).Operation().Argument(), add.Argument(1).Operation().Argument())
	}
	if add.Operation().ProduceCount() != 1 {
		t.Errorf("root operation produces %d, want 1", add.Operation().ProduceCount())
	}
	if add.ConsumeCount() != 2 || add.ProduceCount() != 3 {
		t.Errorf("derived counts = (%d, %d), want (2, 3)", add.ConsumeCount(), add.ProduceCount())
	}
	if b := balance(add); b != 0 {
		t.Errorf("balance = %d, want 0", b)
	}
	checkInvariants(t, forest)
}

func TestExtendedArgMerging(t *testing.T) {
	// An 8-bit operand field: 1<<8 | 44 = 300.
	x := Extractor{ExtendedArgShift: 8}

	t.Run("raw operand", func(t *testing.T) {
		insts := stream(opArg("EXTENDED_ARG", 1, 1), opArg("LOAD_CONST", 44, nil))
		forest, err := x.ExtractCommands(insts)
		if err != nil {
			t.Fatalf("ExtractCommands failed: %v", err)
		}
		if len(forest) != 1 {
			t.Fatalf("got %d commands (%v), want 1", len(forest), names(forest))
		}
		if got := forest[0].Operation().Argument(); got != 300 {
			t.Errorf("merged argument = %v, want 300", got)
		}
		if forest[0].Offset() != 3 {
			t.Errorf("command should carry the low instruction's offset, got %d", forest[0].Offset())
		}
	})

	t.Run("echoed resolved value", func(t *testing.T) {
		insts := stream(opArg("EXTENDED_ARG", 1, 1), opArg("JUMP_ABSOLUTE", 44, 44))
		forest, err := x.ExtractCommands(insts)
		if err != nil {
			t.Fatalf("ExtractCommands failed: %v", err)
		}
		if got := forest[0].Operation().Argument(); got != 300 {
			t.Errorf("merged argument = %v, want 300", got)
		}
	})

	t.Run("symbolic value kept", func(t *testing.T) {
		insts := stream(opArg("EXTENDED_ARG", 1, 1), opArg("LOAD_NAME", 44, "far_away"))
		forest, err := x.ExtractCommands(insts)
		if err != nil {
			t.Fatalf("ExtractCommands failed: %v", err)
		}
		o := forest[0].Operation()
		if arg, _ := o.Arg(); arg != 300 || o.Argument() != "far_away" {
			t.Errorf("operation = %s", o)
		}
	})

	t.Run("arity from merged operand", func(t *testing.T) {
		// A 4-bit operand field keeps the tuple small: 1<<4 | 2 = 18.
		insts := make([]disasm.Inst, 0, 20)
		for i := 0; i < 18; i++ {
			insts = append(insts, loadConst(i))
		}
		insts = append(insts, opArg("EXTENDED_ARG", 1, nil), opArg("BUILD_TUPLE", 2, nil))
		x4 := Extractor{ExtendedArgShift: 4}
		forest, err := x4.ExtractCommands(stream(insts...))
		if err != nil {
			t.Fatalf("ExtractCommands failed: %v", err)
		}
		if len(forest) != 1 || forest[0].NumArguments() != 18 {
			t.Fatalf("want one BUILD_TUPLE with 18 arguments, got %v", names(forest))
		}
	})

	t.Run("only one level is merged", func(t *testing.T) {
		insts := stream(opArg("EXTENDED_ARG", 1, 1), opArg("EXTENDED_ARG", 2, 2), opArg("LOAD_CONST", 3, nil))
		forest, err := x.ExtractCommands(insts)
		if err != nil {
			t.Fatalf("ExtractCommands failed: %v", err)
		}
		if got := names(forest); !equalStrings(got, []string{"EXTENDED_ARG", "LOAD_CONST"}) {
			t.Fatalf("forest = %v", got)
		}
		if got := forest[1].Operation().Argument(); got != 2<<8|3 {
			t.Errorf("merged argument = %v, want %d", got, 2<<8|3)
		}
	})
}

func TestExtendedArgFromListing(t *testing.T) {
	// The disassembler prints the operand after EXTENDED_ARG with the high
	// bits already folded in.
	const listing = `  1           0 EXTENDED_ARG             1
              3 LOAD_CONST           65580 (65580)
              6 RETURN_VALUE
`
	units, err := disasm.ParseListing(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("ParseListing failed: %v", err)
	}
	forest, err := ExtractCommands(units[0].Instructions)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if got := names(forest); !equalStrings(got, []string{"RETURN_VALUE"}) {
		t.Fatalf("forest = %v", got)
	}
	load := forest[0].Argument(0).Operation()
	if arg, _ := load.Arg(); arg != 65580 || load.Argument() != 65580 {
		t.Errorf("LOAD_CONST operand = %d (%v), want 65580", arg, load.Argument())
	}
}

func TestBlockAbsorption(t *testing.T) {
	insts := stream(opArg("SETUP_LOOP", 9, 12), loadConst(1), loadConst(2), op("POP_BLOCK"))

	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if got := names(forest); !equalStrings(got, []string{"POP_BLOCK"}) {
		t.Fatalf("forest = %v, want [POP_BLOCK]", got)
	}
	block := forest[0]
	if got := argNames(block); !equalStrings(got, []string{"LOAD_CONST", "LOAD_CONST"}) {
		t.Fatalf("block arguments = %v", got)
	}
	if block.Argument(0).Offset() != 3 || block.Argument(1).Offset() != 6 {
		t.Errorf("block arguments out of order")
	}

	seen := checkInvariants(t, forest)
	if seen[0] {
		t.Error("block opener must not appear in the tree")
	}
}

func TestNestedBlocks(t *testing.T) {
	insts := stream(
		opArg("SETUP_LOOP", 20, nil),   // 0
		opArg("SETUP_EXCEPT", 8, nil),  // 3
		loadConst(1),                   // 6
		op("POP_TOP"),                  // 9
		op("POP_BLOCK"),                // 12
		loadConst(2),                   // 15
		op("POP_TOP"),                  // 18
		op("POP_BLOCK"),                // 21
		opArg("LOAD_CONST", 0, "None"), // 24
		op("RETURN_VALUE"),             // 27
	)

	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if got := names(forest); !equalStrings(got, []string{"POP_BLOCK", "RETURN_VALUE"}) {
		t.Fatalf("forest = %v", got)
	}

	outer := forest[0]
	if got := argNames(outer); !equalStrings(got, []string{"POP_BLOCK", "POP_TOP"}) {
		t.Fatalf("outer block = %v", got)
	}
	inner := outer.Argument(0)
	if inner.Offset() != 12 || !equalStrings(argNames(inner), []string{"POP_TOP"}) {
		t.Errorf("inner block = %s %v", inner, argNames(inner))
	}

	seen := checkInvariants(t, forest)
	for _, off := range []int{0, 3} {
		if seen[off] {
			t.Errorf("opener at %d leaked into the tree", off)
		}
	}
	if len(seen) != len(insts)-2 {
		t.Errorf("covered %d instructions, want %d", len(seen), len(insts)-2)
	}
}

func TestForLoop(t *testing.T) {
	// for i in range(3): print(i)
	insts := stream(
		opArg("SETUP_LOOP", 30, 33),      // 0
		opArg("LOAD_NAME", 0, "range"),   // 3
		opArg("LOAD_CONST", 0, 3),        // 6
		opArg("CALL_FUNCTION", 1, nil),   // 9
		op("GET_ITER"),                   // 12
		opArg("FOR_ITER", 12, 30),        // 15
		opArg("STORE_NAME", 1, "i"),      // 18
		opArg("LOAD_NAME", 2, "print"),   // 21
		opArg("LOAD_NAME", 1, "i"),       // 24
		opArg("CALL_FUNCTION", 1, nil),   // 27
		op("POP_TOP"),                    // 30
		opArg("JUMP_ABSOLUTE", 15, 15),   // 33
		op("POP_BLOCK"),                  // 36
		opArg("LOAD_CONST", 1, "None"),   // 39
		op("RETURN_VALUE"),               // 42
	)

	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if got := names(forest); !equalStrings(got, []string{"POP_BLOCK", "RETURN_VALUE"}) {
		t.Fatalf("forest = %v", got)
	}

	loop := forest[0]
	if got := argNames(loop); !equalStrings(got, []string{"STORE_NAME", "POP_TOP", "JUMP_ABSOLUTE"}) {
		t.Fatalf("loop body = %v", got)
	}

	store := loop.Argument(0)
	forIter := store.Argument(0)
	if forIter.Operation().Name() != "FOR_ITER" {
		t.Fatalf("STORE_NAME argument = %s", forIter)
	}
	getIter := forIter.Argument(0)
	call := getIter.Argument(0)
	if got := argNames(call); !equalStrings(got, []string{"LOAD_NAME", "LOAD_CONST"}) {
		t.Errorf("range call arguments = %v", got)
	}

	// FOR_ITER leaves the iterator behind, so the store closes one slot
	// past zero.
	if b := balance(store); b != -1 {
		t.Errorf("STORE_NAME balance = %d, want -1", b)
	}

	printCall := loop.Argument(1).Argument(0)
	if printCall.Argument(0).Operation().Argument() != "print" || printCall.Argument(1).Operation().Argument() != "i" {
		t.Errorf("print call arguments = %v", argNames(printCall))
	}
	checkInvariants(t, forest)
}

func TestVariableArity(t *testing.T) {
	insts := stream(
		opArg("LOAD_NAME", 0, "f"),
		loadConst(1),
		loadConst(2),
		loadConst(3),
		opArg("BUILD_LIST", 3, nil),
		opArg("LOAD_CONST", 4, "k"),
		loadConst(5),
		opArg("CALL_FUNCTION", 1|1<<8, nil),
		op("POP_TOP"),
	)

	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("forest = %v", names(forest))
	}
	call := forest[0].Argument(0)
	if got := argNames(call); !equalStrings(got, []string{"LOAD_NAME", "BUILD_LIST", "LOAD_CONST", "LOAD_CONST"}) {
		t.Fatalf("call arguments = %v", got)
	}
	if call.Argument(1).NumArguments() != 3 {
		t.Errorf("BUILD_LIST has %d arguments, want 3", call.Argument(1).NumArguments())
	}
	for _, c := range []*Command{forest[0], call, call.Argument(1)} {
		if b := balance(c); b != 0 {
			t.Errorf("%s balance = %d", c.Operation().Name(), b)
		}
	}
	checkInvariants(t, forest)
}

func TestOvershootAbsorbed(t *testing.T) {
	// a, b = b, a: ROT_TWO pops and pushes two values, so the first store
	// ends one slot past zero and the second store accepts it as its
	// whole input.
	insts := stream(
		opArg("LOAD_NAME", 0, "b"),
		opArg("LOAD_NAME", 1, "a"),
		op("ROT_TWO"),
		opArg("STORE_NAME", 1, "a"),
		opArg("STORE_NAME", 0, "b"),
	)
	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("forest = %v, want a single STORE_NAME", names(forest))
	}
	outer := forest[0]
	if outer.Operation().Argument() != "b" || !equalStrings(argNames(outer), []string{"STORE_NAME"}) {
		t.Fatalf("outer store = %s %v", outer.Operation(), argNames(outer))
	}
	inner := outer.Argument(0)
	if b := balance(inner); b != -1 {
		t.Errorf("inner store balance = %d, want -1", b)
	}
	if b := balance(outer); b != 0 {
		t.Errorf("outer store balance = %d, want 0", b)
	}
	checkInvariants(t, forest)
}

func TestDanglingOpenerIsLeaf(t *testing.T) {
	insts := stream(opArg("SETUP_EXCEPT", 10, nil), loadConst(1), op("POP_TOP"))
	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("dangling opener should not fail: %v", err)
	}
	if got := names(forest); !equalStrings(got, []string{"SETUP_EXCEPT", "POP_TOP"}) {
		t.Fatalf("forest = %v", got)
	}
	if forest[0].NumArguments() != 0 {
		t.Error("opener should be a leaf")
	}
}

func TestExtractCommandCursor(t *testing.T) {
	insts := stream(loadConst(1), op("POP_TOP"), loadConst(2), op("POP_TOP"))

	next, cmd, err := ExtractCommand(insts, len(insts))
	if err != nil {
		t.Fatalf("ExtractCommand failed: %v", err)
	}
	if next != 2 || cmd.Offset() != 9 {
		t.Errorf("ExtractCommand = (%d, %s at %d), want cursor 2 at offset 9", next, cmd, cmd.Offset())
	}

	next, cmd, err = ExtractCommand(insts, next)
	if err != nil || next != 0 || cmd.Offset() != 3 {
		t.Errorf("second ExtractCommand = (%d, %v, %v)", next, cmd, err)
	}

	for _, cursor := range []int{0, -1, len(insts) + 1} {
		if _, _, err := ExtractCommand(insts, cursor); !errors.Is(err, ErrCursorOutOfRange) {
			t.Errorf("cursor %d: error = %v, want ErrCursorOutOfRange", cursor, err)
		}
	}
}

func TestUnsupportedOperation(t *testing.T) {
	insts := stream(loadConst(1), op("FROBNICATE"), op("POP_TOP"))
	forest, err := ExtractCommands(insts)
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("error = %v, want ErrUnsupportedOperation", err)
	}
	if forest != nil {
		t.Errorf("no commands expected on failure, got %v", names(forest))
	}
	var uoe *UnsupportedOperationError
	if !errors.As(err, &uoe) || uoe.Offset != 3 || uoe.Opname != "FROBNICATE" {
		t.Errorf("error details = %+v", uoe)
	}
}

func TestStructuralUnderflow(t *testing.T) {
	tests := []struct {
		name        string
		insts       disasm.Stream
		wantOffset  int
		wantPending int
		wantInBlock bool
	}{
		{
			name:        "binary op first",
			insts:       stream(op("BINARY_ADD")),
			wantOffset:  0,
			wantPending: 2,
		},
		{
			name:        "one operand short",
			insts:       stream(loadConst(1), op("BINARY_ADD")),
			wantOffset:  3,
			wantPending: 1,
		},
		{
			name:        "closer without opener",
			insts:       stream(loadConst(1), op("POP_BLOCK")),
			wantOffset:  3,
			wantInBlock: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forest, err := ExtractCommands(tt.insts)
			if !errors.Is(err, ErrStructuralUnderflow) {
				t.Fatalf("error = %v, want ErrStructuralUnderflow", err)
			}
			if forest != nil {
				t.Error("no commands expected on failure")
			}
			var sue *StructuralUnderflowError
			if !errors.As(err, &sue) {
				t.Fatalf("error %T is not a StructuralUnderflowError", err)
			}
			if sue.Offset != tt.wantOffset || sue.Pending != tt.wantPending || sue.InBlock != tt.wantInBlock {
				t.Errorf("error details = %+v", *sue)
			}
		})
	}
}

func TestEmptyStream(t *testing.T) {
	forest, err := ExtractCommands(nil)
	if err != nil || len(forest) != 0 {
		t.Errorf("ExtractCommands(nil) = %v, %v", forest, err)
	}
}

func TestDump(t *testing.T) {
	insts := disasm.Stream{
		disasm.New(0, "LOAD_NAME").WithArg(0, "x").WithLine(3),
		disasm.New(3, "LOAD_CONST").WithArg(1, 1),
		disasm.New(6, "BINARY_ADD").AsJumpTarget(),
	}
	forest, err := ExtractCommands(insts)
	if err != nil {
		t.Fatalf("ExtractCommands failed: %v", err)
	}
	want := strings.Join([]string{
		"    3:0      LOAD_NAME 0 (x)",
		"     :3      LOAD_CONST 1 (1)",
		">    :6  BINARY_ADD",
		"",
	}, "\n")
	if got := forest[0].DumpString(); got != want {
		t.Errorf("Dump mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
	if got := forest[0].String(); got != "<Command BINARY_ADD (2 args)> LOAD_NAME" {
		t.Errorf("String() = %q", got)
	}
	if line, ok := forest[0].Argument(0).StartsLine(); !ok || line != 3 {
		t.Errorf("StartsLine() = %d, %v", line, ok)
	}
	if forest[0].Size() != 3 {
		t.Errorf("Size() = %d", forest[0].Size())
	}
}

func TestArgumentsIsACopy(t *testing.T) {
	forest, err := ExtractCommands(stream(loadConst(1), loadConst(2), op("BINARY_ADD")))
	if err != nil {
		t.Fatal(err)
	}
	args := forest[0].Arguments()
	args[0], args[1] = args[1], args[0]
	if forest[0].Argument(0).Offset() != 0 {
		t.Error("mutating the returned slice changed the command")
	}
}

func TestNewOperation(t *testing.T) {
	arg := 2
	o, err := NewOperation("CALL_FUNCTION", &arg, nil)
	if err != nil {
		t.Fatalf("NewOperation failed: %v", err)
	}
	if o.ConsumeCount() != 3 || o.ProduceCount() != 1 {
		t.Errorf("CALL_FUNCTION 2 effect = (%d, %d)", o.ConsumeCount(), o.ProduceCount())
	}
	if o.String() != "CALL_FUNCTION 2" {
		t.Errorf("String() = %q", o.String())
	}
	if _, err := NewOperation("NOPE", nil, nil); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("error = %v", err)
	}
	if o, _ := NewOperation("RETURN_VALUE", nil, nil); o.Argument() != nil {
		t.Errorf("operand-less Argument() = %v", o.Argument())
	}
}
