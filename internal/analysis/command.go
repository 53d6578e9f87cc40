package analysis

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"unstack/internal/disasm"
)

// Command is a sequence of instructions producing a distinct result.
//
// The operation is the final instruction that yields the result; the
// arguments are the commands that supply its inputs, in the order they
// originally executed. Leaf commands have no arguments. A block-closing
// command instead holds every command between it and its block opener.
//
// The stack counts of a command cover the operation itself plus all of its
// arguments. A Command is not modified after it is built.
type Command struct {
	operation    Operation
	arguments    []*Command
	offset       int
	startsLine   int
	hasLine      bool
	isJumpTarget bool
	consume      int
	produce      int
}

// newCommand finalizes a command. gathered holds the arguments in the
// order the backward pass found them; it is copied in forward order.
func newCommand(op Operation, inst disasm.Inst, gathered []*Command) *Command {
	c := &Command{
		operation:    op,
		offset:       inst.Offset,
		isJumpTarget: inst.IsJumpTarget,
		consume:      op.ConsumeCount(),
		produce:      op.ProduceCount(),
	}
	if inst.StartsLine != nil {
		c.startsLine, c.hasLine = *inst.StartsLine, true
	}
	if len(gathered) > 0 {
		c.arguments = make([]*Command, len(gathered))
		for i, arg := range gathered {
			c.arguments[len(gathered)-1-i] = arg
			c.consume += arg.consume
			c.produce += arg.produce
		}
	}
	return c
}

// Operation returns the operation this command represents.
func (c *Command) Operation() Operation { return c.operation }

// Arguments returns a copy of the argument commands in execution order.
func (c *Command) Arguments() []*Command { return slices.Clone(c.arguments) }

// NumArguments returns the number of argument commands.
func (c *Command) NumArguments() int { return len(c.arguments) }

// Argument returns the i-th argument in execution order.
func (c *Command) Argument(i int) *Command { return c.arguments[i] }

// Offset returns the byte offset of the operation's instruction.
func (c *Command) Offset() int { return c.offset }

// StartsLine returns the source line the operation's instruction starts,
// if it starts one.
func (c *Command) StartsLine() (int, bool) { return c.startsLine, c.hasLine }

// IsJumpTarget reports whether any instruction branches to this offset.
func (c *Command) IsJumpTarget() bool { return c.isJumpTarget }

// ConsumeCount is the operation's consume count plus that of every
// argument.
func (c *Command) ConsumeCount() int { return c.consume }

// ProduceCount is the operation's produce count plus that of every
// argument.
func (c *Command) ProduceCount() int { return c.produce }

// Size returns the number of commands in the tree rooted at c.
func (c *Command) Size() int {
	n := 1
	for _, arg := range c.arguments {
		n += arg.Size()
	}
	return n
}

func (c *Command) String() string {
	if len(c.arguments) == 0 {
		return fmt.Sprintf("<Command %s (0 args)>", c.operation.Name())
	}
	return fmt.Sprintf("<Command %s (%d args)> %s", c.operation.Name(), len(c.arguments), c.arguments[0].operation.Name())
}

// Walk visits c and its arguments depth-first in execution order, parents
// before children. Returning false from fn skips the node's arguments.
func (c *Command) Walk(fn func(cmd *Command, depth int) bool) {
	c.walk(fn, 0)
}

func (c *Command) walk(fn func(*Command, int) bool, depth int) {
	if !fn(c, depth) {
		return
	}
	for _, arg := range c.arguments {
		arg.walk(fn, depth+1)
	}
}

// Dump writes the tree with arguments before the operation that consumes
// them, one instruction per line:
//
//	    3:0      LOAD_NAME 0 (x)
//	     :3      LOAD_CONST 1 (1)
//	>    :6  BINARY_ADD
//
// The first column marks jump targets, followed by the source line (if the
// instruction starts one), the offset and indentation by depth.
func (c *Command) Dump(w io.Writer) error {
	return c.dump(w, 0)
}

func (c *Command) dump(w io.Writer, depth int) error {
	for _, arg := range c.arguments {
		if err := arg.dump(w, depth+1); err != nil {
			return err
		}
	}
	marker := " "
	if c.isJumpTarget {
		marker = ">"
	}
	line := "    "
	if c.hasLine {
		line = fmt.Sprintf("%4d", c.startsLine)
	}
	_, err := fmt.Fprintf(w, "%s%s:%d %s %s\n", marker, line, c.offset, strings.Repeat("    ", depth), c.operation)
	return err
}

// DumpString returns the Dump output as a string.
func (c *Command) DumpString() string {
	var sb strings.Builder
	_ = c.Dump(&sb)
	return sb.String()
}
