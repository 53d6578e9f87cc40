// Package render turns reconstructed command forests into text dumps,
// JSON, canonical CBOR and markdown reports.
package render

import (
	"unstack/internal/analysis"
)

// Command is the serialisable form of an analysis.Command.
type Command struct {
	Op         string    `json:"op" cbor:"op"`
	Arg        *int      `json:"arg,omitempty" cbor:"arg,omitempty"`
	Value      any       `json:"value,omitempty" cbor:"value,omitempty"`
	Offset     int       `json:"offset" cbor:"offset"`
	Line       *int      `json:"line,omitempty" cbor:"line,omitempty"`
	JumpTarget bool      `json:"jump_target,omitempty" cbor:"jump_target,omitempty"`
	Consume    int       `json:"consume" cbor:"consume"`
	Produce    int       `json:"produce" cbor:"produce"`
	Args       []Command `json:"args,omitempty" cbor:"args,omitempty"`
}

// Unit is one reconstructed code unit.
type Unit struct {
	Name         string    `json:"name" cbor:"name"`
	Instructions int       `json:"instructions" cbor:"instructions"`
	Commands     []Command `json:"commands,omitempty" cbor:"commands,omitempty"`
	Error        string    `json:"error,omitempty" cbor:"error,omitempty"`

	forest []*analysis.Command
}

// Finding is a checker finding.
type Finding struct {
	Check    string `json:"check" cbor:"check"`
	Unit     string `json:"unit" cbor:"unit"`
	Offset   int    `json:"offset" cbor:"offset"`
	Op       string `json:"op" cbor:"op"`
	Severity string `json:"severity" cbor:"severity"`
	Message  string `json:"message" cbor:"message"`
}

// Report is everything one run produced.
type Report struct {
	Units    []Unit    `json:"units" cbor:"units"`
	Findings []Finding `json:"findings,omitempty" cbor:"findings,omitempty"`
}

// NewReport converts reconstruction results and their findings.
func NewReport(results []analysis.Result, findings []analysis.Finding) Report {
	rep := Report{Units: make([]Unit, 0, len(results))}
	for _, r := range results {
		u := Unit{Name: r.Unit, Instructions: r.Instructions, forest: r.Commands}
		if r.Err != nil {
			u.Error = r.Err.Error()
		}
		for _, cmd := range r.Commands {
			u.Commands = append(u.Commands, NewCommand(cmd))
		}
		rep.Units = append(rep.Units, u)
	}
	for _, f := range findings {
		rep.Findings = append(rep.Findings, Finding{
			Check:    f.Check,
			Unit:     f.Unit,
			Offset:   f.Offset,
			Op:       f.Opname,
			Severity: f.Severity.String(),
			Message:  f.Message,
		})
	}
	return rep
}

// NewCommand converts a command tree.
func NewCommand(cmd *analysis.Command) Command {
	op := cmd.Operation()
	c := Command{
		Op:         op.Name(),
		Value:      op.Value(),
		Offset:     cmd.Offset(),
		JumpTarget: cmd.IsJumpTarget(),
		Consume:    cmd.ConsumeCount(),
		Produce:    cmd.ProduceCount(),
	}
	if arg, ok := op.Arg(); ok {
		c.Arg = &arg
	}
	if line, ok := cmd.StartsLine(); ok {
		c.Line = &line
	}
	for _, arg := range cmd.Arguments() {
		c.Args = append(c.Args, NewCommand(arg))
	}
	return c
}

// CommandCount counts every command of the unit, nested ones included.
func (u Unit) CommandCount() int {
	return countCommands(u.Commands)
}

func countCommands(cmds []Command) int {
	n := len(cmds)
	for _, c := range cmds {
		n += countCommands(c.Args)
	}
	return n
}

// Failed counts the units that could not be reconstructed.
func (r Report) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Error != "" {
			n++
		}
	}
	return n
}
