package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"unstack/internal/disasm"
)

var errNoInput = errors.New("no listing given: pass a file or pipe one to stdin")

// loadUnits reads the listing named by args, or stdin when there is none
// or it is "-", and keeps the units selected with --unit.
func loadUnits(cmd *cobra.Command, args []string, shift uint) ([]disasm.CodeUnit, error) {
	path := "-"
	if len(args) > 0 {
		path = args[0]
	}

	name, _ := cmd.Flags().GetString("input-format")
	format, err := disasm.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	var units []disasm.CodeUnit
	switch {
	case path == "-":
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(f.Fd()) {
			return nil, errNoInput
		}
		units, err = disasm.Decode(in, format, shift)
	case name == "":
		units, err = disasm.Load(path, shift)
	default:
		units, err = decodeFile(path, format, shift)
	}
	if err != nil {
		return nil, err
	}

	selected, _ := cmd.Flags().GetStringSlice("unit")
	return selectUnits(units, selected)
}

func decodeFile(path string, format disasm.Format, shift uint) ([]disasm.CodeUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	defer f.Close()

	units, err := disasm.Decode(f, format, shift)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, nil
}

// selectUnits keeps the named units in listing order. Every name must
// match a unit.
func selectUnits(units []disasm.CodeUnit, names []string) ([]disasm.CodeUnit, error) {
	if len(names) == 0 {
		return units, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []disasm.CodeUnit
	for _, u := range units {
		if want[u.Name] {
			out = append(out, u)
			delete(want, u.Name)
		}
	}
	for _, n := range names {
		if want[n] {
			return nil, fmt.Errorf("no code unit named %q", n)
		}
	}
	return out, nil
}
