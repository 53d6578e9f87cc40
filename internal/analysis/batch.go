package analysis

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"unstack/internal/disasm"
)

// BatchOptions controls ReconstructAll.
type BatchOptions struct {
	Extractor Extractor

	// Workers bounds the number of units reconstructed at once. Zero or
	// less means runtime.NumCPU().
	Workers int

	// KeepGoing records a unit's failure in its Result and carries on with
	// the rest of the batch instead of cancelling it.
	KeepGoing bool
}

// Result is the reconstruction of one code unit.
type Result struct {
	Unit         string
	Instructions int
	Commands     []*Command
	Err          error
}

// Failed reports whether the unit could not be reconstructed.
func (r Result) Failed() bool { return r.Err != nil }

// Reconstruct extracts every top-level command of one unit.
func (x Extractor) Reconstruct(unit disasm.CodeUnit) Result {
	res := Result{Unit: unit.Name, Instructions: len(unit.Instructions)}
	cmds, err := x.ExtractCommands(unit.Instructions)
	if err != nil {
		res.Err = &UnitError{Unit: unit.Name, Err: err}
		return res
	}
	res.Commands = cmds
	return res
}

// ReconstructAll reconstructs independent code units in parallel. Results
// are returned in input order. Unless opts.KeepGoing is set the first
// failure cancels the batch and is returned with no results.
func ReconstructAll(ctx context.Context, units []disasm.CodeUnit, opts BatchOptions) ([]Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(units))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, unit := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = opts.Extractor.Reconstruct(unit)
			if results[i].Err != nil && !opts.KeepGoing {
				return results[i].Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
