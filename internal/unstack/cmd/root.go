package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"unstack/internal/analysis"
	"unstack/internal/config"
	"unstack/internal/detectors"
	"unstack/internal/disasm"
	"unstack/internal/render"
	"unstack/internal/ui/colorize"
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default ./unstack.toml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-file", "", "Write application logs to a file instead of stderr")
	rootCmd.PersistentFlags().StringP("format", "o", "", "Output format: text, json, cbor or markdown")
	rootCmd.PersistentFlags().StringP("input-format", "i", "", "Listing format: text, json or yaml (default from the file extension)")
	rootCmd.PersistentFlags().StringSliceP("unit", "u", nil, "Only process the named code units")
	rootCmd.PersistentFlags().Bool("strict", false, "Treat block openers without a closer as errors")
	rootCmd.PersistentFlags().BoolP("keep-going", "k", false, "Report failed code units and continue with the rest")
	rootCmd.PersistentFlags().IntP("workers", "j", 0, "Code units reconstructed in parallel (default one per CPU)")
	rootCmd.PersistentFlags().Uint("extended-arg-shift", 0, fmt.Sprintf("Bits each EXTENDED_ARG prefix shifts its value by (default %d)", analysis.DefaultExtendedArgShift))

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "unstack [file]",
	Short: "Rebuild command trees from stack-machine bytecode listings",
	Long: `Unstack reads a disassembled bytecode listing and regroups each code unit's
flat instruction stream into command trees: every operation together with the
instructions that computed its operands, and every block with its body.`,
	Example: `
# Reconstruct every code unit of a listing
unstack module.dis

# Only the code unit "f", as JSON
unstack -o json -u f module.dis

# Read a listing from stdin
python3.4 -m dis module.py | unstack -
  `,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		units, err := loadUnits(cmd, args, cfg.ExtendedArgShift)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return reconstruct(cmd.Context(), out, cfg, units, outputOptions(out, cfg))
	},
}

// analyze reconstructs units and runs the checker chain over the results.
func analyze(ctx context.Context, cfg config.Config, units []disasm.CodeUnit) ([]analysis.Result, []analysis.Finding, error) {
	results, err := analysis.ReconstructAll(ctx, units, analysis.BatchOptions{
		Extractor: analysis.Extractor{ExtendedArgShift: cfg.ExtendedArgShift},
		Workers:   cfg.Workers,
		KeepGoing: cfg.KeepGoing,
	})
	if err != nil {
		return nil, nil, err
	}
	findings := detectors.Default(cfg.StrictBlocks).CheckResults(results)
	slog.Debug("Reconstructed listing", "units", len(results), "findings", len(findings))
	return results, findings, nil
}

func reconstruct(ctx context.Context, w io.Writer, cfg config.Config, units []disasm.CodeUnit, opts render.Options) error {
	results, findings, err := analyze(ctx, cfg, units)
	if err != nil {
		return err
	}
	rep := render.NewReport(results, findings)
	if err := render.Write(w, cfg.Format, rep, opts); err != nil {
		return err
	}
	return outcome(rep, findings)
}

// outcome is the error a run exits with: failed units first, then
// error-severity findings.
func outcome(rep render.Report, findings []analysis.Finding) error {
	if n := rep.Failed(); n > 0 {
		return fmt.Errorf("%d of %d code units failed", n, len(rep.Units))
	}
	return analysis.FindingsError(findings)
}

// outputOptions enables colour and terminal-width markdown only when w is
// a terminal.
func outputOptions(w io.Writer, cfg config.Config) render.Options {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return render.Options{}
	}
	opts := render.Options{Color: !colorize.Disabled()}
	if cfg.Format == "markdown" {
		opts.Width = 80
		if width, _, err := term.GetSize(f.Fd()); err == nil && width > 2 {
			opts.Width = width - 2
		}
	}
	return opts
}

func Execute() {
	// Bypass fang when output is being piped so cbor and json stay clean
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
