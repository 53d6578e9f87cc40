package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"unstack/internal/render"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Reconstruct a listing and report structural findings",
	Long: `Reconstruct every code unit of a listing without printing the trees, and
report failed units and checker findings. Exits non-zero when a unit fails or
a finding has error severity (dangling block openers are errors with --strict).`,
	Example: `
# Check a listing
unstack check module.dis

# Only print the summary
unstack check -q module.dis
  `,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")

		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		units, err := loadUnits(cmd, args, cfg.ExtendedArgShift)
		if err != nil {
			return err
		}

		// Every unit is checked, failures included.
		cfg.KeepGoing = true
		results, findings, err := analyze(cmd.Context(), cfg, units)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		commands := 0
		for _, r := range results {
			if r.Failed() {
				fmt.Fprintf(w, "error: %v\n", r.Err)
				continue
			}
			for _, c := range r.Commands {
				commands += c.Size()
			}
		}
		if !quiet {
			for _, f := range findings {
				fmt.Fprintf(w, "%s [%s]\n", f, f.Check)
			}
		}
		fmt.Fprintf(w, "%d code units, %d commands, %d findings\n", len(results), commands, len(findings))

		return outcome(render.NewReport(results, findings), findings)
	},
}

func init() {
	checkCmd.Flags().BoolP("quiet", "q", false, "Only print failed units and the summary")
}
