package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"unstack/internal/analysis"
	"unstack/internal/config"
	"unstack/internal/detectors"
	"unstack/internal/disasm"
	"unstack/internal/render"
	"unstack/internal/unstack/log"
)

var followCmd = &cobra.Command{
	Use:   "follow [file]",
	Short: "Reconstruct code units of a growing text listing as they complete",
	Long: `Follow a text listing while it is being written, like tail -f, and print the
command trees of each code unit as soon as the next unit header shows that it is
complete. The last unit is printed when the file stops growing for --idle, or
when following ends.`,
	Example: `
# Follow a listing written by a long-running disassembly
unstack follow build/out.dis

# Flush the trailing unit after two quiet seconds
unstack follow --idle 2s build/out.dis
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts followOptions
		opts.once, _ = cmd.Flags().GetBool("no-follow")
		opts.reopen, _ = cmd.Flags().GetBool("reopen")
		opts.poll, _ = cmd.Flags().GetBool("poll")
		opts.idle, _ = cmd.Flags().GetDuration("idle")

		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return followListing(cmd.Context(), out, args[0], cfg, outputOptions(out, cfg), opts)
	},
}

func init() {
	followCmd.Flags().Bool("no-follow", false, "Read the listing once and stop at end of file")
	followCmd.Flags().Bool("reopen", false, "Reopen the file when it is rotated or truncated")
	followCmd.Flags().Bool("poll", false, "Poll for changes instead of using file notifications")
	followCmd.Flags().Duration("idle", 0, "Print the unit in progress after the file has been quiet this long")
}

type followOptions struct {
	once   bool
	reopen bool
	poll   bool
	idle   time.Duration
}

// followListing tails path and renders every code unit as the scanner
// completes it. Interrupting the command or reaching a deadline on ctx is
// not an error.
func followListing(ctx context.Context, w io.Writer, path string, cfg config.Config, ropts render.Options, opts followOptions) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    !opts.once,
		ReOpen:    opts.reopen && !opts.once,
		MustExist: true,
		Poll:      opts.poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", path, err)
	}
	defer t.Cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	units := make(chan disasm.CodeUnit)
	errc := make(chan error, 1)
	go func() {
		defer log.RecoverPanic("follow", func() {
			errc <- errors.New("listing reader stopped after a panic")
		})
		defer close(units)
		errc <- scanTail(ctx, t, units, cfg.ExtendedArgShift, opts.idle)
	}()

	x := analysis.Extractor{ExtendedArgShift: cfg.ExtendedArgShift}
	chain := detectors.Default(cfg.StrictBlocks)

	var runErr error
	failed, total := 0, 0
	for unit := range units {
		if runErr != nil {
			continue
		}
		total++
		res := x.Reconstruct(unit)
		results := []analysis.Result{res}
		findings := chain.CheckResults(results)
		if err := render.Write(w, cfg.Format, render.NewReport(results, findings), ropts); err != nil {
			runErr = err
			cancel()
			continue
		}
		if res.Failed() {
			failed++
			if !cfg.KeepGoing {
				runErr = res.Err
				cancel()
				continue
			}
		}
		if err := analysis.FindingsError(findings); err != nil {
			runErr = err
			cancel()
		}
	}

	if err := <-errc; err != nil && !stopped(err) && runErr == nil {
		runErr = err
	}
	if runErr == nil && failed > 0 {
		runErr = fmt.Errorf("%d of %d code units failed", failed, total)
	}
	return runErr
}

// stopped reports whether err only says that following was ended from
// outside, by an interrupt or a deadline.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// scanTail feeds tailed lines to a ListingScanner and sends each completed
// unit to out. It returns when the tail ends or ctx is done.
func scanTail(ctx context.Context, t *tail.Tail, out chan<- disasm.CodeUnit, shift uint, idle time.Duration) error {
	defer func() {
		// Keep the tailer from blocking on a line nobody reads while it
		// shuts down.
		go func() {
			for range t.Lines {
			}
		}()
		_ = t.Stop()
	}()

	sc := disasm.NewListingScanner()
	sc.ExtendedArgShift = shift
	emit := func(u *disasm.CodeUnit) error {
		if u == nil {
			return nil
		}
		select {
		case out <- *u:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var timer *time.Timer
	var quiet <-chan time.Time
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		quiet = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-quiet:
			if sc.Pending() {
				slog.Debug("Listing idle, flushing unit in progress", "idle", idle)
				if err := emit(sc.Flush()); err != nil {
					return err
				}
			}
			timer.Reset(idle)

		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Wait(); err != nil {
					return err
				}
				return emit(sc.Flush())
			}
			if line.Err != nil {
				return line.Err
			}
			u, err := sc.Feed(line.Text)
			if err != nil {
				return err
			}
			if err := emit(u); err != nil {
				return err
			}
			if timer != nil {
				timer.Reset(idle)
			}
		}
	}
}
