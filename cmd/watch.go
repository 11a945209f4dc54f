package cmd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/observability"
	"github.com/otherjamesbrown/simplot/pkg/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		flags       engineFlags
		debounce    time.Duration
		initialScan bool
		summary     bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Classify action logs as they appear in a directory",
		Long: `Watch a directory and classify each .csv action log once it stops changing.

A file is processed again when its content changes. Rewriting a file with
identical content is ignored. Stop with Ctrl+C.

Examples:
  simplot watch ./exports
  simplot watch ./exports --initial-scan --summary
  simplot watch ./exports --output json --debounce 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.apply(cmd, deps)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := deps.setup(ctx)
			if err != nil {
				return err
			}

			out := deps.stdout()
			handler := func(ctx context.Context, path string, content []byte) error {
				fr, err := rt.processor.ProcessReader(ctx, "", path, bytes.NewReader(content))
				if err != nil {
					return err
				}

				if summary {
					err = writeSummaries(out, cfg.OutputFormat, []FileSummary{summarize(fr)})
				} else {
					if cfg.OutputFormat == config.OutputFormatText {
						fmt.Fprintf(out, "== %s\n", path)
					}
					err = writePoints(out, cfg.OutputFormat, fr.Points)
				}
				if err != nil {
					return err
				}

				if cfg.MetricsFile != "" {
					if err := observability.WriteTextfile(rt.registry, cfg.MetricsFile); err != nil {
						rt.logger.Warn("Failed to write metrics file", logging.Err(err))
					}
				}
				return nil
			}

			w, err := watch.New(watch.Config{
				Dir:         args[0],
				Debounce:    debounce,
				InitialScan: initialScan,
			}, handler, rt.logger, watch.WithTracer(observability.NewTracer()))
			if err != nil {
				_ = rt.close()
				return err
			}

			if err := w.Start(ctx); err != nil {
				w.Stop()
				_ = rt.close()
				return err
			}

			select {
			case <-ctx.Done():
			case <-w.Done():
			}
			w.Stop()

			stats := w.Stats()
			rt.logger.Info("Watcher stopped",
				logging.F("handled", stats.Handled),
				logging.F("unchanged", stats.Unchanged),
				logging.F("errors", stats.Errors))

			return rt.close()
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is processed")
	cmd.Flags().BoolVar(&initialScan, "initial-scan", false, "Also process the .csv files already in the directory")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print point counts instead of the points")

	return cmd
}
