package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/simplot/pkg/batch"
)

// NewProcessCommand creates the process command.
func NewProcessCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		flags   engineFlags
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "process <file|->",
		Short: "Classify an action log into plot points",
		Long: `Classify one simulation action log and print its plot points.

Each row of the CSV export becomes at most one point: an action, an
erroneous action (an action an error marker refers to), a missed action,
or a stage/CPR period. Rows that cannot be parsed are reported and skipped.

Use - to read the log from stdin.

Examples:
  simplot process session.csv
  simplot process session.csv --output json
  simplot process session.csv --summary
  cat session.csv | simplot process - --window 20`,
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

			var fr *batch.FileResult
			if args[0] == "-" {
				fr, err = rt.processor.ProcessReader(ctx, "", "stdin", deps.stdin())
			} else {
				fr, err = rt.processor.ProcessFile(ctx, "", args[0])
			}
			closeErr := rt.close()
			if err != nil {
				return fmt.Errorf("processing %s: %w", args[0], err)
			}
			if closeErr != nil {
				return closeErr
			}

			out := deps.stdout()
			if summary {
				return writeSummaries(out, cfg.OutputFormat, []FileSummary{summarize(fr)})
			}
			return writePoints(out, cfg.OutputFormat, fr.Points)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&summary, "summary", false, "Print point counts instead of the points")

	return cmd
}
