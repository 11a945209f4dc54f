package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/batch"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

// BatchReport is the structured output of the batch command.
type BatchReport struct {
	JobID         string                   `json:"job_id" yaml:"job_id"`
	TotalFiles    int                      `json:"total_files" yaml:"total_files"`
	Processed     int                      `json:"processed" yaml:"processed"`
	Failed        int                      `json:"failed" yaml:"failed"`
	PointCount    int                      `json:"point_count" yaml:"point_count"`
	RowErrorCount int                      `json:"row_error_count" yaml:"row_error_count"`
	DurationMs    int64                    `json:"duration_ms" yaml:"duration_ms"`
	Success       bool                     `json:"success" yaml:"success"`
	Files         []FileSummary            `json:"files" yaml:"files"`
	Points        map[string][]plot.Record `json:"points,omitempty" yaml:"points,omitempty"`
	Errors        []BatchFileError         `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// BatchFileError is a file that could not be processed.
type BatchFileError struct {
	File  string `json:"file" yaml:"file"`
	Code  string `json:"code" yaml:"code"`
	Error string `json:"error" yaml:"error"`
}

func newBatchReport(result *batch.ProcessResult, withPoints bool) BatchReport {
	report := BatchReport{
		JobID:         result.JobID,
		TotalFiles:    result.TotalFiles,
		Processed:     result.ProcessedCount,
		Failed:        result.FailedCount,
		PointCount:    result.PointCount,
		RowErrorCount: result.RowErrorCount,
		DurationMs:    result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
		Success:       result.Success,
		Files:         make([]FileSummary, 0, len(result.Files)),
	}
	if withPoints {
		report.Points = make(map[string][]plot.Record, len(result.Files))
	}
	for _, fr := range result.Files {
		report.Files = append(report.Files, summarize(fr))
		if withPoints {
			report.Points[fr.Path] = plot.ToRecords(fr.Points)
		}
	}
	for _, fe := range result.Errors {
		report.Errors = append(report.Errors, BatchFileError{File: fe.FilePath, Code: string(fe.Code), Error: fe.Error})
	}
	return report
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		flags       engineFlags
		concurrency int
		withPoints  bool
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file|dir>",
		Short: "Classify every action log under a directory",
		Long: `Classify every .csv action log under a directory, one engine per file.

Files are processed concurrently. A file that cannot be read is reported
and the remaining files are still processed.

Examples:
  simplot batch ./exports
  simplot batch ./exports --concurrency 8 --output json
  simplot batch ./exports --points --output yaml
  simplot batch ./exports --metrics-file /var/lib/node_exporter/simplot.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.apply(cmd, deps)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				if concurrency < 1 {
					return fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
				}
				cfg.Concurrency = concurrency
			}

			var opts []batch.Option
			if progress {
				opts = append(opts, batch.WithProgressHandler(progressPrinter(deps.stderr())))
			}

			ctx := cmd.Context()
			rt, err := deps.setup(ctx, opts...)
			if err != nil {
				return err
			}

			result, err := rt.processor.Process(ctx, args[0])
			closeErr := rt.close()
			if err != nil {
				return fmt.Errorf("batch %s: %w", args[0], err)
			}
			if closeErr != nil {
				return closeErr
			}

			report := newBatchReport(result, withPoints)
			out := deps.stdout()
			if cfg.OutputFormat == config.OutputFormatText {
				writeBatchText(out, report)
			} else if err := WriteStructured(out, cfg.OutputFormat, report); err != nil {
				return err
			}

			if report.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", report.Failed, report.TotalFiles)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", config.DefaultConcurrency, "Files processed at once")
	cmd.Flags().BoolVar(&withPoints, "points", false, "Include the points of each file in json/yaml output")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print progress to stderr")

	return cmd
}

func writeBatchText(w io.Writer, r BatchReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tROWS\tPOINTS\tROW ERRORS\tHEADER")
	for _, f := range r.Files {
		header := "ok"
		if !f.HeaderValid {
			header = "invalid"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", f.File, f.Rows, f.Points, len(f.RowErrors), header)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(tw, "%s\t-\t-\t-\tfailed: %s\n", e.File, e.Code)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d files, %d points, %d row errors, %d failed in %s\n",
		r.Processed, r.PointCount, r.RowErrorCount, r.Failed,
		(time.Duration(r.DurationMs) * time.Millisecond).String())
}

func progressPrinter(w io.Writer) func(batch.ProgressSnapshot) {
	return func(s batch.ProgressSnapshot) {
		if s.TotalFiles == 0 {
			return
		}
		fmt.Fprintf(w, "\r[%3.0f%%] %d/%d files, %d points, %d failed",
			s.PercentComplete(), s.ProcessedCount, s.TotalFiles, s.PointCount, s.FailedCount)
		if s.Status != batch.StatusRunning && s.Status != batch.StatusPending {
			fmt.Fprintln(w)
		}
	}
}
