package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
)

// ValidationReport lists the problems found in an action log.
type ValidationReport struct {
	File        string       `json:"file" yaml:"file"`
	Encoding    string       `json:"encoding" yaml:"encoding"`
	Rows        int          `json:"rows" yaml:"rows"`
	ValidRows   int          `json:"valid_rows" yaml:"valid_rows"`
	HeaderValid bool         `json:"header_valid" yaml:"header_valid"`
	HeaderError string       `json:"header_error,omitempty" yaml:"header_error,omitempty"`
	Problems    []RowProblem `json:"problems,omitempty" yaml:"problems,omitempty"`
	Valid       bool         `json:"valid" yaml:"valid"`
}

// RowProblem is one row that could not be read.
type RowProblem struct {
	Line    int    `json:"line" yaml:"line"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Hint    string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// validateLog reads every row of src without classifying it.
func validateLog(name string, src io.Reader, enc actionlog.Encoding) (*ValidationReport, error) {
	rd := actionlog.NewReader(src, actionlog.WithEncoding(enc))
	report := &ValidationReport{File: name, Encoding: string(enc)}

	for {
		_, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !sperrors.IsRowScoped(err) {
				return nil, err
			}
			report.Rows++
			report.Problems = append(report.Problems, rowProblem(err))
			continue
		}
		report.Rows++
		report.ValidRows++
	}

	report.HeaderValid = rd.HeaderErr() == nil
	if !report.HeaderValid {
		report.HeaderError = rd.HeaderErr().Error()
	}
	report.Valid = report.HeaderValid && len(report.Problems) == 0
	return report, nil
}

func rowProblem(err error) RowProblem {
	p := RowProblem{Message: err.Error()}
	var pe *sperrors.ProcessingError
	if errors.As(err, &pe) {
		p.Line = pe.Line
		p.Code = string(pe.Code)
		p.Message = pe.Message
		p.Hint = sperrors.GetSuggestedAction(pe.Code)
	}
	return p
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var flags engineFlags

	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check an action log for header and row problems",
		Long: `Check that an action log has the expected header and that every row
can be read. No points are produced.

The command fails when any problem is found, so it can gate exports in scripts.

Examples:
  simplot validate session.csv
  simplot validate session.csv --output json
  simplot validate legacy.csv --encoding windows-1252`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.apply(cmd, deps)
			if err != nil {
				return err
			}

			var src io.Reader
			name := args[0]
			if name == "-" {
				src, name = deps.stdin(), "stdin"
			} else {
				f, err := os.Open(name)
				if err != nil {
					return fmt.Errorf("opening %s: %w", name, err)
				}
				defer f.Close()
				src = f
			}

			report, err := validateLog(name, src, cfg.Encoding)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}

			out := deps.stdout()
			if cfg.OutputFormat == config.OutputFormatText {
				writeValidationText(out, report)
			} else if err := WriteStructured(out, cfg.OutputFormat, report); err != nil {
				return err
			}

			if !report.Valid {
				return fmt.Errorf("%s: %d problems found", name, len(report.Problems)+boolToInt(!report.HeaderValid))
			}
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func writeValidationText(w io.Writer, r *ValidationReport) {
	if r.HeaderValid {
		fmt.Fprintf(w, "%s: header ok\n", r.File)
	} else {
		fmt.Fprintf(w, "%s: %s\n", r.File, r.HeaderError)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(w, "%s:%d: %s\n", r.File, p.Line, p.Message)
	}
	fmt.Fprintf(w, "%d rows, %d valid, %d problems\n", r.Rows, r.ValidRows, len(r.Problems))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
