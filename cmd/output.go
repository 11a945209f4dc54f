package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	"github.com/otherjamesbrown/simplot/pkg/batch"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

// kindOrder is the display order of point kinds in summaries.
var kindOrder = []plot.Kind{
	plot.KindAction,
	plot.KindErroneousAction,
	plot.KindMissedAction,
	plot.KindStagePeriod,
	plot.KindCPRPeriod,
}

// FileSummary is the per-file summary printed by --summary and batch.
type FileSummary struct {
	File        string            `json:"file" yaml:"file"`
	RunID       string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Rows        int               `json:"rows" yaml:"rows"`
	Points      int               `json:"points" yaml:"points"`
	Counts      map[plot.Kind]int `json:"counts" yaml:"counts"`
	RowErrors   []string          `json:"row_errors,omitempty" yaml:"row_errors,omitempty"`
	HeaderValid bool              `json:"header_valid" yaml:"header_valid"`
	HeaderError string            `json:"header_error,omitempty" yaml:"header_error,omitempty"`
}

func summarize(fr *batch.FileResult) FileSummary {
	s := FileSummary{
		File:        fr.Path,
		RunID:       fr.RunID,
		Rows:        fr.Rows,
		Points:      len(fr.Points),
		Counts:      make(map[plot.Kind]int, len(kindOrder)),
		HeaderValid: fr.HeaderErr == nil,
	}
	for _, k := range kindOrder {
		s.Counts[k] = fr.Counts[k]
	}
	for _, err := range fr.RowErrors {
		s.RowErrors = append(s.RowErrors, err.Error())
	}
	if fr.HeaderErr != nil {
		s.HeaderError = fr.HeaderErr.Error()
	}
	return s
}

// WriteStructured encodes v as JSON or YAML.
func WriteStructured(w io.Writer, format config.OutputFormat, v interface{}) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// writePoints prints points as a table, or as an array of records.
func writePoints(w io.Writer, format config.OutputFormat, points []plot.Point) error {
	records := plot.ToRecords(points)
	if format != config.OutputFormatText {
		return WriteStructured(w, format, records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTAGE\tKIND\tDETAIL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", recordTime(r), recordStage(r), r.Kind, recordDetail(r))
	}
	return tw.Flush()
}

// writeSummaries prints one block per file.
func writeSummaries(w io.Writer, format config.OutputFormat, summaries []FileSummary) error {
	if format != config.OutputFormatText {
		if len(summaries) == 1 {
			return WriteStructured(w, format, summaries[0])
		}
		return WriteStructured(w, format, summaries)
	}

	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeSummaryText(w, s)
	}
	return nil
}

func writeSummaryText(w io.Writer, s FileSummary) {
	fmt.Fprintf(w, "%s\n", s.File)
	fmt.Fprintf(w, "  Rows:       %d\n", s.Rows)
	fmt.Fprintf(w, "  Points:     %d\n", s.Points)
	for _, k := range kindOrder {
		fmt.Fprintf(w, "    %-17s %d\n", k, s.Counts[k])
	}
	fmt.Fprintf(w, "  Row errors: %d\n", len(s.RowErrors))
	for _, e := range s.RowErrors {
		fmt.Fprintf(w, "    %s\n", e)
	}
	if !s.HeaderValid {
		fmt.Fprintf(w, "  Header:     invalid (%s)\n", s.HeaderError)
	}
}

func recordTime(r plot.Record) string {
	switch {
	case r.Timestamp != nil:
		return r.Timestamp.Clock
	case r.Start != nil && r.End != nil:
		return r.Start.Timestamp.Clock + "-" + r.End.Timestamp.Clock
	default:
		return "-"
	}
}

func recordStage(r plot.Record) string {
	var stage *actionlog.Stage
	switch {
	case r.Stage != nil:
		stage = r.Stage
	case r.Start != nil:
		stage = &r.Start.Stage
	}
	if stage == nil || (stage.Number == 0 && stage.Name == "") {
		return "-"
	}
	return fmt.Sprintf("(%d) %s", stage.Number, stage.Name)
}

func recordDetail(r plot.Record) string {
	var parts []string
	if r.Name != "" {
		name := r.Name
		if r.Category != "" {
			name = r.Category + ": " + name
		}
		if r.ShockValue != "" {
			name += " [" + r.ShockValue + "]"
		}
		parts = append(parts, name)
	}
	if r.Error != nil {
		rule := fmt.Sprintf("rule=%q", r.Error.ActionRule)
		if r.Error.Violation != "" {
			rule += " " + r.Error.Violation
		}
		parts = append(parts, rule)
		if r.Error.Advice != "" {
			parts = append(parts, fmt.Sprintf("advice=%q", r.Error.Advice))
		}
	}
	return strings.Join(parts, "  ")
}
