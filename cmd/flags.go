package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/actionlog"
)

// engineFlags are the classification settings every command can override.
type engineFlags struct {
	window      int
	encoding    string
	output      string
	metricsFile string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.window, "window", "w", config.DefaultWindow, "Rows kept for matching error markers to actions")
	cmd.Flags().StringVar(&f.encoding, "encoding", string(actionlog.EncodingAuto), "Input encoding: auto, utf-8, windows-1252")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
}

// apply loads the configuration, overlays the flags that were set and
// stores the result on deps.
func (f *engineFlags) apply(cmd *cobra.Command, deps *CommandDeps) (*config.CLIConfig, error) {
	loaded, err := deps.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := *loaded

	if cmd.Flags().Changed("window") {
		cfg.Window = f.window
	}
	if cmd.Flags().Changed("encoding") {
		cfg.Encoding = actionlog.Encoding(f.encoding)
	}
	if f.output != "" {
		cfg.OutputFormat = config.OutputFormat(f.output)
	}
	if f.metricsFile != "" {
		cfg.MetricsFile = config.ExpandPath(f.metricsFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	deps.Config = &cfg
	return &cfg, nil
}
