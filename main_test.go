package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/buildinfo"
)

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SIMPLOT_CONFIG_DIR", t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer func() {
		outputFormat, debug, logJSON = "", false, false
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"process", "batch", "watch", "validate", "config", "version", "completion"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"output", "debug", "log-json"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s flag not found on root command", name)
		}
	}
}

func TestVersionCommand_Text(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "simplot ") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "go version:") {
		t.Errorf("output missing go version: %q", out)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := run(t, "version", "--output", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	var info buildinfo.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if info.Name != "simplot" {
		t.Errorf("Name = %q, want simplot", info.Name)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
}

func TestRootCommand_InvalidOutput(t *testing.T) {
	if _, err := run(t, "version", "--output", "xml"); err == nil {
		t.Error("expected error for --output xml")
	}
}

func TestConfigInitSetShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIMPLOT_CONFIG_DIR", dir)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"config", "init"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultConfigFile)); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	rootCmd.SetArgs([]string{"config", "set", "window", "25"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	rootCmd.SetArgs([]string{"config", "set", "window", "many"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for non-numeric window")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Window != 25 {
		t.Errorf("Window = %d, want 25", cfg.Window)
	}

	buf.Reset()
	rootCmd.SetArgs([]string{"config", "show"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Window:         25") {
		t.Errorf("show output missing window:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "(publishing disabled)") {
		t.Errorf("show output missing redis state:\n%s", buf.String())
	}
}

func TestLoadConfig_GlobalFlags(t *testing.T) {
	t.Setenv("SIMPLOT_CONFIG_DIR", t.TempDir())
	outputFormat, debug, logJSON = "yaml", true, true
	defer func() { outputFormat, debug, logJSON = "", false, false }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OutputFormat != config.OutputFormatYAML {
		t.Errorf("OutputFormat = %q, want yaml", cfg.OutputFormat)
	}
	if !cfg.Debug || !cfg.LogJSON {
		t.Errorf("Debug = %v, LogJSON = %v, want both true", cfg.Debug, cfg.LogJSON)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, err := run(t, "completion", "bash")
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if !strings.Contains(out, "simplot") {
		t.Error("bash completion does not mention simplot")
	}

	if _, err := run(t, "completion", "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestDescribePassword(t *testing.T) {
	if got := describePassword("none"); got != "none" {
		t.Errorf("describePassword(none) = %q", got)
	}
	if got := describePassword("bogus"); got == "" {
		t.Error("describePassword(bogus) should describe the error")
	}

	t.Setenv("SIMPLOT_REDIS_PASSWORD", "hunter2hunter2")
	if got := describePassword("env"); strings.Contains(got, "hunter2hunter2") {
		t.Errorf("password not masked: %q", got)
	}
}
