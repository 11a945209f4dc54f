// Package main provides the simplot CLI entry point.
// simplot turns medical simulation action logs into plot points.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	simplotcmd "github.com/otherjamesbrown/simplot/cmd"
	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/credentials"
	"github.com/otherjamesbrown/simplot/pkg/buildinfo"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
)

// Global flags.
var (
	outputFormat string
	debug        bool
	logJSON      bool
)

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(outputFormat)
	}
	if debug {
		cfg.Debug = true
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDeps returns the command dependencies wired to the global flags.
func newDeps() *simplotcmd.CommandDeps {
	deps := simplotcmd.DefaultDeps()
	deps.LoadConfig = loadConfig
	return deps
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "simplot",
	Short: "Turn simulation action logs into plot points",
	Long: `simplot reads the CSV action log exported by a medical simulation session
and classifies its rows into plot points: actions, erroneous actions,
missed actions, and stage and CPR periods.

COMMON WORKFLOWS:
  One session:      simplot process session.csv
  A whole export:   simplot batch ./exports --output json
  Live sessions:    simplot watch ./exports
  Check an export:  simplot validate session.csv

Configuration is read from ~/.simplot/config.yaml and SIMPLOT_* environment
variables. Run 'simplot config show' to see the effective settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "" && !config.OutputFormat(outputFormat).IsValid() {
			return fmt.Errorf("invalid --output %q (must be text, json, or yaml)", outputFormat)
		}
		return nil
	},
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of simplot.

Examples:
  simplot version
  simplot version --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get("simplot")

		switch config.OutputFormat(outputFormat) {
		case config.OutputFormatJSON, config.OutputFormatYAML:
			return writeAs(cmd, config.OutputFormat(outputFormat), info)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "simplot %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:     %s\n", info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  platform:   %s\n", info.Platform)
			return nil
		}
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the simplot configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after the config file and environment are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		if format := config.OutputFormat(outputFormat); format == config.OutputFormatJSON || format == config.OutputFormatYAML {
			return writeAs(cmd, format, cfg)
		}

		configPath, _ := config.ConfigPath()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:    %s\n", configPath)
		fmt.Fprintf(out, "  Window:         %d\n", cfg.Window)
		fmt.Fprintf(out, "  Output format:  %s\n", cfg.OutputFormat)
		fmt.Fprintf(out, "  Concurrency:    %d\n", cfg.Concurrency)
		fmt.Fprintf(out, "  Encoding:       %s\n", cfg.Encoding)
		fmt.Fprintf(out, "  Debug:          %t\n", cfg.Debug)
		fmt.Fprintf(out, "  JSON logs:      %t\n", cfg.LogJSON)
		fmt.Fprintf(out, "  Metrics file:   %s\n", valueOrDefault(cfg.MetricsFile, "(not set)"))
		fmt.Fprintf(out, "  Redis address:  %s\n", valueOrDefault(cfg.Redis.Address, "(publishing disabled)"))
		if cfg.Redis.Enabled() {
			fmt.Fprintf(out, "  Redis DB:       %d\n", cfg.Redis.DB)
			fmt.Fprintf(out, "  Channel prefix: %s\n", cfg.Redis.ChannelPrefix)
			fmt.Fprintf(out, "  Password:       %s\n", describePassword(cfg.Redis.PasswordSource))
		}

		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		out := cmd.OutOrStdout()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'simplot config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Window:        %d\n", defaultCfg.Window)
		fmt.Fprintf(out, "  Output format: %s\n", defaultCfg.OutputFormat)
		fmt.Fprintf(out, "  Concurrency:   %d\n", defaultCfg.Concurrency)

		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  window                 - Rows kept for matching error markers to actions
  output_format          - Default output format (text, json, yaml)
  concurrency            - Files processed at once by batch
  encoding               - Input encoding (auto, utf-8, windows-1252)
  debug                  - Enable debug logging (true/false)
  log_json               - Force JSON logs (true/false)
  metrics_file           - Prometheus textfile written after each run (supports ~)
  redis.address          - Redis server for run events (empty disables publishing)
  redis.db               - Redis database number
  redis.channel_prefix   - Prefix of the event channels
  redis.password_source  - Where the redis password comes from (auto, env, keyring, none)
  redis.publish_points   - Also publish the points of each file (true/false)

Examples:
  simplot config set window 20
  simplot config set output_format json
  simplot config set redis.address localhost:6379`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		currentCfg, err := config.LoadConfig()
		if err != nil {
			currentCfg = config.DefaultConfig()
		}

		if err := currentCfg.Set(key, value); err != nil {
			return err
		}

		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// configPasswordCmd stores the redis password in the system keyring.
var configPasswordCmd = &cobra.Command{
	Use:   "set-redis-password <password>",
	Short: "Store the redis password in the system keyring",
	Long: `Store the redis password in the system keyring so it is not kept in the
config file. SIMPLOT_REDIS_PASSWORD takes precedence when set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := credentials.NewKeyringProvider(credentials.RedisPasswordAccount)
		if err := provider.Set(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored redis password in %s\n", provider.Description())
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for simplot.

To load completions:

Bash:
  $ source <(simplot completion bash)

Zsh:
  $ simplot completion zsh > "${fpath[1]}/_simplot"

Fish:
  $ simplot completion fish | source

PowerShell:
  PS> simplot completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func describePassword(source string) string {
	provider, err := credentials.RedisPasswordProvider(source)
	if err != nil {
		return err.Error()
	}
	if provider == nil {
		return "none"
	}
	secret, err := provider.Get()
	if err != nil {
		return fmt.Sprintf("(not set, %s)", provider.Description())
	}
	return fmt.Sprintf("%s (%s)", credentials.MaskSecret(secret), provider.Description())
}

func writeAs(cmd *cobra.Command, format config.OutputFormat, v interface{}) error {
	return simplotcmd.WriteStructured(cmd.OutOrStdout(), format, v)
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "classify", Title: "Classification Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	deps := newDeps()
	for _, c := range []*cobra.Command{
		simplotcmd.NewProcessCommand(deps),
		simplotcmd.NewBatchCommand(deps),
		simplotcmd.NewWatchCommand(deps),
		simplotcmd.NewValidateCommand(deps),
	} {
		c.GroupID = "classify"
		rootCmd.AddCommand(c)
	}

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPasswordCmd)

	for _, c := range []*cobra.Command{configCmd, versionCmd, completionCmd} {
		c.GroupID = "setup"
		rootCmd.AddCommand(c)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code := sperrors.CodeOf(err); code != sperrors.ErrProcessingError {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", sperrors.GetSuggestedAction(code))
		}
		os.Exit(1)
	}
}
