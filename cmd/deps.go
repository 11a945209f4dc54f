// Package cmd provides CLI commands for the simplot tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/credentials"
	"github.com/otherjamesbrown/simplot/pkg/batch"
	"github.com/otherjamesbrown/simplot/pkg/events"
	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/observability"
)

// Publisher publishes run events and releases its connection on Close.
type Publisher interface {
	batch.EventPublisher
	Close() error
}

// CommandDeps holds the dependencies shared by the classification commands.
type CommandDeps struct {
	Config       *config.CLIConfig
	LoadConfig   func() (*config.CLIConfig, error)
	NewLogger    func(cfg *config.CLIConfig) logging.Logger
	NewPublisher func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (Publisher, error)
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		LoadConfig:   config.LoadConfig,
		NewLogger:    defaultLogger,
		NewPublisher: connectPublisher,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
}

func defaultLogger(cfg *config.CLIConfig) logging.Logger {
	return logging.NewLogger(logging.ConfigForFile(os.Stderr, cfg.Debug, cfg.LogJSON))
}

// connectPublisher returns nil when publishing is not configured.
func connectPublisher(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (Publisher, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}

	password, err := credentials.RedisPassword(cfg.Redis.PasswordSource)
	if err != nil {
		return nil, fmt.Errorf("resolving redis password: %w", err)
	}

	pub, err := events.NewPublisherFromConfig(ctx, events.PublisherConfig{
		Address:       cfg.Redis.Address,
		Password:      password,
		DB:            cfg.Redis.DB,
		ChannelPrefix: cfg.Redis.ChannelPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// loadConfig returns the injected config or loads it.
func (d *CommandDeps) loadConfig() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *CommandDeps) stdout() io.Writer {
	if d.Stdout == nil {
		return os.Stdout
	}
	return d.Stdout
}

func (d *CommandDeps) stderr() io.Writer {
	if d.Stderr == nil {
		return os.Stderr
	}
	return d.Stderr
}

func (d *CommandDeps) stdin() io.Reader {
	if d.Stdin == nil {
		return os.Stdin
	}
	return d.Stdin
}

func (d *CommandDeps) logger(cfg *config.CLIConfig) logging.Logger {
	if d.NewLogger == nil {
		return defaultLogger(cfg)
	}
	return d.NewLogger(cfg)
}

// session is the per-invocation wiring of a classification command.
type session struct {
	cfg       *config.CLIConfig
	logger    logging.Logger
	processor *batch.Processor
	registry  *prometheus.Registry
	publisher Publisher
}

// setup loads configuration and builds the processor with its metrics and
// optional publisher. Callers must call close.
func (d *CommandDeps) setup(ctx context.Context, opts ...batch.Option) (*session, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := d.logger(cfg)

	rt := &session{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	opts = append(opts,
		batch.WithMetrics(observability.NewMetrics(rt.registry)),
		batch.WithTracer(observability.NewTracer()),
	)

	if d.NewPublisher != nil {
		pub, err := d.NewPublisher(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting event publisher: %w", err)
		}
		if pub != nil {
			rt.publisher = pub
			opts = append(opts, batch.WithPublisher(pub))
		}
	}

	rt.processor = batch.NewProcessor(logger, batch.ProcessorConfig{
		Concurrency:   cfg.Concurrency,
		Window:        cfg.Window,
		Encoding:      cfg.Encoding,
		PublishPoints: cfg.Redis.PublishPoints,
	}, opts...)

	return rt, nil
}

// close writes the metrics textfile when configured and releases the publisher.
func (rt *session) close() error {
	var firstErr error
	if rt.cfg.MetricsFile != "" {
		if err := observability.WriteTextfile(rt.registry, rt.cfg.MetricsFile); err != nil {
			firstErr = fmt.Errorf("writing metrics file: %w", err)
		}
	}
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing event publisher: %w", err)
		}
	}
	return firstErr
}
