// Package events publishes simplot run results over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

// DefaultChannelPrefix is used when no prefix is configured.
const DefaultChannelPrefix = "simplot"

// Channel suffixes, appended to the configured prefix.
const (
	ChannelRunCompleted = "run.completed"
	ChannelPoints       = "points"
)

// Event types
const (
	EventTypeRunCompleted   = "run.completed"
	EventTypeBatchCompleted = "batch.completed"
	EventTypePoints         = "points"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "simplot",
		Version:   "1.0",
	}
}

// RunCompletedEvent is published when one action log has been classified.
type RunCompletedEvent struct {
	BaseEvent

	RunID   string `json:"run_id"`
	JobID   string `json:"job_id,omitempty"`
	File    string `json:"file"`
	TraceID string `json:"trace_id,omitempty"`

	Rows        int            `json:"rows"`
	Points      int            `json:"points"`
	RowErrors   int            `json:"row_errors"`
	Counts      map[string]int `json:"counts"`
	HeaderValid bool           `json:"header_valid"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchCompletedEvent is published when a batch run finishes.
type BatchCompletedEvent struct {
	BaseEvent

	JobID string `json:"job_id"`
	Path  string `json:"path"`

	TotalFiles     int `json:"total_files"`
	ProcessedCount int `json:"processed_count"`
	FailedCount    int `json:"failed_count"`
	PointCount     int `json:"point_count"`
	RowErrorCount  int `json:"row_error_count"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	Success bool `json:"success"`
}

// PointsEvent carries the plot points of one run.
type PointsEvent struct {
	BaseEvent

	RunID   string        `json:"run_id"`
	File    string        `json:"file"`
	Records []plot.Record `json:"records"`
}

// Client is the subset of the Redis client the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes run events to Redis.
type Publisher struct {
	client Client
	prefix string
	logger logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Address       string
	Password      string
	DB            int
	ChannelPrefix string
}

// NewPublisher creates a new event publisher.
func NewPublisher(client Client, prefix string, logger logging.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(ctx context.Context, cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return NewPublisher(client, cfg.ChannelPrefix, logger), nil
}

// Channel returns the full channel name for suffix.
func (p *Publisher) Channel(suffix string) string {
	return p.prefix + "." + suffix
}

// RunCompletedParams contains parameters for publishing a run completion.
type RunCompletedParams struct {
	RunID       string
	JobID       string
	File        string
	TraceID     string
	Rows        int
	Points      int
	RowErrors   int
	Counts      map[plot.Kind]int
	HeaderValid bool
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// PublishRunCompleted publishes the summary of one classified file.
func (p *Publisher) PublishRunCompleted(ctx context.Context, params RunCompletedParams) error {
	counts := make(map[string]int, len(params.Counts))
	for kind, n := range params.Counts {
		counts[string(kind)] = n
	}

	event := RunCompletedEvent{
		BaseEvent:       NewBaseEvent(EventTypeRunCompleted),
		RunID:           params.RunID,
		JobID:           params.JobID,
		File:            params.File,
		TraceID:         params.TraceID,
		Rows:            params.Rows,
		Points:          params.Points,
		RowErrors:       params.RowErrors,
		Counts:          counts,
		HeaderValid:     params.HeaderValid,
		StartedAt:       params.StartedAt,
		CompletedAt:     params.CompletedAt,
		DurationSeconds: params.CompletedAt.Sub(params.StartedAt).Seconds(),
		Success:         params.Err == nil,
	}
	if params.JobID != "" {
		event.CorrelationID = &params.JobID
	}
	if params.Err != nil {
		event.Error = params.Err.Error()
	}

	return p.publish(ctx, p.Channel(ChannelRunCompleted), event)
}

// BatchCompletedParams contains parameters for publishing a batch completion.
type BatchCompletedParams struct {
	JobID          string
	Path           string
	TotalFiles     int
	ProcessedCount int
	FailedCount    int
	PointCount     int
	RowErrorCount  int
	StartedAt      time.Time
	CompletedAt    time.Time
	Success        bool
}

// PublishBatchCompleted publishes the summary of a batch run.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, params BatchCompletedParams) error {
	event := BatchCompletedEvent{
		BaseEvent:       NewBaseEvent(EventTypeBatchCompleted),
		JobID:           params.JobID,
		Path:            params.Path,
		TotalFiles:      params.TotalFiles,
		ProcessedCount:  params.ProcessedCount,
		FailedCount:     params.FailedCount,
		PointCount:      params.PointCount,
		RowErrorCount:   params.RowErrorCount,
		StartedAt:       params.StartedAt,
		CompletedAt:     params.CompletedAt,
		DurationSeconds: params.CompletedAt.Sub(params.StartedAt).Seconds(),
		Success:         params.Success,
	}
	event.CorrelationID = &event.JobID

	return p.publish(ctx, p.Channel(ChannelRunCompleted), event)
}

// PublishPoints publishes the plot points of one run.
func (p *Publisher) PublishPoints(ctx context.Context, runID, file string, points []plot.Point) error {
	event := PointsEvent{
		BaseEvent: NewBaseEvent(EventTypePoints),
		RunID:     runID,
		File:      file,
		Records:   plot.ToRecords(points),
	}
	event.CorrelationID = &event.RunID

	return p.publish(ctx, p.Channel(ChannelPoints), event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
