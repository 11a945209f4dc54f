package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/events"
	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/observability"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// ProcessorConfig configures the batch processor.
type ProcessorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// Window is the lookback size of each engine.
	Window int

	// Encoding selects how input files are decoded.
	Encoding actionlog.Encoding

	// PublishPoints also publishes the points of each file when a
	// publisher is configured.
	PublishPoints bool
}

// EventPublisher receives run results.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, params events.RunCompletedParams) error
	PublishBatchCompleted(ctx context.Context, params events.BatchCompletedParams) error
	PublishPoints(ctx context.Context, runID, file string, points []plot.Point) error
}

// FileResult is the outcome of classifying one file.
type FileResult struct {
	Path        string
	RunID       string
	Points      []plot.Point
	RowErrors   []error
	HeaderErr   error
	Rows        int
	Counts      map[plot.Kind]int
	StartedAt   time.Time
	CompletedAt time.Time
}

// ProcessResult contains the result of a batch run.
type ProcessResult struct {
	JobID          string
	TotalFiles     int
	ProcessedCount int
	FailedCount    int
	PointCount     int
	RowErrorCount  int
	StartedAt      time.Time
	CompletedAt    time.Time
	Success        bool
	Files          []*FileResult
	Errors         []FileError
}

// FileError records an error for a specific file.
type FileError struct {
	FilePath string
	Code     sperrors.ErrorCode
	Error    string
}

// Option configures a Processor.
type Option func(*Processor)

// WithPublisher publishes run and batch results.
func WithPublisher(pub EventPublisher) Option {
	return func(p *Processor) {
		p.publisher = pub
	}
}

// WithMetrics records engine and file metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for file and batch spans.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithProgressHandler registers fn to receive progress snapshots.
func WithProgressHandler(fn func(ProgressSnapshot)) Option {
	return func(p *Processor) {
		p.onProgress = fn
	}
}

// Processor classifies action log files.
type Processor struct {
	cfg       ProcessorConfig
	publisher EventPublisher
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    logging.Logger

	onProgress func(ProgressSnapshot)
	progress   *Progress
	mu         sync.Mutex
}

// NewProcessor creates a new batch processor.
func NewProcessor(logger logging.Logger, cfg ProcessorConfig, opts ...Option) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Window < 0 {
		cfg.Window = 0
	}
	if cfg.Encoding == "" {
		cfg.Encoding = actionlog.EncodingAuto
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	proc := &Processor{
		cfg:      cfg,
		tracer:   observability.NewTracer(),
		logger:   logger.With(logging.F("component", "batch_processor")),
		progress: NewProgress(0),
	}
	for _, opt := range opts {
		opt(proc)
	}
	return proc
}

// Process classifies all .csv files at the given path (file or directory).
func (p *Processor) Process(ctx context.Context, path string) (*ProcessResult, error) {
	files, err := p.discoverFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	if len(files) == 0 {
		return &ProcessResult{
			TotalFiles:  0,
			Success:     true,
			StartedAt:   time.Now(),
			CompletedAt: time.Now(),
		}, nil
	}

	jobID := uuid.New().String()
	ctx, span := p.tracer.StartBatchSpan(ctx, jobID, len(files))
	defer span.End()

	p.progress = NewProgress(len(files))
	p.progress.SetOnUpdate(p.onProgress)
	p.progress.Start()

	result := &ProcessResult{
		JobID:      jobID,
		TotalFiles: len(files),
		StartedAt:  time.Now(),
		Errors:     []FileError{},
	}

	p.logger.Info("Batch started",
		logging.F("job_id", jobID),
		logging.F("files", len(files)),
		logging.F("concurrency", p.cfg.Concurrency))

	if p.cfg.Concurrency == 1 {
		p.processSequential(ctx, jobID, files, result)
	} else {
		p.processParallel(ctx, jobID, files, result)
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].FilePath < result.Errors[j].FilePath })

	result.CompletedAt = time.Now()
	result.Success = result.FailedCount == 0 && ctx.Err() == nil

	helper := observability.NewSpanHelper(span)
	helper.SetResult(0, result.PointCount, result.RowErrorCount)
	helper.SetDuration(result.CompletedAt.Sub(result.StartedAt).Milliseconds())

	if ctx.Err() != nil {
		p.progress.Cancel()
		helper.SetError(ctx.Err(), string(sperrors.ErrContextCancelled))
		return result, sperrors.ClassifyError(ctx.Err(), "batch")
	}
	if result.Success {
		helper.SetSuccess()
	}

	if p.publisher != nil {
		if err := p.publisher.PublishBatchCompleted(ctx, events.BatchCompletedParams{
			JobID:          jobID,
			Path:           path,
			TotalFiles:     result.TotalFiles,
			ProcessedCount: result.ProcessedCount,
			FailedCount:    result.FailedCount,
			PointCount:     result.PointCount,
			RowErrorCount:  result.RowErrorCount,
			StartedAt:      result.StartedAt,
			CompletedAt:    result.CompletedAt,
			Success:        result.Success,
		}); err != nil {
			p.logger.Warn("Failed to publish completion event", logging.Err(err))
		}
	}

	p.progress.Complete(result.Success)

	return result, nil
}

// Progress returns the current progress tracker.
func (p *Processor) Progress() *Progress {
	return p.progress
}

// discoverFiles finds all .csv files at the given path.
func (p *Processor) discoverFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if isActionLog(path) {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil, err
			}
			return []string{absPath}, nil
		}
		return nil, fmt.Errorf("%w: file is not a .csv file: %s", sperrors.ErrValidation, path)
	}

	// Directory - walk recursively
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isActionLog(d.Name()) {
			absPath, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			files = append(files, absPath)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// isActionLog reports whether name looks like an action log export.
func isActionLog(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}

// processSequential processes files one at a time.
func (p *Processor) processSequential(ctx context.Context, jobID string, files []string, result *ProcessResult) {
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}

		p.progress.SetCurrentFile(file)
		fr, err := p.ProcessFile(ctx, jobID, file)
		p.recordOutcome(file, fr, err, result)
	}
}

// processParallel processes files using a worker pool.
func (p *Processor) processParallel(ctx context.Context, jobID string, files []string, result *ProcessResult) {
	filesCh := make(chan string, len(files))
	resultsCh := make(chan fileOutcome, len(files))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range filesCh {
				if ctx.Err() != nil {
					continue
				}
				p.progress.SetCurrentFile(file)
				fr, err := p.ProcessFile(ctx, jobID, file)
				resultsCh <- fileOutcome{file: file, result: fr, err: err}
			}
		}()
	}

	// Send files to workers
	for _, file := range files {
		filesCh <- file
	}
	close(filesCh)

	// Wait for workers to finish
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	// Collect results
	for fo := range resultsCh {
		p.recordOutcome(fo.file, fo.result, fo.err, result)
	}
}

type fileOutcome struct {
	file   string
	result *FileResult
	err    error
}

// ProcessFile classifies one file. jobID may be empty.
func (p *Processor) ProcessFile(ctx context.Context, jobID, path string) (*FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		p.metricsFile(observability.FileStatusFailed, 0)
		return nil, err
	}
	defer f.Close()

	return p.ProcessReader(ctx, jobID, path, f)
}

// ProcessReader classifies an action log read from r. name identifies the
// input in logs and events.
func (p *Processor) ProcessReader(ctx context.Context, jobID, name string, r io.Reader) (*FileResult, error) {
	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logging.RunIDKey, runID)
	ctx = context.WithValue(ctx, logging.FileKey, name)
	ctx, span := p.tracer.StartFileSpan(ctx, name, p.cfg.Window)
	defer span.End()

	logger := p.logger.WithContext(ctx)
	started := time.Now()

	opts := []plot.Option{
		plot.WithLogger(logger),
		plot.WithReaderOptions(actionlog.WithEncoding(p.cfg.Encoding)),
	}
	if p.metrics != nil {
		opts = append(opts, plot.WithObserver(p.metrics))
	}

	res, procErr := plot.Process(ctx, r, p.cfg.Window, opts...)

	fr := &FileResult{
		Path:        name,
		RunID:       runID,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	if res != nil {
		fr.Points = res.Points
		fr.RowErrors = res.RowErrors
		fr.HeaderErr = res.HeaderErr
		fr.Rows = res.Rows
		fr.Counts = res.Counts
	}
	elapsed := fr.CompletedAt.Sub(started)

	helper := observability.NewSpanHelper(span)
	helper.SetResult(fr.Rows, len(fr.Points), len(fr.RowErrors))
	helper.SetDuration(elapsed.Milliseconds())

	p.publishRun(ctx, jobID, fr, procErr)

	if procErr != nil {
		code := sperrors.CodeOf(procErr)
		helper.SetError(procErr, string(code))
		p.metricsFile(observability.FileStatusFailed, elapsed.Seconds())
		logger.Error("Failed to process action log",
			logging.Err(procErr),
			logging.F("code", string(code)),
			logging.F("rows", fr.Rows))
		return fr, procErr
	}

	helper.SetSuccess()
	p.metricsFile(observability.FileStatusCompleted, elapsed.Seconds())
	if fr.HeaderErr != nil {
		logger.Warn("Action log processed with an invalid header", logging.Err(fr.HeaderErr))
	}
	logger.Debug("Action log processed",
		logging.F("rows", fr.Rows),
		logging.F("points", len(fr.Points)),
		logging.F("row_errors", len(fr.RowErrors)),
		logging.F("duration", elapsed))

	return fr, nil
}

func (p *Processor) publishRun(ctx context.Context, jobID string, fr *FileResult, procErr error) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.PublishRunCompleted(ctx, events.RunCompletedParams{
		RunID:       fr.RunID,
		JobID:       jobID,
		File:        fr.Path,
		TraceID:     observability.GetTraceID(ctx),
		Rows:        fr.Rows,
		Points:      len(fr.Points),
		RowErrors:   len(fr.RowErrors),
		Counts:      fr.Counts,
		HeaderValid: fr.HeaderErr == nil,
		StartedAt:   fr.StartedAt,
		CompletedAt: fr.CompletedAt,
		Err:         procErr,
	}); err != nil {
		p.logger.Warn("Failed to publish run event", logging.Err(err), logging.F("file", fr.Path))
	}

	if p.cfg.PublishPoints && procErr == nil {
		if err := p.publisher.PublishPoints(ctx, fr.RunID, fr.Path, fr.Points); err != nil {
			p.logger.Warn("Failed to publish points", logging.Err(err), logging.F("file", fr.Path))
		}
	}
}

func (p *Processor) metricsFile(status string, seconds float64) {
	if p.metrics != nil {
		p.metrics.RecordFile(status, seconds)
	}
}

// recordOutcome updates progress and result based on the processing outcome.
func (p *Processor) recordOutcome(filePath string, fr *FileResult, err error, result *ProcessResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		result.ProcessedCount++
		result.FailedCount++
		result.Errors = append(result.Errors, FileError{
			FilePath: filePath,
			Code:     sperrors.CodeOf(err),
			Error:    err.Error(),
		})
		p.progress.RecordFailed(filePath)
		return
	}

	result.ProcessedCount++
	result.PointCount += len(fr.Points)
	result.RowErrorCount += len(fr.RowErrors)
	result.Files = append(result.Files, fr)
	p.progress.RecordCompleted(filePath, len(fr.Points))
}
