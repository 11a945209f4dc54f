// Package watch runs a handler for action logs dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"

	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/observability"
)

// Default timings.
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultTick     = 100 * time.Millisecond
)

// Handler is called with the content of a settled .csv file.
type Handler func(ctx context.Context, path string, content []byte) error

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch. It must exist.
	Dir string

	// Debounce is how long a file must stay quiet before it is handled.
	Debounce time.Duration

	// Tick is how often settled files are checked for.
	Tick time.Duration

	// InitialScan queues the .csv files already in Dir on Start.
	InitialScan bool
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Handled       int
	Unchanged     int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithTracer sets the tracer used for watch event spans.
func WithTracer(t *observability.Tracer) Option {
	return func(w *Watcher) {
		if t != nil {
			w.tracer = t
		}
	}
}

// Watcher watches a directory for new or rewritten action logs.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	cfg         Config
	handler     Handler
	logger      logging.Logger
	tracer      *observability.Tracer
	debounceMap map[string]time.Time
	digests     map[string][blake2b.Size256]byte
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	closeOnce   sync.Once

	stats Stats
}

// New creates a Watcher. Call Start to begin watching and Stop to release it.
func New(cfg Config, handler Handler, logger logging.Logger, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("watch: directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		watcher:     fw,
		cfg:         cfg,
		handler:     handler,
		logger:      logger.With(logging.F("component", "watcher"), logging.F("dir", cfg.Dir)),
		tracer:      observability.NewTracer(),
		debounceMap: make(map[string]time.Time),
		digests:     make(map[string][blake2b.Size256]byte),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return errors.New("watch: watcher already stopped")
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	if w.cfg.InitialScan {
		if err := w.queueExisting(); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Watching for action logs", logging.F("debounce", w.cfg.Debounce))
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("Failed to close watcher", logging.Err(err))
		}
	})
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a copy of the current statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) queueExisting() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.cfg.Dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() && isActionLog(e.Name()) {
			w.debounceMap[filepath.Join(w.cfg.Dir, e.Name())] = time.Now()
		}
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", logging.Err(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isActionLog(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.debounceMap[event.Name] = time.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.debounceMap, event.Name)
		delete(w.digests, event.Name)
	default:
		return
	}

	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.cfg.Debounce {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Debug("File removed before it settled", logging.F("file", path))
			return
		}
		w.logger.Error("Failed to read file", logging.Err(err), logging.F("file", path))
		w.countError()
		return
	}

	digest := blake2b.Sum256(content)
	w.mu.Lock()
	prev, seen := w.digests[path]
	w.mu.Unlock()
	if seen && prev == digest {
		w.logger.Debug("Content unchanged, skipping", logging.F("file", path))
		w.mu.Lock()
		w.stats.Unchanged++
		w.mu.Unlock()
		return
	}

	ctx, span := w.tracer.StartWatchEventSpan(ctx, path)
	defer span.End()

	if err := w.handler(ctx, path, content); err != nil {
		observability.NewSpanHelper(span).SetError(err, string(sperrors.CodeOf(err)))
		w.logger.Error("Handler failed", logging.Err(err), logging.F("file", path))
		w.countError()
		return
	}

	w.mu.Lock()
	w.digests[path] = digest
	w.stats.Handled++
	w.mu.Unlock()
}

func (w *Watcher) countError() {
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
}

func isActionLog(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}
