package plot

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/logging"
)

// DefaultWindow is the number of recent rows searched for the action an
// error marker refers to.
const DefaultWindow = 10

// RowSource yields rows in file order and io.EOF when exhausted.
type RowSource interface {
	Next() (*actionlog.Row, error)
}

// Outcome is what the engine did with one input record.
type Outcome string

const (
	// OutcomePoint means the row produced a point.
	OutcomePoint Outcome = "point"
	// OutcomeAbsorbed means a tracker or the pending marker took the row
	// without producing a point yet.
	OutcomeAbsorbed Outcome = "absorbed"
	// OutcomeSkipped means the row maps to nothing on the plot.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeError means the row produced an error.
	OutcomeError Outcome = "error"
)

// MarkerResolution is what happened to an error marker.
type MarkerResolution string

const (
	MarkerBackward MarkerResolution = "backward"
	MarkerForward  MarkerResolution = "forward"
	MarkerPending  MarkerResolution = "pending"
	MarkerDropped  MarkerResolution = "dropped"
	MarkerReplaced MarkerResolution = "replaced"
)

// Observer receives classification events. Implementations must be cheap;
// they are called inline for every row.
type Observer interface {
	RowClassified(outcome Outcome)
	PointEmitted(kind Kind)
	RowFailed(code sperrors.ErrorCode)
	MarkerResolved(resolution MarkerResolution)
}

type nopObserver struct{}

func (nopObserver) RowClassified(Outcome)           {}
func (nopObserver) PointEmitted(Kind)               {}
func (nopObserver) RowFailed(sperrors.ErrorCode)    {}
func (nopObserver) MarkerResolved(MarkerResolution) {}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger     logging.Logger
	observer   Observer
	readerOpts []actionlog.ReaderOption
}

// WithLogger sets the logger for debug diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithReaderOptions passes options to the actionlog.Reader that Process
// creates. NewEngine ignores them.
func WithReaderOptions(opts ...actionlog.ReaderOption) Option {
	return func(o *options) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   logging.NewNopLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Engine turns rows into points. An Engine holds the state of one pass
// over one input and must not be shared between goroutines.
type Engine struct {
	src      RowSource
	logger   logging.Logger
	observer Observer

	recent  *lookback
	stages  StageTracker
	cpr     CPRTracker
	pending *pendingMarker

	// idx counts records read so far, including failed ones.
	idx  int
	done bool
}

// NewEngine returns an Engine reading from src. window is the number of
// recent rows kept for backward marker matching; zero disables it.
func NewEngine(src RowSource, window int, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{
		src:      src,
		logger:   o.logger.With(logging.F("component", "plot_engine")),
		observer: o.observer,
		recent:   newLookback(window),
	}
}

// Next returns the next point or row error. Rows that produce no point are
// consumed silently. Next returns io.EOF once the source is exhausted or
// after the source has reported a fatal error.
func (e *Engine) Next() (Point, error) {
	for !e.done {
		row, err := e.src.Next()
		if errors.Is(err, io.EOF) {
			e.done = true
			break
		}
		if err != nil {
			if !sperrors.IsRowScoped(err) {
				e.done = true
				return nil, err
			}
			e.idx++
			e.observer.RowClassified(OutcomeError)
			e.observer.RowFailed(sperrors.CodeOf(err))
			return nil, err
		}

		idx := e.idx
		e.idx++
		p, err := e.classify(row, idx)
		switch {
		case err != nil:
			e.observer.RowClassified(OutcomeError)
			e.observer.RowFailed(sperrors.CodeOf(err))
			return nil, err
		case p != nil:
			e.observer.RowClassified(OutcomePoint)
			e.observer.PointEmitted(p.Kind())
			return p, nil
		}
	}
	return nil, io.EOF
}

// All returns an iterator over the remaining results of e.
func (e *Engine) All() iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		for {
			p, err := e.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(p, err) {
				return
			}
		}
	}
}

// classify runs the pipeline for one row. The first step that claims the
// row decides the result; a nil point with a nil error means no point.
func (e *Engine) classify(row *actionlog.Row, idx int) (Point, error) {
	e.recent.push(row, idx)

	if row.StageBoundary {
		if p, ok := e.stages.Observe(LocationOf(row)); ok {
			return p, nil
		}
		e.observer.RowClassified(OutcomeAbsorbed)
		return nil, nil
	}

	if dir, ok := DetectCPR(row.SubActionName); ok {
		p, closed, err := e.cpr.Observe(RangeMarker{
			Type:      PeriodCPR,
			Direction: dir,
			Location:  LocationOf(row),
			Line:      row.Line,
		})
		if err != nil {
			return nil, &sperrors.ProcessingError{
				Code:    sperrors.ErrRangeMerge,
				Stage:   "classify",
				Line:    row.Line,
				Message: err.Error(),
				Cause:   err,
			}
		}
		if closed {
			return p, nil
		}
		e.observer.RowClassified(OutcomeAbsorbed)
		return nil, nil
	}

	if p, ok := e.checkPending(row, idx); ok {
		return p, nil
	}

	if row.ErrorMarker {
		if p, ok := e.resolveBackward(row, idx); ok {
			return p, nil
		}
		e.holdMarker(row, idx)
		e.observer.RowClassified(OutcomeAbsorbed)
		return nil, nil
	}

	if row.MissedAction {
		return newMissedAction(row), nil
	}

	if row.ActionPoint {
		return newAction(row), nil
	}

	e.logger.Debug("Skipped line, no plot point", logging.F("row", idx+2))
	e.observer.RowClassified(OutcomeSkipped)
	return nil, nil
}

// checkPending tests row against the pending marker. The marker is
// dropped once row is too far away in time to match it.
func (e *Engine) checkPending(row *actionlog.Row, idx int) (Point, bool) {
	if e.pending == nil {
		return nil, false
	}
	marker := e.pending

	if IsErroneousAction(row, marker.row) {
		e.pending = nil
		e.logger.Debug("Error marker resolved forward",
			logging.F("marker_row", marker.idx+2),
			logging.F("action_row", idx+2))
		e.observer.MarkerResolved(MarkerForward)
		return newErroneousAction(row, marker.row), true
	}

	if !CanMarkEachOther(row, marker.row) {
		e.pending = nil
		e.logger.Debug("Error marker dropped, no action within threshold",
			logging.F("marker_row", marker.idx+2),
			logging.F("threshold_seconds", MarkThresholdSeconds))
		e.observer.MarkerResolved(MarkerDropped)
	}
	return nil, false
}

func (e *Engine) resolveBackward(marker *actionlog.Row, idx int) (Point, bool) {
	action, actionIdx, ok := e.recent.findAction(marker)
	if !ok {
		return nil, false
	}
	e.logger.Debug("Error marker resolved backward",
		logging.F("marker_row", idx+2),
		logging.F("action_row", actionIdx+2))
	e.observer.MarkerResolved(MarkerBackward)
	return newErroneousAction(action, marker), true
}

// holdMarker makes marker the pending marker, replacing any older one.
func (e *Engine) holdMarker(marker *actionlog.Row, idx int) {
	if e.pending != nil {
		e.logger.Debug("Pending error marker replaced before it matched",
			logging.F("replaced_row", e.pending.idx+2),
			logging.F("marker_row", idx+2))
		e.observer.MarkerResolved(MarkerReplaced)
	}
	e.pending = &pendingMarker{row: marker, idx: idx}
	e.observer.MarkerResolved(MarkerPending)
}

// Result is the outcome of Process.
type Result struct {
	Points    []Point
	RowErrors []error
	HeaderErr error
	Rows      int
	Counts    map[Kind]int
}

// Process reads an action log from r and classifies every row. Row-scoped
// errors are collected in the result. A fatal read error or cancellation
// of ctx stops processing and is returned along with the partial result.
func Process(ctx context.Context, r io.Reader, window int, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	readerOpts := append([]actionlog.ReaderOption{actionlog.WithLogger(o.logger)}, o.readerOpts...)
	rd := actionlog.NewReader(r, readerOpts...)
	engine := NewEngine(rd, window, opts...)

	res := &Result{Counts: make(map[Kind]int)}
	defer func() {
		res.HeaderErr = rd.HeaderErr()
		res.Rows = engine.idx
	}()

	for p, err := range engine.All() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, sperrors.ClassifyError(ctxErr, "classify")
		}
		if err != nil {
			if !sperrors.IsRowScoped(err) {
				return res, err
			}
			res.RowErrors = append(res.RowErrors, err)
			continue
		}
		res.Points = append(res.Points, p)
		res.Counts[p.Kind()]++
	}
	if err := ctx.Err(); err != nil {
		return res, sperrors.ClassifyError(err, "classify")
	}
	return res, nil
}
