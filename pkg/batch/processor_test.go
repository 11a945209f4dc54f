package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/events"
	"github.com/otherjamesbrown/simplot/pkg/observability"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleLog = `Time Stamp[Hr:Min:Sec],Action/Vital Name,SubAction Time[Min:Sec],SubAction Name,Score,Old Value,New Value,Username,Speech Command
0:00:00,(1) Initial Assessment (action),,,,,,,
0:00:05,(1) Initial Assessment (action),0:05,Begin CPR,,,,,
0:00:40,(1) Initial Assessment (action),0:40,Defib (UNsynchronized Shock) 200J,,,,,
0:00:41,Rule Engine,0:41,Check Rhythm Before Shock,Action-Was-Performed,Error-Triggered,,(1) Initial Assessment (action),Pause compressions and check the rhythm
0:01:00,Heart Rate,,,,80,95,,
0:02:00,(1) Initial Assessment (action),2:00,End CPR,,,,,
,(1) Initial Assessment (action),,,,,,,
0:03:00,(2) Medication (action),,,,,,,
0:03:10,(2) Medication (action),3:10,select epinephrine,,,,,
0:03:30,Rule Engine,3:30,Give Amiodarone,Action-Was-Not-Performed,Error-Triggered,,,
`

const samplePoints = 6

type fakePublisher struct {
	mu      sync.Mutex
	runs    []events.RunCompletedParams
	batches []events.BatchCompletedParams
	points  map[string]int
	err     error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{points: make(map[string]int)}
}

func (f *fakePublisher) PublishRunCompleted(_ context.Context, params events.RunCompletedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, params)
	return f.err
}

func (f *fakePublisher) PublishBatchCompleted(_ context.Context, params events.BatchCompletedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, params)
	return f.err
}

func (f *fakePublisher) PublishPoints(_ context.Context, _ string, file string, points []plot.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[file] = len(points)
	return f.err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessor_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.csv"), sampleLog)
	writeFile(t, filepath.Join(dir, "nested", "a.CSV"), sampleLog)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not an action log")

	pub := newFakePublisher()
	proc := NewProcessor(nil, ProcessorConfig{Concurrency: 2, Window: plot.DefaultWindow}, WithPublisher(pub))

	result, err := proc.Process(context.Background(), dir)
	require.NoError(t, err)

	assert.NotEmpty(t, result.JobID)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Zero(t, result.FailedCount)
	assert.Equal(t, 2*samplePoints, result.PointCount)
	assert.Equal(t, 2, result.RowErrorCount)

	require.Len(t, result.Files, 2)
	assert.True(t, result.Files[0].Path < result.Files[1].Path, "files should be sorted by path")
	for _, fr := range result.Files {
		assert.True(t, filepath.IsAbs(fr.Path))
		assert.NotEmpty(t, fr.RunID)
		assert.Equal(t, 10, fr.Rows)
		assert.Len(t, fr.Points, samplePoints)
		assert.NoError(t, fr.HeaderErr)
	}

	require.Len(t, pub.runs, 2)
	for _, run := range pub.runs {
		assert.Equal(t, result.JobID, run.JobID)
		assert.Equal(t, samplePoints, run.Points)
		assert.True(t, run.HeaderValid)
		assert.NoError(t, run.Err)
	}
	require.Len(t, pub.batches, 1)
	assert.Equal(t, dir, pub.batches[0].Path)
	assert.Equal(t, 2*samplePoints, pub.batches[0].PointCount)
	assert.True(t, pub.batches[0].Success)
	assert.Empty(t, pub.points, "points are only published when enabled")

	snap := proc.Progress().Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2*samplePoints, snap.PointCount)
}

func TestProcessor_SequentialSingleFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "run.csv"), sampleLog)

	pub := newFakePublisher()
	var snapshots []ProgressSnapshot
	proc := NewProcessor(nil,
		ProcessorConfig{Concurrency: 1, Window: plot.DefaultWindow, PublishPoints: true},
		WithPublisher(pub),
		WithProgressHandler(func(s ProgressSnapshot) { snapshots = append(snapshots, s) }),
	)

	result, err := proc.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, samplePoints, result.PointCount)
	assert.Equal(t, samplePoints, pub.points[path])

	require.NotEmpty(t, snapshots)
	assert.Equal(t, StatusRunning, snapshots[0].Status)
	assert.Equal(t, StatusCompleted, snapshots[len(snapshots)-1].Status)
}

func TestProcessor_EmptyDirectory(t *testing.T) {
	proc := NewProcessor(nil, ProcessorConfig{})

	result, err := proc.Process(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.TotalFiles)
}

func TestProcessor_NotFound(t *testing.T) {
	proc := NewProcessor(nil, ProcessorConfig{})

	_, err := proc.Process(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, sperrors.ErrInputNotFound, sperrors.CodeOf(err))
}

func TestProcessor_NotCSV(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "run.txt"), sampleLog)
	proc := NewProcessor(nil, ProcessorConfig{})

	_, err := proc.Process(context.Background(), path)
	require.Error(t, err)
	assert.True(t, sperrors.IsValidation(err))
}

func TestProcessor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), sampleLog)
	writeFile(t, filepath.Join(dir, "b.csv"), sampleLog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, concurrency := range []int{1, 3} {
		proc := NewProcessor(nil, ProcessorConfig{Concurrency: concurrency})
		result, err := proc.Process(ctx, dir)
		require.Error(t, err)
		assert.Equal(t, sperrors.ErrContextCancelled, sperrors.CodeOf(err))
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Equal(t, StatusCancelled, proc.Progress().Snapshot().Status)
	}
}

func TestProcessor_Metrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), sampleLog)
	writeFile(t, filepath.Join(dir, "b.csv"), sampleLog)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	proc := NewProcessor(nil, ProcessorConfig{Concurrency: 2, Window: plot.DefaultWindow}, WithMetrics(metrics))

	_, err := proc.Process(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FilesTotal.WithLabelValues(observability.FileStatusCompleted)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.PointsTotal.WithLabelValues(string(plot.KindAction))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PointsTotal.WithLabelValues(string(plot.KindErroneousAction))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RowErrorsTotal.WithLabelValues(string(sperrors.ErrRowParse))))
}

func TestProcessor_PublishFailureIsNotFatal(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "run.csv"), sampleLog)

	pub := newFakePublisher()
	pub.err = errors.New("connection refused")
	proc := NewProcessor(nil, ProcessorConfig{PublishPoints: true}, WithPublisher(pub))

	result, err := proc.Process(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, pub.batches, 1)
}

func TestProcessReader_InvalidHeader(t *testing.T) {
	input := "Time,Name\n" + strings.SplitN(sampleLog, "\n", 2)[1]

	pub := newFakePublisher()
	proc := NewProcessor(nil, ProcessorConfig{}, WithPublisher(pub))

	fr, err := proc.ProcessReader(context.Background(), "", "stdin", strings.NewReader(input))
	require.NoError(t, err)
	require.Error(t, fr.HeaderErr)
	assert.Equal(t, sperrors.ErrHeaderInvalid, sperrors.CodeOf(fr.HeaderErr))
	assert.Equal(t, "stdin", fr.Path)

	require.Len(t, pub.runs, 1)
	assert.False(t, pub.runs[0].HeaderValid)
	assert.Empty(t, pub.runs[0].JobID)
}

func TestProcessReader_Windows1252(t *testing.T) {
	input := strings.Replace(sampleLog, "Initial Assessment", "Initial R\xe9sum\xe9", -1)
	proc := NewProcessor(nil, ProcessorConfig{Window: plot.DefaultWindow, Encoding: actionlog.EncodingWindows1252})

	fr, err := proc.ProcessReader(context.Background(), "", "legacy.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, fr.Points, samplePoints)

	action, ok := fr.Points[0].(plot.Action)
	require.True(t, ok, "first point should be an action")
	assert.Equal(t, "Initial Résumé", action.Location.Stage.Name)

	erroneous, ok := fr.Points[1].(plot.ErroneousAction)
	require.True(t, ok, "marker naming the decoded stage should match the action")
	assert.Equal(t, "Check Rhythm Before Shock", erroneous.ErrorInfo.ActionRule)
}

func TestProcessReader_WindowZeroSkipsBackwardMatch(t *testing.T) {
	for _, window := range []int{0, plot.DefaultWindow} {
		proc := NewProcessor(nil, ProcessorConfig{Window: window})

		fr, err := proc.ProcessReader(context.Background(), "", "run.csv", strings.NewReader(sampleLog))
		require.NoError(t, err)

		want := samplePoints
		if window == 0 {
			want--
		}
		assert.Len(t, fr.Points, want, "window %d", window)
		if window == 0 {
			assert.Zero(t, fr.Counts[plot.KindErroneousAction])
		} else {
			assert.Equal(t, 1, fr.Counts[plot.KindErroneousAction])
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("read failed: device removed")
}

func TestProcessReader_Fatal(t *testing.T) {
	pub := newFakePublisher()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	proc := NewProcessor(nil, ProcessorConfig{}, WithPublisher(pub), WithMetrics(metrics))

	fr, err := proc.ProcessReader(context.Background(), "job", "broken.csv", failingReader{})
	require.Error(t, err)
	assert.Equal(t, sperrors.ErrIO, sperrors.CodeOf(err))
	require.NotNil(t, fr)

	require.Len(t, pub.runs, 1)
	assert.Error(t, pub.runs[0].Err)
	assert.Empty(t, pub.points)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesTotal.WithLabelValues(observability.FileStatusFailed)))
}
