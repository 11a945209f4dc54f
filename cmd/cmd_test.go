package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/simplot/config"
	"github.com/otherjamesbrown/simplot/pkg/events"
	"github.com/otherjamesbrown/simplot/pkg/logging"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

const sessionLog = `Time Stamp[Hr:Min:Sec],Action/Vital Name,SubAction Time[Min:Sec],SubAction Name,Score,Old Value,New Value,Username,Speech Command
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

const sessionPoints = 6

// cleanLog is sessionLog without the row that has no timestamp.
var cleanLog = strings.Replace(sessionLog, "\n,(1) Initial Assessment (action),,,,,,,\n", "\n", 1)

// syncBuffer is a bytes.Buffer safe for the watcher goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakePublisher struct {
	mu     sync.Mutex
	runs   []events.RunCompletedParams
	points int
	closed bool
}

func (f *fakePublisher) PublishRunCompleted(_ context.Context, params events.RunCompletedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, params)
	return nil
}

func (f *fakePublisher) PublishBatchCompleted(context.Context, events.BatchCompletedParams) error {
	return nil
}

func (f *fakePublisher) PublishPoints(_ context.Context, _ string, _ string, points []plot.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points += len(points)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func testDeps(t *testing.T) (*CommandDeps, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &CommandDeps{
		Config:    config.DefaultConfig(),
		NewLogger: func(*config.CLIConfig) logging.Logger { return logging.NewNopLogger() },
		Stdin:     strings.NewReader(""),
		Stdout:    out,
		Stderr:    &bytes.Buffer{},
	}, out
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestCleanLog_DropsOnlyUntimedRow(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(cleanLog, "\n"), "\n")
	require.Len(t, lines, 10, "header plus nine rows")
	for _, line := range lines[1:] {
		assert.False(t, strings.HasPrefix(line, ","), "row without timestamp left in: %q", line)
		assert.Len(t, strings.Split(line, ","), 9, "row fields: %q", line)
	}
}

func TestProcessCommand_Text(t *testing.T) {
	deps, out := testDeps(t)
	path := writeLog(t, t.TempDir(), "session.csv", sessionLog)

	require.NoError(t, execute(t, NewProcessCommand(deps), path))

	text := out.String()
	assert.Contains(t, text, "TIME")
	assert.Contains(t, text, string(plot.KindErroneousAction))
	assert.Contains(t, text, string(plot.KindMissedAction))
	assert.Contains(t, text, string(plot.KindCPRPeriod))
	assert.Contains(t, text, "(1) Initial Assessment")
	assert.Contains(t, text, `rule="Check Rhythm Before Shock"`)
}

func TestProcessCommand_JSON(t *testing.T) {
	deps, out := testDeps(t)
	path := writeLog(t, t.TempDir(), "session.csv", sessionLog)

	require.NoError(t, execute(t, NewProcessCommand(deps), path, "--output", "json"))

	var records []plot.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	assert.Len(t, records, sessionPoints)

	kinds := make(map[plot.Kind]int)
	for _, r := range records {
		kinds[r.Kind]++
	}
	assert.Equal(t, 1, kinds[plot.KindCPRPeriod])
	assert.Equal(t, 1, kinds[plot.KindStagePeriod])
	assert.Equal(t, 1, kinds[plot.KindMissedAction])
	assert.Equal(t, 1, kinds[plot.KindErroneousAction])
}

func TestProcessCommand_SummaryYAML(t *testing.T) {
	deps, out := testDeps(t)
	path := writeLog(t, t.TempDir(), "session.csv", sessionLog)

	require.NoError(t, execute(t, NewProcessCommand(deps), path, "--summary", "-o", "yaml"))

	var summary FileSummary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 10, summary.Rows)
	assert.Equal(t, sessionPoints, summary.Points)
	assert.Len(t, summary.RowErrors, 1)
	assert.True(t, summary.HeaderValid)
	assert.NotEmpty(t, summary.RunID)
}

func TestProcessCommand_Stdin(t *testing.T) {
	deps, out := testDeps(t)
	deps.Stdin = strings.NewReader(cleanLog)

	require.NoError(t, execute(t, NewProcessCommand(deps), "-", "--summary"))

	text := out.String()
	assert.Contains(t, text, "stdin")
	assert.Contains(t, text, "Row errors: 0")
}

func TestProcessCommand_WindowZeroDropsErroneousActions(t *testing.T) {
	deps, out := testDeps(t)
	path := writeLog(t, t.TempDir(), "session.csv", cleanLog)

	require.NoError(t, execute(t, NewProcessCommand(deps), path, "--window", "0", "-o", "json"))

	var records []plot.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	for _, r := range records {
		assert.NotEqual(t, plot.KindErroneousAction, r.Kind)
	}
}

func TestProcessCommand_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		deps, _ := testDeps(t)
		err := execute(t, NewProcessCommand(deps), filepath.Join(t.TempDir(), "missing.csv"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "processing")
	})

	t.Run("invalid window", func(t *testing.T) {
		deps, _ := testDeps(t)
		path := writeLog(t, t.TempDir(), "session.csv", sessionLog)
		err := execute(t, NewProcessCommand(deps), path, "--window", "-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid flags")
	})

	t.Run("invalid encoding", func(t *testing.T) {
		deps, _ := testDeps(t)
		path := writeLog(t, t.TempDir(), "session.csv", sessionLog)
		err := execute(t, NewProcessCommand(deps), path, "--encoding", "latin-9")
		require.Error(t, err)
	})

	t.Run("no args", func(t *testing.T) {
		deps, _ := testDeps(t)
		assert.Error(t, execute(t, NewProcessCommand(deps)))
	})
}

func TestProcessCommand_PublishesAndWritesMetrics(t *testing.T) {
	deps, _ := testDeps(t)
	dir := t.TempDir()
	path := writeLog(t, dir, "session.csv", sessionLog)
	metricsFile := filepath.Join(dir, "simplot.prom")

	pub := &fakePublisher{}
	deps.Config.Redis.PublishPoints = true
	deps.NewPublisher = func(context.Context, *config.CLIConfig, logging.Logger) (Publisher, error) {
		return pub, nil
	}

	require.NoError(t, execute(t, NewProcessCommand(deps), path, "--metrics-file", metricsFile))

	require.Len(t, pub.runs, 1)
	assert.Equal(t, sessionPoints, pub.runs[0].Points)
	assert.Equal(t, sessionPoints, pub.points)
	assert.True(t, pub.closed)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "simplot_")
}

func TestBatchCommand_Text(t *testing.T) {
	deps, out := testDeps(t)
	dir := t.TempDir()
	writeLog(t, dir, "a.csv", sessionLog)
	writeLog(t, dir, filepath.Join("day2", "b.csv"), cleanLog)

	require.NoError(t, execute(t, NewBatchCommand(deps), dir, "--concurrency", "2"))

	text := out.String()
	assert.Contains(t, text, "FILE")
	assert.Contains(t, text, "a.csv")
	assert.Contains(t, text, "b.csv")
	assert.Contains(t, text, "2 files")
}

func TestBatchCommand_JSONWithPoints(t *testing.T) {
	deps, out := testDeps(t)
	dir := t.TempDir()
	writeLog(t, dir, "a.csv", sessionLog)
	writeLog(t, dir, "b.csv", sessionLog)

	require.NoError(t, execute(t, NewBatchCommand(deps), dir, "-o", "json", "--points"))

	var report BatchReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(t, report.JobID)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.TotalFiles)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2*sessionPoints, report.PointCount)
	assert.Equal(t, 2, report.RowErrorCount)
	require.Len(t, report.Files, 2)
	require.Len(t, report.Points, 2)
	for _, records := range report.Points {
		assert.Len(t, records, sessionPoints)
	}
}

func TestBatchCommand_Progress(t *testing.T) {
	deps, _ := testDeps(t)
	stderr := &bytes.Buffer{}
	deps.Stderr = stderr
	dir := t.TempDir()
	writeLog(t, dir, "a.csv", sessionLog)

	require.NoError(t, execute(t, NewBatchCommand(deps), dir, "--progress", "-c", "1"))
	assert.Contains(t, stderr.String(), "[100%] 1/1 files")
}

func TestBatchCommand_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		deps, _ := testDeps(t)
		err := execute(t, NewBatchCommand(deps), filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
	})

	t.Run("invalid concurrency", func(t *testing.T) {
		deps, _ := testDeps(t)
		err := execute(t, NewBatchCommand(deps), t.TempDir(), "--concurrency", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "concurrency")
	})

	t.Run("empty directory succeeds", func(t *testing.T) {
		deps, out := testDeps(t)
		require.NoError(t, execute(t, NewBatchCommand(deps), t.TempDir()))
		assert.Contains(t, out.String(), "0 files")
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid log", func(t *testing.T) {
		deps, out := testDeps(t)
		path := writeLog(t, t.TempDir(), "session.csv", cleanLog)

		require.NoError(t, execute(t, NewValidateCommand(deps), path))
		assert.Contains(t, out.String(), "header ok")
		assert.Contains(t, out.String(), "9 rows, 9 valid, 0 problems")
	})

	t.Run("row problem", func(t *testing.T) {
		deps, out := testDeps(t)
		path := writeLog(t, t.TempDir(), "session.csv", sessionLog)

		err := execute(t, NewValidateCommand(deps), path, "-o", "json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 problems found")

		var report ValidationReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.False(t, report.Valid)
		assert.True(t, report.HeaderValid)
		assert.Equal(t, 10, report.Rows)
		assert.Equal(t, 9, report.ValidRows)
		require.Len(t, report.Problems, 1)
		assert.Equal(t, 8, report.Problems[0].Line)
		assert.Equal(t, "row_parse", report.Problems[0].Code)
		assert.NotEmpty(t, report.Problems[0].Hint)
	})

	t.Run("bad header from stdin", func(t *testing.T) {
		deps, out := testDeps(t)
		deps.Stdin = strings.NewReader("Time,Name\n0:00:01,(1) Stage (action)\n")

		err := execute(t, NewValidateCommand(deps), "-")
		require.Error(t, err)
		assert.Contains(t, out.String(), "stdin: line 1: expected")
	})

	t.Run("missing file", func(t *testing.T) {
		deps, _ := testDeps(t)
		err := execute(t, NewValidateCommand(deps), filepath.Join(t.TempDir(), "nope.csv"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening")
	})
}

func TestWatchCommand(t *testing.T) {
	deps, _ := testDeps(t)
	out := &syncBuffer{}
	deps.Stdout = out
	dir := t.TempDir()
	writeLog(t, dir, "existing.csv", cleanLog)

	cmd := NewWatchCommand(deps)
	cmd.SetArgs([]string{dir, "--debounce", "20ms", "--initial-scan", "--summary"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "existing.csv")
	}, 5*time.Second, 20*time.Millisecond)

	writeLog(t, dir, "new.csv", sessionLog)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "new.csv")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "Row errors: 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch command did not stop after cancel")
	}
}

func TestWatchCommand_MissingDirectory(t *testing.T) {
	deps, _ := testDeps(t)
	err := execute(t, NewWatchCommand(deps), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
