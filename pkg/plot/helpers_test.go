package plot

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/simplot/pkg/actionlog"
)

// sliceSource replays rows and errors in order.
type sliceSource struct {
	items []sourceItem
}

type sourceItem struct {
	row *actionlog.Row
	err error
}

func (s *sliceSource) Next() (*actionlog.Row, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item.row, item.err
}

func source(rows ...*actionlog.Row) *sliceSource {
	src := &sliceSource{}
	for _, r := range rows {
		src.items = append(src.items, sourceItem{row: r})
	}
	return src
}

func finalized(t *testing.T, r actionlog.Row) *actionlog.Row {
	t.Helper()
	require.NoError(t, r.Finalize())
	return &r
}

func boundary(t *testing.T, ts, stage string) *actionlog.Row {
	return finalized(t, actionlog.Row{RawTimestamp: ts, VitalName: stage})
}

func action(t *testing.T, ts, vital, name string) *actionlog.Row {
	return finalized(t, actionlog.Row{
		RawTimestamp:  ts,
		VitalName:     vital,
		SubActionTime: "0:01",
		SubActionName: name,
	})
}

func marker(t *testing.T, ts, username, rule string) *actionlog.Row {
	return finalized(t, actionlog.Row{
		RawTimestamp:  ts,
		VitalName:     "Rule Engine",
		SubActionName: rule,
		Score:         "Action-Was-Performed",
		OldValue:      "Error-Triggered",
		Username:      username,
		SpeechCommand: "Check the rhythm first",
	})
}

func missed(t *testing.T, ts, rule string) *actionlog.Row {
	return finalized(t, actionlog.Row{
		RawTimestamp:  ts,
		VitalName:     "Rule Engine",
		SubActionName: rule,
		Score:         "Action-Was-Not-Performed",
		OldValue:      "Error-Triggered",
	})
}

func skipped(t *testing.T, ts string) *actionlog.Row {
	return finalized(t, actionlog.Row{RawTimestamp: ts, VitalName: "Heart Rate", NewValue: "80"})
}

type result struct {
	point Point
	err   error
}

func drain(e *Engine) []result {
	var out []result
	for p, err := range e.All() {
		out = append(out, result{point: p, err: err})
	}
	return out
}

func pointsOf(t *testing.T, results []result) []Point {
	t.Helper()
	points := make([]Point, 0, len(results))
	for _, r := range results {
		require.NoError(t, r.err)
		points = append(points, r.point)
	}
	return points
}
