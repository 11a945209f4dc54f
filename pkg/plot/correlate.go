package plot

import "github.com/otherjamesbrown/simplot/pkg/actionlog"

// MarkThresholdSeconds is the largest timestamp distance at which an error
// marker and an action row can refer to each other.
const MarkThresholdSeconds = 2

// CanMarkEachOther reports whether a and b are close enough in time to be
// paired. A row without a timestamp counts as 00:00:00.
func CanMarkEachOther(a, b *actionlog.Row) bool {
	x, y := a.Seconds(), b.Seconds()
	if x > y {
		x, y = y, x
	}
	return y-x <= MarkThresholdSeconds
}

// IsErroneousAction reports whether marker flags action. The marker's
// Username column names the action row's vital name.
func IsErroneousAction(action, marker *actionlog.Row) bool {
	return action.ActionPoint &&
		marker.Username == action.VitalName &&
		CanMarkEachOther(action, marker)
}

// lookback holds the most recent rows, oldest first.
type lookback struct {
	size int
	rows []*actionlog.Row
	// idx of each row in rows, for diagnostics.
	idx []int
}

func newLookback(size int) *lookback {
	if size < 0 {
		size = 0
	}
	return &lookback{
		size: size,
		rows: make([]*actionlog.Row, 0, size+1),
		idx:  make([]int, 0, size+1),
	}
}

func (b *lookback) push(row *actionlog.Row, idx int) {
	b.rows = append(b.rows, row)
	b.idx = append(b.idx, idx)
	for len(b.rows) > b.size {
		b.rows[0] = nil
		b.rows = b.rows[1:]
		b.idx = b.idx[1:]
	}
}

func (b *lookback) len() int {
	return len(b.rows)
}

// findAction searches newest to oldest for a row flagged by marker.
func (b *lookback) findAction(marker *actionlog.Row) (*actionlog.Row, int, bool) {
	for i := len(b.rows) - 1; i >= 0; i-- {
		if IsErroneousAction(b.rows[i], marker) {
			return b.rows[i], b.idx[i], true
		}
	}
	return nil, 0, false
}

// pendingMarker is an error marker waiting for its action to appear.
type pendingMarker struct {
	row *actionlog.Row
	idx int
}
