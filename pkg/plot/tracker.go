package plot

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/simplot/pkg/actionlog"
	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
)

// StageTracker pairs consecutive stage boundary rows into stage periods.
type StageTracker struct {
	open *Location
}

// Observe records a boundary at loc. Once a boundary is open, each later
// boundary closes it and returns the period. The period start takes the
// stage of the closing row, so the period names the stage being entered.
func (t *StageTracker) Observe(loc Location) (Period, bool) {
	prev := t.open
	t.open = &loc
	if prev == nil {
		return Period{}, false
	}
	start := *prev
	start.Stage = loc.Stage
	return Period{Type: PeriodStage, Start: start, End: loc}, true
}

// Open reports whether a boundary is waiting to be closed.
func (t *StageTracker) Open() bool {
	return t.open != nil
}

// Direction is the side of a range a marker stands for.
type Direction int

const (
	DirectionStart Direction = iota
	DirectionEnd
)

func (d Direction) String() string {
	if d == DirectionEnd {
		return "end"
	}
	return "start"
}

var (
	cprStartMarkers = map[string]bool{"begin cpr": true, "enter cpr": true}
	cprEndMarkers   = map[string]bool{"stop cpr": true, "end cpr": true}
)

// RangeMarker is one half of a period.
type RangeMarker struct {
	Type      PeriodType
	Direction Direction
	Location  Location
	// Line is the source line of the marker row.
	Line int
}

// DetectCPR reports whether name is a CPR start or end marker. Matching
// ignores case and extra whitespace.
func DetectCPR(name string) (Direction, bool) {
	key := cases.Lower(language.Und).String(actionlog.NormalizeWhitespace(name))
	switch {
	case cprStartMarkers[key]:
		return DirectionStart, true
	case cprEndMarkers[key]:
		return DirectionEnd, true
	default:
		return 0, false
	}
}

// MergeRanges joins two halves of a period. The halves must have the same
// period type and opposite directions.
func MergeRanges(first, second RangeMarker) (Period, error) {
	if first.Type != second.Type {
		return Period{}, fmt.Errorf("%w: cannot merge a %s marker with a %s marker",
			sperrors.ErrInvalidState, first.Type, second.Type)
	}
	if first.Direction == second.Direction {
		return Period{}, fmt.Errorf("%w: two %s %s markers without a matching %s (lines %d and %d)",
			sperrors.ErrInvalidState, strings.ToUpper(first.Type.String()), first.Direction,
			opposite(first.Direction), first.Line, second.Line)
	}
	start, end := first, second
	if first.Direction == DirectionEnd {
		start, end = second, first
	}
	return Period{Type: first.Type, Start: start.Location, End: end.Location}, nil
}

func opposite(d Direction) Direction {
	if d == DirectionStart {
		return DirectionEnd
	}
	return DirectionStart
}

// CPRTracker pairs CPR start and end markers into CPR periods.
type CPRTracker struct {
	pending *RangeMarker
}

// Observe records marker. It returns a period when marker closes the
// pending one. On a merge error the pending marker is kept.
func (t *CPRTracker) Observe(marker RangeMarker) (Period, bool, error) {
	if t.pending == nil {
		t.pending = &marker
		return Period{}, false, nil
	}
	period, err := MergeRanges(*t.pending, marker)
	if err != nil {
		return Period{}, false, err
	}
	t.pending = nil
	return period, true, nil
}

// Pending returns the unmatched marker, if any.
func (t *CPRTracker) Pending() (RangeMarker, bool) {
	if t.pending == nil {
		return RangeMarker{}, false
	}
	return *t.pending, true
}
