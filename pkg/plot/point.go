// Package plot classifies action log rows into plot points.
//
// An Engine pulls rows from a RowSource one at a time and yields at most
// one Point or error per row, in input order. It keeps a bounded window
// of recent rows to pair error markers with the actions they describe,
// and pairs stage boundaries and CPR markers into periods.
package plot

import "github.com/otherjamesbrown/simplot/pkg/actionlog"

// Location is the position of a row on the plot.
type Location struct {
	Timestamp actionlog.Timestamp
	Stage     actionlog.Stage
}

// LocationOf snapshots the timestamp and stage of row. Missing values
// become zero values.
func LocationOf(row *actionlog.Row) Location {
	var loc Location
	if row.Timestamp != nil {
		loc.Timestamp = *row.Timestamp
	}
	if row.Stage != nil {
		loc.Stage = *row.Stage
	}
	return loc
}

// ErrorInfo describes the rule an error marker row reports.
type ErrorInfo struct {
	ActionRule string
	Violation  string
	Advice     string
}

func errorInfoOf(marker *actionlog.Row) ErrorInfo {
	return ErrorInfo{
		ActionRule: marker.SubActionName,
		Violation:  marker.Score,
		Advice:     marker.SpeechCommand,
	}
}

// PeriodType distinguishes the intervals an Engine produces.
type PeriodType int

const (
	PeriodStage PeriodType = iota
	PeriodCPR
)

func (t PeriodType) String() string {
	switch t {
	case PeriodStage:
		return "stage"
	case PeriodCPR:
		return "cpr"
	default:
		return "unknown"
	}
}

// Kind names a Point variant.
type Kind string

const (
	KindAction          Kind = "action"
	KindMissedAction    Kind = "missed_action"
	KindErroneousAction Kind = "erroneous_action"
	KindStagePeriod     Kind = "stage_period"
	KindCPRPeriod       Kind = "cpr_period"
)

// Point is one of Action, MissedAction, ErroneousAction or Period.
type Point interface {
	Kind() Kind
	point()
}

// Action is a correctly performed action.
type Action struct {
	Location   Location
	Category   string
	Name       string
	ShockValue string
}

// MissedAction is an action the trainee should have performed.
type MissedAction struct {
	Location  Location
	ErrorInfo ErrorInfo
}

// ErroneousAction is a performed action that an error marker flagged.
type ErroneousAction struct {
	Location   Location
	Category   string
	Name       string
	ShockValue string
	ErrorInfo  ErrorInfo
}

// Period is a closed interval between two rows.
type Period struct {
	Type  PeriodType
	Start Location
	End   Location
}

func (Action) Kind() Kind          { return KindAction }
func (MissedAction) Kind() Kind    { return KindMissedAction }
func (ErroneousAction) Kind() Kind { return KindErroneousAction }

func (p Period) Kind() Kind {
	if p.Type == PeriodCPR {
		return KindCPRPeriod
	}
	return KindStagePeriod
}

func (Action) point()          {}
func (MissedAction) point()    {}
func (ErroneousAction) point() {}
func (Period) point()          {}

func newAction(row *actionlog.Row) Action {
	return Action{
		Location:   LocationOf(row),
		Category:   row.ActionCategory,
		Name:       row.ActionName,
		ShockValue: row.ShockValue,
	}
}

func newMissedAction(row *actionlog.Row) MissedAction {
	return MissedAction{
		Location:  LocationOf(row),
		ErrorInfo: errorInfoOf(row),
	}
}

func newErroneousAction(action, marker *actionlog.Row) ErroneousAction {
	return ErroneousAction{
		Location:   LocationOf(action),
		Category:   action.ActionCategory,
		Name:       action.ActionName,
		ShockValue: action.ShockValue,
		ErrorInfo:  errorInfoOf(marker),
	}
}
