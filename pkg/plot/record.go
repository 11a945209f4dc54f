package plot

import "github.com/otherjamesbrown/simplot/pkg/actionlog"

// Record is the flat, serializable form of a Point.
type Record struct {
	Kind       Kind                 `json:"kind" yaml:"kind"`
	Timestamp  *actionlog.Timestamp `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Stage      *actionlog.Stage     `json:"stage,omitempty" yaml:"stage,omitempty"`
	Category   string               `json:"category,omitempty" yaml:"category,omitempty"`
	Name       string               `json:"name,omitempty" yaml:"name,omitempty"`
	ShockValue string               `json:"shock_value,omitempty" yaml:"shock_value,omitempty"`
	Error      *ErrorInfoRecord     `json:"error,omitempty" yaml:"error,omitempty"`
	Start      *LocationRecord      `json:"start,omitempty" yaml:"start,omitempty"`
	End        *LocationRecord      `json:"end,omitempty" yaml:"end,omitempty"`
}

// LocationRecord is the serializable form of a Location.
type LocationRecord struct {
	Timestamp actionlog.Timestamp `json:"timestamp" yaml:"timestamp"`
	Stage     actionlog.Stage     `json:"stage" yaml:"stage"`
}

// ErrorInfoRecord is the serializable form of an ErrorInfo.
type ErrorInfoRecord struct {
	ActionRule string `json:"action_rule" yaml:"action_rule"`
	Violation  string `json:"violation" yaml:"violation"`
	Advice     string `json:"advice" yaml:"advice"`
}

// ToRecord flattens p.
func ToRecord(p Point) Record {
	switch v := p.(type) {
	case Action:
		r := pointRecord(v.Kind(), v.Location)
		r.Category, r.Name, r.ShockValue = v.Category, v.Name, v.ShockValue
		return r
	case MissedAction:
		r := pointRecord(v.Kind(), v.Location)
		r.Error = errorRecord(v.ErrorInfo)
		return r
	case ErroneousAction:
		r := pointRecord(v.Kind(), v.Location)
		r.Category, r.Name, r.ShockValue = v.Category, v.Name, v.ShockValue
		r.Error = errorRecord(v.ErrorInfo)
		return r
	case Period:
		return Record{
			Kind:  v.Kind(),
			Start: &LocationRecord{Timestamp: v.Start.Timestamp, Stage: v.Start.Stage},
			End:   &LocationRecord{Timestamp: v.End.Timestamp, Stage: v.End.Stage},
		}
	default:
		return Record{}
	}
}

// ToRecords flattens points.
func ToRecords(points []Point) []Record {
	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, ToRecord(p))
	}
	return records
}

func pointRecord(kind Kind, loc Location) Record {
	ts, stage := loc.Timestamp, loc.Stage
	return Record{Kind: kind, Timestamp: &ts, Stage: &stage}
}

func errorRecord(info ErrorInfo) *ErrorInfoRecord {
	return &ErrorInfoRecord{
		ActionRule: info.ActionRule,
		Violation:  info.Violation,
		Advice:     info.Advice,
	}
}
