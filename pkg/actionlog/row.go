package actionlog

import (
	"fmt"
	"strings"
)

// Marker values written by the simulator into the Old Value and Score columns.
const (
	errorTriggered     = "Error-Triggered"
	actionPerformed    = "Action-Was-Performed"
	actionNotPerformed = "Action-Was-Not-Performed"
)

// Row is one record of an action log. The raw columns are kept as read;
// the derived fields are filled in once by Finalize.
type Row struct {
	// Line is the 1-based line of the record in its source file.
	Line int

	RawTimestamp  string
	VitalName     string
	SubActionTime string
	SubActionName string
	Score         string
	OldValue      string
	NewValue      string
	Username      string
	SpeechCommand string

	Timestamp      *Timestamp
	Stage          *Stage
	ActionName     string
	ActionCategory string
	ShockValue     string

	ActionPoint   bool
	StageBoundary bool
	ErrorMarker   bool
	MissedAction  bool
}

// Finalize parses the timestamp and computes the derived fields.
// A blank or malformed timestamp is an error.
func (r *Row) Finalize() error {
	if strings.TrimSpace(r.RawTimestamp) == "" {
		return fmt.Errorf("field %q cannot be empty", ColumnTimestamp)
	}
	ts, err := ParseTime(r.RawTimestamp)
	if err != nil {
		return err
	}
	r.Timestamp = &ts

	r.Stage = nil
	if stage, ok := ExtractStage(r.VitalName); ok {
		r.Stage = &stage
	}
	r.ActionName, r.ActionCategory, r.ShockValue = NormalizeActionName(r.SubActionName)

	r.ActionPoint = isActionPoint(r)
	r.StageBoundary = isStageBoundary(r)
	r.ErrorMarker = isErrorMarker(r)
	r.MissedAction = isMissedAction(r)
	return nil
}

// Seconds returns the elapsed seconds of the row timestamp, zero when unset.
func (r *Row) Seconds() uint32 {
	return SecondsOrZero(r.Timestamp)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func isActionPoint(r *Row) bool {
	return r.Stage != nil && !blank(r.SubActionTime) && !blank(r.SubActionName)
}

func isStageBoundary(r *Row) bool {
	return r.Stage != nil &&
		blank(r.SubActionTime) &&
		blank(r.SubActionName) &&
		blank(r.Score) &&
		blank(r.OldValue) &&
		blank(r.NewValue)
}

func isErrorMarker(r *Row) bool {
	return strings.TrimSpace(r.OldValue) == errorTriggered &&
		strings.TrimSpace(r.Score) == actionPerformed
}

func isMissedAction(r *Row) bool {
	return strings.TrimSpace(r.OldValue) == errorTriggered &&
		strings.TrimSpace(r.Score) == actionNotPerformed
}
