package actionlog

import (
	"fmt"
	"strconv"
	"strings"

	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
)

// Column names of an action log export, in order.
const (
	ColumnTimestamp     = "Time Stamp[Hr:Min:Sec]"
	ColumnVitalName     = "Action/Vital Name"
	ColumnSubActionTime = "SubAction Time[Min:Sec]"
	ColumnSubActionName = "SubAction Name"
	ColumnScore         = "Score"
	ColumnOldValue      = "Old Value"
	ColumnNewValue      = "New Value"
	ColumnUsername      = "Username"
	ColumnSpeechCommand = "Speech Command"
)

// Columns is the expected header row.
var Columns = []string{
	ColumnTimestamp,
	ColumnVitalName,
	ColumnSubActionTime,
	ColumnSubActionName,
	ColumnScore,
	ColumnOldValue,
	ColumnNewValue,
	ColumnUsername,
	ColumnSpeechCommand,
}

// ValidateHeader checks that header starts with Columns, ignoring case and
// surrounding whitespace. Extra trailing columns are accepted.
func ValidateHeader(header []string) error {
	ok := len(header) >= len(Columns)
	for i := 0; ok && i < len(Columns); i++ {
		ok = strings.EqualFold(strings.TrimSpace(header[i]), Columns[i])
	}
	if ok {
		return nil
	}
	return &sperrors.ProcessingError{
		Code:  sperrors.ErrHeaderInvalid,
		Stage: "header",
		Line:  1,
		Message: fmt.Sprintf("expected %s as the header row of csv but got %s",
			quoteList(Columns), quoteList(header)),
		Cause: sperrors.ErrValidation,
	}
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// headerIndex maps lower-cased column names to their first position.
type headerIndex map[string]int

func newHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

func (h headerIndex) lookup(record []string, column string) (string, bool) {
	i, ok := h[strings.ToLower(column)]
	if !ok {
		return "", false
	}
	if i >= len(record) {
		return "", true
	}
	return record[i], true
}

// rowFromRecord maps a record onto a Row by column name. The timestamp and
// vital name columns are required; the others default to empty.
func rowFromRecord(h headerIndex, record []string, line int) (*Row, error) {
	row := &Row{Line: line}

	required := []struct {
		column string
		dst    *string
	}{
		{ColumnTimestamp, &row.RawTimestamp},
		{ColumnVitalName, &row.VitalName},
	}
	for _, f := range required {
		v, ok := h.lookup(record, f.column)
		if !ok {
			return nil, fmt.Errorf("missing field %q", f.column)
		}
		*f.dst = v
	}

	optional := []struct {
		column string
		dst    *string
	}{
		{ColumnSubActionTime, &row.SubActionTime},
		{ColumnSubActionName, &row.SubActionName},
		{ColumnScore, &row.Score},
		{ColumnOldValue, &row.OldValue},
		{ColumnNewValue, &row.NewValue},
		{ColumnUsername, &row.Username},
		{ColumnSpeechCommand, &row.SpeechCommand},
	}
	for _, f := range optional {
		*f.dst, _ = h.lookup(record, f.column)
	}

	if err := row.Finalize(); err != nil {
		return nil, err
	}
	return row, nil
}
