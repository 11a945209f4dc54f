package actionlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
)

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		wantErr bool
	}{
		{
			name:   "matching",
			header: Columns,
		},
		{
			name: "case insensitive",
			header: []string{
				"time stamp[hr:min:sec]", "ACTION/VITAL NAME", "subaction time[min:sec]",
				"subaction name", "score", "old value", "new value", "username", "speech command",
			},
		},
		{
			name:   "extra trailing column",
			header: append(append([]string{}, Columns...), "Notes"),
		},
		{
			name:    "missing column",
			header:  Columns[:8],
			wantErr: true,
		},
		{
			name: "different order",
			header: []string{
				"Action/Vital Name", "Time Stamp[Hr:Min:Sec]", "SubAction Time[Min:Sec]",
				"SubAction Name", "Score", "Old Value", "New Value", "Username", "Speech Command",
			},
			wantErr: true,
		},
		{
			name: "unknown column inserted",
			header: []string{
				"Time Stamp[Hr:Min:Sec]", "Extra", "Action/Vital Name", "SubAction Time[Min:Sec]",
				"SubAction Name", "Score", "Old Value", "New Value", "Username", "Speech Command",
			},
			wantErr: true,
		},
		{
			name:    "empty",
			header:  []string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, sperrors.IsValidation(err))
			assert.Equal(t, sperrors.ErrHeaderInvalid, sperrors.CodeOf(err))
		})
	}
}

func TestValidateHeader_Message(t *testing.T) {
	err := ValidateHeader([]string{"Time", "Name"})
	require.Error(t, err)

	want := `line 1: expected ["Time Stamp[Hr:Min:Sec]", "Action/Vital Name", "SubAction Time[Min:Sec]", ` +
		`"SubAction Name", "Score", "Old Value", "New Value", "Username", "Speech Command"] ` +
		`as the header row of csv but got ["Time", "Name"]`
	assert.Equal(t, want, err.Error())
}

func TestRowFromRecord_ByName(t *testing.T) {
	header := []string{"Action/Vital Name", "Time Stamp[Hr:Min:Sec]", "Username"}
	idx := newHeaderIndex(header)

	row, err := rowFromRecord(idx, []string{"(1) Stage (action)", "0:00:05", "Alice"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alice", row.Username)
	assert.Equal(t, "", row.SubActionName)
	assert.Equal(t, 2, row.Line)
	assert.True(t, row.StageBoundary)
}

func TestRowFromRecord_MissingRequired(t *testing.T) {
	idx := newHeaderIndex([]string{"Action/Vital Name", "Username"})

	_, err := rowFromRecord(idx, []string{"(1) Stage (action)", "Alice"}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing field "Time Stamp[Hr:Min:Sec]"`)
}

func TestRowFromRecord_ShortRecord(t *testing.T) {
	idx := newHeaderIndex(Columns)

	row, err := rowFromRecord(idx, []string{"0:00:01", "(2) Stage Two (action)"}, 3)
	require.NoError(t, err)
	assert.True(t, row.StageBoundary)
	assert.Equal(t, "", row.SpeechCommand)
}
