package plot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecord_ErroneousAction(t *testing.T) {
	act := action(t, "0:00:40", stage1, "Defib 200J")
	mark := marker(t, "0:00:41", stage1, "Check Rhythm")

	rec := ToRecord(newErroneousAction(act, mark))

	assert.Equal(t, KindErroneousAction, rec.Kind)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, "00:00:40", rec.Timestamp.Clock)
	require.NotNil(t, rec.Stage)
	assert.Equal(t, "Stage1", rec.Stage.Name)
	assert.Equal(t, "Defib", rec.Name)
	assert.Equal(t, "200J", rec.ShockValue)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "Check Rhythm", rec.Error.ActionRule)
	assert.Nil(t, rec.Start)
}

func TestToRecord_PeriodJSON(t *testing.T) {
	start := boundary(t, "0:00:00", "(1) One (action)")
	end := boundary(t, "0:01:00", "(2) Two (action)")

	rec := ToRecord(Period{Type: PeriodStage, Start: LocationOf(start), End: LocationOf(end)})

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "stage_period", decoded["kind"])
	assert.Contains(t, decoded, "start")
	assert.Contains(t, decoded, "end")
	assert.NotContains(t, decoded, "timestamp")
	assert.NotContains(t, decoded, "error")
}
