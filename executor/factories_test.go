package executor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/devicecloud"
	"github.com/ping-42/device-scheduler/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_factoryCommands(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected []devicecloud.Command
		wantErr  bool
	}{
		{
			name:     "single switch",
			payload:  `[{"code":"switch_1","value":true}]`,
			expected: []devicecloud.Command{{Code: "switch_1", Value: true}},
		},
		{
			name:    "several data points",
			payload: `[{"code":"bright_value","value":500},{"code":"work_mode","value":"white"}]`,
			expected: []devicecloud.Command{
				{Code: "bright_value", Value: float64(500)},
				{Code: "work_mode", Value: "white"},
			},
		},
		{name: "empty payload", payload: ``, wantErr: true},
		{name: "empty list", payload: `[]`, wantErr: true},
		{name: "object instead of list", payload: `{"code":"switch_1"}`, wantErr: true},
		{name: "missing code", payload: `[{"value":true}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := factoryCommands(models.ScheduledAction{Commands: []byte(tt.payload)})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func Test_factoryExecutionMessage(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)
	action := models.ScheduledAction{ID: uuid.New(), DeviceID: "dev-1", Name: "morning lights", Repeat: "0 7 * * *"}
	execution := models.ActionExecution{ID: uuid.New(), Status: models.ExecutionStatusFailed, Error: "offline", DurationMs: 42, StartedAt: started}

	raw, err := factoryExecutionMessage(action, execution, started.Add(time.Second))
	require.NoError(t, err)

	var msg ExecutionMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, execution.ID, msg.ExecutionID)
	assert.Equal(t, action.ID, msg.ActionID)
	assert.Equal(t, "offline", msg.Error)
	assert.EqualValues(t, 42, msg.DurationMs)
	require.NotNil(t, msg.NextRunAt)
	assert.Equal(t, time.Date(2024, 3, 2, 7, 0, 0, 0, time.UTC), msg.NextRunAt.UTC())
}
