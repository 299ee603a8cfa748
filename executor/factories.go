package executor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/devicecloud"
	"github.com/ping-42/device-scheduler/models"
)

// ExecutionMessage is published on ActionExecutedChannel.
type ExecutionMessage struct {
	ExecutionID uuid.UUID  `json:"execution_id"`
	ActionID    uuid.UUID  `json:"action_id"`
	DeviceID    string     `json:"device_id"`
	Name        string     `json:"name,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	ExecutedAt  time.Time  `json:"executed_at"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
}

// layer between the stored action payload and the device cloud commands
func factoryCommands(action models.ScheduledAction) (res []devicecloud.Command, err error) {
	if len(action.Commands) == 0 {
		err = errors.New("action has no commands")
		return
	}

	err = json.Unmarshal(action.Commands, &res)
	if err != nil {
		err = fmt.Errorf("json.Unmarshal(action.Commands), %v", err)
		return
	}
	if len(res) == 0 {
		err = errors.New("action has no commands")
		return
	}
	for i, c := range res {
		if c.Code == "" {
			err = fmt.Errorf("command %d has an empty code", i)
			return
		}
	}
	return
}

// NextRunAt is derived from finishedAt, the same instant handed to FinishAction.
func factoryExecutionMessage(action models.ScheduledAction, execution models.ActionExecution, finishedAt time.Time) (res []byte, err error) {
	msg := ExecutionMessage{
		ExecutionID: execution.ID,
		ActionID:    action.ID,
		DeviceID:    action.DeviceID,
		Name:        action.Name,
		Status:      execution.Status,
		Error:       execution.Error,
		DurationMs:  execution.DurationMs,
		ExecutedAt:  execution.StartedAt,
	}
	if action.Repeat != "" {
		if next, er := models.NextRun(action.Repeat, finishedAt); er == nil {
			msg.NextRunAt = &next
		}
	}

	res, err = json.Marshal(msg)
	if err != nil {
		err = fmt.Errorf("json.Marshal(executionMessage), %v", err)
		return
	}
	return
}
