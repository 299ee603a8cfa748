package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// ActionExecution is the audit row written for every attempted action.
type ActionExecution struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActionID   uuid.UUID `gorm:"type:uuid"`
	DeviceID   string
	ExecutorID string
	Status     string
	Error      string
	DurationMs int64
	StartedAt  time.Time
	CreatedAt  time.Time
}

func (ActionExecution) TableName() string {
	return "action_executions"
}

func CreateExecution(dbClient *gorm.DB, execution *ActionExecution) error {
	if execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	if err := dbClient.Create(execution).Error; err != nil {
		return fmt.Errorf("failed to insert execution for action %v: %w", execution.ActionID, err)
	}
	return nil
}
