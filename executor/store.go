package executor

import (
	"time"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/models"
	"gorm.io/gorm"
)

// Store is the persistence the executor needs.
type Store interface {
	DueActions(now time.Time, limit int) ([]models.ScheduledAction, error)
	Claim(id uuid.UUID, owner string, now time.Time) (bool, error)
	RecordExecution(execution *models.ActionExecution) error
	Finish(action models.ScheduledAction, owner string, runErr error, now time.Time) error
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by the given gorm session.
func NewGormStore(db *gorm.DB) Store {
	return gormStore{db: db}
}

func (s gormStore) DueActions(now time.Time, limit int) ([]models.ScheduledAction, error) {
	return models.GetDueActions(s.db, now, limit)
}

func (s gormStore) Claim(id uuid.UUID, owner string, now time.Time) (bool, error) {
	return models.ClaimAction(s.db, id, owner, now)
}

func (s gormStore) RecordExecution(execution *models.ActionExecution) error {
	return models.CreateExecution(s.db, execution)
}

func (s gormStore) Finish(action models.ScheduledAction, owner string, runErr error, now time.Time) error {
	return models.FinishAction(s.db, action, owner, runErr, now)
}
