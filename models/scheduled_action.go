package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	ActionStatusPending   = "pending"
	ActionStatusRunning   = "running"
	ActionStatusCompleted = "completed"
	ActionStatusFailed    = "failed"
)

// ErrClaimLost is returned by FinishAction when the action is no longer claimed by the caller.
var ErrClaimLost = errors.New("action claim lost")

// ScheduledAction is a stored set of device commands due at NextRunAt.
// A non-empty Repeat (standard 5-field cron spec) makes the action recurring.
type ScheduledAction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceID  string
	Name      string
	Commands  []byte `gorm:"type:jsonb"`
	Repeat    string
	Status    string
	NextRunAt time.Time
	LastRunAt *time.Time
	ClaimedBy string
	ClaimedAt *time.Time
	LastError string
	RunCount  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduledAction) TableName() string {
	return "scheduled_actions"
}

// GetDueActions returns up to limit pending actions with next_run_at <= now, oldest first.
func GetDueActions(dbClient *gorm.DB, now time.Time, limit int) (actions []ScheduledAction, err error) {
	q := dbClient.Where("status = ? AND next_run_at <= ?", ActionStatusPending, now).Order("next_run_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err = q.Find(&actions).Error
	if err != nil {
		err = fmt.Errorf("failed to get due actions: %w", err)
	}
	return
}

// ClaimAction moves the action from pending to running on behalf of owner, provided it is
// still due at now. It reports false when another executor claimed or rescheduled it first.
func ClaimAction(dbClient *gorm.DB, id uuid.UUID, owner string, now time.Time) (bool, error) {
	res := dbClient.Model(&ScheduledAction{}).
		Where("id = ? AND status = ? AND next_run_at <= ?", id, ActionStatusPending, now).
		Updates(map[string]interface{}{
			"status":     ActionStatusRunning,
			"claimed_by": owner,
			"claimed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim action %v: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FinishAction releases the action claimed by owner. Recurring actions go back to pending
// with their next run time, one-shot actions end up completed or failed.
// ErrClaimLost is returned when owner no longer holds the claim.
func FinishAction(dbClient *gorm.DB, action ScheduledAction, owner string, runErr error, now time.Time) error {
	updates := map[string]interface{}{
		"last_run_at": now,
		"run_count":   gorm.Expr("run_count + 1"),
		"claimed_by":  "",
		"claimed_at":  nil,
		"last_error":  "",
	}
	if runErr != nil {
		updates["last_error"] = runErr.Error()
	}

	switch {
	case action.Repeat != "":
		next, err := NextRun(action.Repeat, now)
		if err != nil {
			updates["status"] = ActionStatusFailed
			updates["last_error"] = err.Error()
			break
		}
		updates["status"] = ActionStatusPending
		updates["next_run_at"] = next
	case runErr != nil:
		updates["status"] = ActionStatusFailed
	default:
		updates["status"] = ActionStatusCompleted
	}

	res := dbClient.Model(&ScheduledAction{}).
		Where("id = ? AND status = ? AND claimed_by = ?", action.ID, ActionStatusRunning, owner).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finish action %v: %w", action.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish action %v as %q: %w", action.ID, owner, ErrClaimLost)
	}
	return nil
}

// GetRunningActions returns every action currently claimed by an executor.
func GetRunningActions(dbClient *gorm.DB) (actions []ScheduledAction, err error) {
	err = dbClient.Where("status = ?", ActionStatusRunning).Find(&actions).Error
	if err != nil {
		err = fmt.Errorf("failed to get running actions: %w", err)
	}
	return
}

// ResetActions puts the given running actions back to pending, provided their claim
// is still older than claimedBefore.
func ResetActions(dbClient *gorm.DB, ids []uuid.UUID, claimedBefore time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbClient.Model(&ScheduledAction{}).
		Where("id IN ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)", ids, ActionStatusRunning, claimedBefore).
		Updates(map[string]interface{}{
			"status":     ActionStatusPending,
			"claimed_by": "",
			"claimed_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset actions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// NextRun returns the first activation of the cron spec strictly after the given time.
func NextRun(spec string, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid repeat spec %q: %w", spec, err)
	}
	next := schedule.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("repeat spec %q never fires", spec)
	}
	return next, nil
}
