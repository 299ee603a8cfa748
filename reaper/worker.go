package reaper

import (
	"time"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReaperData holds everything needed to decide which claims are stale
type ReaperData struct {
	RunningActions []models.ScheduledAction
	Now            time.Time
	StaleAfter     time.Duration
	reapLogger     *logrus.Entry
}

// Work resets stale claims every interval until stop is closed.
func Work(interval, staleAfter time.Duration, dbClient *gorm.DB, logger *logrus.Entry, stop <-chan struct{}) {
	reapStaleActions(dbClient, logger, staleAfter)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			reapStaleActions(dbClient, logger, staleAfter)
		}
	}
}

// reapStaleActions wraps the reaper logic - get data, select stale claims and reset them in the DB
func reapStaleActions(dbClient *gorm.DB, reapLogger *logrus.Entry, staleAfter time.Duration) {
	reapLogger.Debug("Reaping triggered...")

	data, err := getReaperData(dbClient, staleAfter)
	if err != nil {
		reapLogger.Errorf("getReaperData error: %v", err)
		return
	}
	data.reapLogger = reapLogger

	stale := selectStale(data)
	if len(stale) == 0 {
		return
	}

	reset, err := models.ResetActions(dbClient, stale, data.Now.Add(-staleAfter))
	if err != nil {
		reapLogger.Errorf("error resetting stale actions: %v", err)
		return
	}
	reapLogger.WithField("reset", reset).Warn("stale action claims returned to pending")
}

func getReaperData(dbClient *gorm.DB, staleAfter time.Duration) (data ReaperData, err error) {
	data.Now = time.Now()
	data.StaleAfter = staleAfter
	data.RunningActions, err = models.GetRunningActions(dbClient)
	return
}

// selectStale returns the ids of running actions claimed longer than StaleAfter ago.
// A running action without a claim time is always stale.
func selectStale(data ReaperData) []uuid.UUID {
	cutoff := data.Now.Add(-data.StaleAfter)
	stale := []uuid.UUID{}
	for _, a := range data.RunningActions {
		if a.Status != models.ActionStatusRunning {
			continue
		}
		if a.ClaimedAt != nil && !a.ClaimedAt.Before(cutoff) {
			continue
		}
		if data.reapLogger != nil {
			data.reapLogger.Debugf("stale claim on action %v by %q", a.ID, a.ClaimedBy)
		}
		stale = append(stale, a.ID)
	}
	return stale
}
