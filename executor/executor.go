// Package executor runs due scheduled actions against the device cloud.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/devicecloud"
	"github.com/ping-42/device-scheduler/models"
	"github.com/ping-42/device-scheduler/scheduler"
	"github.com/sirupsen/logrus"
)

const DefaultBatchSize = 50

// DeviceAPI sends commands to a single device.
type DeviceAPI interface {
	SendCommands(ctx context.Context, deviceID string, commands []devicecloud.Command) error
}

type Executor struct {
	store      Store
	devices    DeviceAPI
	broker     MessageBroker
	log        *logrus.Entry
	instanceID string
	batchSize  int
	now        func() time.Time
}

type Options struct {
	// InstanceID identifies this process in claimed_by and execution rows.
	InstanceID string
	BatchSize  int
}

// New returns an Executor. A nil broker disables execution events.
func New(store Store, devices DeviceAPI, broker MessageBroker, log *logrus.Entry, opts Options) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	return &Executor{
		store:      store,
		devices:    devices,
		broker:     broker,
		log:        log,
		instanceID: opts.InstanceID,
		batchSize:  opts.BatchSize,
		now:        time.Now,
	}
}

// ExecutePendingActions runs every due action this instance manages to claim.
//
// Device failures are counted in Result.Failed; only store failures (or running out of
// time) turn Success to false.
func (e *Executor) ExecutePendingActions(ctx context.Context) scheduler.Result {
	actions, err := e.store.DueActions(e.now(), e.batchSize)
	if err != nil {
		return scheduler.Result{Error: err.Error()}
	}
	if len(actions) == 0 {
		return scheduler.Result{Success: true}
	}
	e.log.Debugf("found %v actions pending for execution", len(actions))

	res := scheduler.Result{Success: true}
	var storeErrs []string
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			storeErrs = append(storeErrs, fmt.Sprintf("stopped after %d actions: %v", res.ExecutedCount, err))
			break
		}

		claimed, err := e.store.Claim(action.ID, e.instanceID, e.now())
		if err != nil {
			storeErrs = append(storeErrs, err.Error())
			continue
		}
		if !claimed {
			e.log.WithField("action_id", action.ID).Debug("action claimed by another executor, skipping")
			continue
		}

		res.ExecutedCount++
		deviceErr, err := e.runAction(ctx, action)
		if deviceErr != nil {
			res.Failed++
		}
		if err != nil {
			storeErrs = append(storeErrs, err.Error())
		}
	}

	if len(storeErrs) > 0 {
		res.Success = false
		res.Error = strings.Join(storeErrs, "; ")
	}
	return res
}

// runAction sends the action's commands and persists the outcome. deviceErr is the
// device side failure, err a failure to persist it.
func (e *Executor) runAction(ctx context.Context, action models.ScheduledAction) (deviceErr, err error) {
	actionLogger := e.log.WithFields(logrus.Fields{
		"action_id": action.ID,
		"device_id": action.DeviceID,
	})

	started := e.now()
	commands, deviceErr := factoryCommands(action)
	if deviceErr == nil {
		deviceErr = e.devices.SendCommands(ctx, action.DeviceID, commands)
	}

	execution := models.ActionExecution{
		ID:         uuid.New(),
		ActionID:   action.ID,
		DeviceID:   action.DeviceID,
		ExecutorID: e.instanceID,
		Status:     models.ExecutionStatusSuccess,
		DurationMs: e.now().Sub(started).Milliseconds(),
		StartedAt:  started,
	}
	if deviceErr != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.Error = deviceErr.Error()
		actionLogger.WithError(deviceErr).Warn("scheduled action failed")
	} else {
		actionLogger.Info("scheduled action executed")
	}

	if er := e.store.RecordExecution(&execution); er != nil {
		err = er
	}

	finishedAt := e.now()
	if er := e.store.Finish(action, e.instanceID, deviceErr, finishedAt); er != nil {
		if errors.Is(er, models.ErrClaimLost) {
			actionLogger.WithError(er).Warn("action claim was taken over before finishing, leaving it to the new owner")
		} else {
			err = errors.Join(err, er)
		}
	}

	e.publish(ctx, action, execution, finishedAt, actionLogger)
	return deviceErr, err
}

func (e *Executor) publish(ctx context.Context, action models.ScheduledAction, execution models.ActionExecution, finishedAt time.Time, actionLogger *logrus.Entry) {
	if e.broker == nil {
		return
	}
	jsonMessage, err := factoryExecutionMessage(action, execution, finishedAt)
	if err != nil {
		actionLogger.WithError(err).Error("failed to build execution message")
		return
	}
	if _, err := e.broker.Publish(ctx, ActionExecutedChannel, jsonMessage); err != nil {
		actionLogger.WithError(err).Error("failed to publish execution message")
	}
}
