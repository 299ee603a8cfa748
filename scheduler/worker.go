package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// run is the worker loop. It exits only when stopCh is closed.
func (c *Controller) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	c.log.Debug("scheduler worker started")

	for {
		wait := c.cfg.Interval
		if !c.iterate() {
			wait = c.cfg.ErrorBackoff
		}
		if !sleep(stopCh, wait) {
			c.log.Debug("scheduler worker stopped")
			return
		}
	}
}

// iterate runs one execution attempt and reports false when the attempt panicked,
// in which case the loop waits for the error backoff instead of the interval.
func (c *Controller) iterate() (ok bool) {
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			if !recorded {
				c.record(false)
			}
			c.log.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("scheduler iteration panicked")
			ok = false
		}
	}()
	return !c.execute(&recorded)
}

// execute performs a single execution attempt: resolve the scope, run the executor,
// update the counters. It returns true when the executor panicked.
func (c *Controller) execute(recorded *bool) (panicked bool) {
	start := time.Now()

	ctx := context.Background()
	if c.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ExecutionTimeout)
		defer cancel()
	}

	c.mu.Lock()
	scopeFn := c.scope
	c.mu.Unlock()

	if scopeFn == nil {
		c.skip(ErrNoScope)
		return false
	}
	scope, err := scopeFn(ctx)
	if err != nil || scope == nil {
		if err == nil {
			err = errors.New("scope provider returned nil")
		}
		c.skip(err)
		return false
	}
	defer scope.Release()

	var res Result
	ex, err := scope.Executor()
	if err != nil || ex == nil {
		if err == nil {
			err = errors.New("executor is nil")
		}
		c.log.WithError(err).Warn("action executor unavailable")
		res = Result{Error: fmt.Sprintf("executor unavailable: %v", err)}
	} else {
		res, panicked = c.invoke(ctx, ex)
	}

	c.record(res.Success)
	*recorded = true

	entry := c.log.WithFields(logrus.Fields{
		"executed":    res.ExecutedCount,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	switch {
	case res.Success && res.ExecutedCount > 0:
		entry.WithField("failed", res.Failed).Info("scheduled actions executed")
	case res.Success:
		entry.Debug("no scheduled actions due")
	default:
		entry.WithField("error", res.Error).Error("scheduled actions execution failed")
	}
	return panicked
}

func (c *Controller) invoke(ctx context.Context, ex Executor) (res Result, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("action executor panicked")
			res = Result{Error: fmt.Sprintf("executor panic: %v", r)}
			panicked = true
		}
	}()
	return ex.ExecutePendingActions(ctx), false
}

// record updates the counters for a finished attempt.
func (c *Controller) record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.lastExec) {
		now = c.lastExec
	}
	c.lastExec = now
	c.total++
	if success {
		c.successful++
	} else {
		c.failed++
	}
}

func (c *Controller) skip(err error) {
	c.mu.Lock()
	c.skipped++
	c.mu.Unlock()
	c.log.WithError(err).Warn("no execution scope available, skipping iteration")
}

// sleep waits for d or for stopCh. It returns false when stopCh fired.
func sleep(stopCh <-chan struct{}, d time.Duration) bool {
	// a closed stopCh wins over an expired timer
	select {
	case <-stopCh:
		return false
	default:
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}
