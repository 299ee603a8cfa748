package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultRestartPause = 1 * time.Second
	DefaultErrorBackoff = 10 * time.Second
)

// Config controls the cadence and lifecycle timings of a Controller.
type Config struct {
	Interval     time.Duration
	StopTimeout  time.Duration
	RestartPause time.Duration
	ErrorBackoff time.Duration

	// ExecutionTimeout bounds a single executor call through its context.
	// Zero keeps the executor call unbounded.
	ExecutionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.RestartPause < 0 {
		c.RestartPause = 0
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.ExecutionTimeout < 0 {
		c.ExecutionTimeout = 0
	}
	return c
}

// Controller owns the background worker that periodically executes due scheduled actions.
//
// Exactly one worker runs per Controller. Executions are strictly sequential: the next
// attempt starts only after the previous one finished and the interval wait elapsed.
type Controller struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time

	mu    sync.Mutex
	scope ScopeFunc

	running   bool
	startTime time.Time
	lastExec  time.Time

	total      uint64
	successful uint64
	failed     uint64
	skipped    uint64

	// stopCh is closed by Stop; done is closed by the worker when it exits.
	stopCh chan struct{}
	done   chan struct{}
}

// New returns a stopped Controller. Zero Config fields fall back to the defaults.
func New(cfg Config, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		cfg: cfg.withDefaults(),
		log: log,
		now: time.Now,
	}
}

// SetScope installs the provider used to build the per-iteration execution scope.
func (c *Controller) SetScope(fn ScopeFunc) {
	c.mu.Lock()
	c.scope = fn
	c.mu.Unlock()
}

// Start spawns the worker. It reports false when the scheduler is already running or
// when the worker of a previous run is still alive.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.log.Warn("scheduler already running")
		return false
	}
	if c.aliveLocked() {
		c.log.Error("previous scheduler worker has not exited yet, refusing to start")
		return false
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stopCh
	c.done = done
	c.running = true
	c.startTime = c.now()

	go c.run(stopCh, done)

	c.log.WithField("interval", c.cfg.Interval.String()).Info("scheduler started")
	return true
}

// Stop signals the worker and waits up to the stop timeout for it to exit.
// It returns false when the scheduler was not running.
//
// The join is best-effort: an executor call that hangs keeps the worker alive past
// Stop's return, which is visible as thread_alive in Status.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.log.Debug("scheduler not running, nothing to stop")
		return false
	}
	close(c.stopCh)
	c.running = false
	done := c.done
	c.mu.Unlock()

	t := time.NewTimer(c.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-done:
		c.log.Info("scheduler stopped")
	case <-t.C:
		c.log.WithField("timeout", c.cfg.StopTimeout.String()).Warn("scheduler worker did not exit in time")
	}
	return true
}

// Restart is Stop, a short pause, then Start. Counters are kept.
func (c *Controller) Restart() bool {
	c.log.Info("scheduler restart requested")
	c.Stop()
	if c.cfg.RestartPause > 0 {
		time.Sleep(c.cfg.RestartPause)
	}
	return c.Start()
}

func (c *Controller) aliveLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
