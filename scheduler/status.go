package scheduler

import (
	"math"
	"time"
)

// minSuccessRate is the success rate (percent) under which the health report flags the scheduler.
const minSuccessRate = 80.0

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Running              bool       `json:"running"`
	IntervalSeconds      float64    `json:"interval_seconds"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	LastExecutionTime    *time.Time `json:"last_execution_time,omitempty"`
	UptimeSeconds        *float64   `json:"uptime_seconds,omitempty"`
	ThreadAlive          bool       `json:"thread_alive"`
	TotalExecutions      uint64     `json:"total_executions"`
	SuccessfulExecutions uint64     `json:"successful_executions"`
	FailedExecutions     uint64     `json:"failed_executions"`
	SkippedExecutions    uint64     `json:"skipped_executions"`
	SuccessRate          float64    `json:"success_rate"`
}

type HealthChecks struct {
	SchedulerRunning bool `json:"scheduler_running"`
	ThreadAlive      bool `json:"thread_alive"`
	RecentExecution  bool `json:"recent_execution"`
	SuccessRateOK    bool `json:"success_rate_ok"`
}

// HealthReport is the status plus a per-check breakdown and remediation hints.
type HealthReport struct {
	Status          Status       `json:"status"`
	Healthy         bool         `json:"healthy"`
	Checks          HealthChecks `json:"checks"`
	Recommendations []string     `json:"recommendations"`
}

type snapshot struct {
	now       time.Time
	running   bool
	alive     bool
	startTime time.Time
	lastExec  time.Time

	total      uint64
	successful uint64
	failed     uint64
	skipped    uint64
}

func (c *Controller) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot{
		now:        c.now(),
		running:    c.running,
		alive:      c.aliveLocked(),
		startTime:  c.startTime,
		lastExec:   c.lastExec,
		total:      c.total,
		successful: c.successful,
		failed:     c.failed,
		skipped:    c.skipped,
	}
}

// Status returns a snapshot of the controller state. It has no side effects.
func (c *Controller) Status() Status {
	return c.statusFrom(c.snapshot())
}

func (c *Controller) statusFrom(s snapshot) Status {
	st := Status{
		Running:              s.running,
		IntervalSeconds:      c.cfg.Interval.Seconds(),
		ThreadAlive:          s.alive,
		TotalExecutions:      s.total,
		SuccessfulExecutions: s.successful,
		FailedExecutions:     s.failed,
		SkippedExecutions:    s.skipped,
		SuccessRate:          successRate(s.successful, s.total),
	}
	if !s.startTime.IsZero() {
		t := s.startTime
		uptime := s.now.Sub(t).Seconds()
		st.StartTime = &t
		st.UptimeSeconds = &uptime
	}
	if !s.lastExec.IsZero() {
		t := s.lastExec
		st.LastExecutionTime = &t
	}
	return st
}

// NextExecutionTime returns last execution + interval while the scheduler is running and
// has executed at least once. The value is advisory: an overrunning attempt or a stop
// changes the actual wake-up.
func (c *Controller) NextExecutionTime() (time.Time, bool) {
	s := c.snapshot()
	if !s.running || s.lastExec.IsZero() {
		return time.Time{}, false
	}
	return s.lastExec.Add(c.cfg.Interval), true
}

// IsHealthy reports whether the scheduler is running, its worker is alive and the last
// execution (if any) is not older than twice the interval.
func (c *Controller) IsHealthy() bool {
	s := c.snapshot()
	return s.running && s.alive && c.recentExecution(s)
}

// HealthReport builds a deterministic self-diagnosis from the current state.
func (c *Controller) HealthReport() HealthReport {
	s := c.snapshot()
	st := c.statusFrom(s)

	checks := HealthChecks{
		SchedulerRunning: s.running,
		ThreadAlive:      s.alive,
		RecentExecution:  c.recentExecution(s),
		SuccessRateOK:    s.total > 0 && st.SuccessRate >= minSuccessRate,
	}

	var recs []string
	if !checks.SchedulerRunning {
		recs = append(recs, "Scheduler is not running: start it through the admin API")
	}
	if !checks.ThreadAlive {
		recs = append(recs, "Scheduler worker is not alive: restart the scheduler")
	}
	if !checks.RecentExecution {
		recs = append(recs, "No execution within twice the interval: check for a hung executor call or restart the scheduler")
	}
	if !checks.SuccessRateOK {
		if s.total == 0 {
			recs = append(recs, "No executions recorded yet: wait for the first run to complete")
		} else {
			recs = append(recs, "Success rate is below 80%: check executor errors and device API connectivity")
		}
	}
	if len(recs) == 0 {
		recs = []string{"Scheduler is healthy"}
	}

	return HealthReport{
		Status:          st,
		Healthy:         s.running && s.alive && checks.RecentExecution,
		Checks:          checks,
		Recommendations: recs,
	}
}

func (c *Controller) recentExecution(s snapshot) bool {
	if s.lastExec.IsZero() {
		return true
	}
	return s.now.Sub(s.lastExec) <= 2*c.cfg.Interval
}

// successRate is successful/max(total,1) as a percentage rounded to one decimal.
func successRate(successful, total uint64) float64 {
	d := total
	if d == 0 {
		d = 1
	}
	return math.Round(float64(successful)/float64(d)*1000) / 10
}
