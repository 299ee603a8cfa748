package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

type schedulerMetricsCollector struct {
	controller Controller

	runningDesc       *prometheus.Desc
	aliveDesc         *prometheus.Desc
	healthyDesc       *prometheus.Desc
	executionsDesc    *prometheus.Desc
	skippedDesc       *prometheus.Desc
	successRateDesc   *prometheus.Desc
	lastExecutionDesc *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

func newSchedulerMetricsCollector(controller Controller) prometheus.Collector {
	return &schedulerMetricsCollector{
		controller: controller,
		runningDesc: prometheus.NewDesc(
			"device_scheduler_running",
			"Whether the scheduler is started (1) or stopped (0).",
			nil, nil,
		),
		aliveDesc: prometheus.NewDesc(
			"device_scheduler_worker_alive",
			"Whether the scheduler worker goroutine is alive.",
			nil, nil,
		),
		healthyDesc: prometheus.NewDesc(
			"device_scheduler_healthy",
			"Result of the scheduler health check.",
			nil, nil,
		),
		executionsDesc: prometheus.NewDesc(
			"device_scheduler_executions_total",
			"Finished execution attempts by outcome.",
			[]string{"outcome"}, nil,
		),
		skippedDesc: prometheus.NewDesc(
			"device_scheduler_skipped_executions_total",
			"Iterations skipped because no execution scope was available.",
			nil, nil,
		),
		successRateDesc: prometheus.NewDesc(
			"device_scheduler_success_rate_percent",
			"Successful executions over total executions, in percent.",
			nil, nil,
		),
		lastExecutionDesc: prometheus.NewDesc(
			"device_scheduler_last_execution_timestamp_seconds",
			"Unix timestamp of the last finished execution attempt.",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"device_scheduler_uptime_seconds",
			"Seconds since the scheduler was last started.",
			nil, nil,
		),
	}
}

func (c *schedulerMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runningDesc
	ch <- c.aliveDesc
	ch <- c.healthyDesc
	ch <- c.executionsDesc
	ch <- c.skippedDesc
	ch <- c.successRateDesc
	ch <- c.lastExecutionDesc
	ch <- c.uptimeDesc
}

func (c *schedulerMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.controller == nil {
		return
	}
	s := c.controller.Status()
	ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, boolValue(s.Running))
	ch <- prometheus.MustNewConstMetric(c.aliveDesc, prometheus.GaugeValue, boolValue(s.ThreadAlive))
	ch <- prometheus.MustNewConstMetric(c.healthyDesc, prometheus.GaugeValue, boolValue(c.controller.IsHealthy()))
	ch <- prometheus.MustNewConstMetric(c.executionsDesc, prometheus.CounterValue, float64(s.SuccessfulExecutions), "success")
	ch <- prometheus.MustNewConstMetric(c.executionsDesc, prometheus.CounterValue, float64(s.FailedExecutions), "failed")
	ch <- prometheus.MustNewConstMetric(c.skippedDesc, prometheus.CounterValue, float64(s.SkippedExecutions))
	ch <- prometheus.MustNewConstMetric(c.successRateDesc, prometheus.GaugeValue, s.SuccessRate)
	if s.LastExecutionTime != nil {
		ch <- prometheus.MustNewConstMetric(c.lastExecutionDesc, prometheus.GaugeValue, float64(s.LastExecutionTime.UTC().Unix()))
	}
	if s.UptimeSeconds != nil {
		ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, *s.UptimeSeconds)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
