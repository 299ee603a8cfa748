package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ping-42/device-scheduler/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	running  bool
	healthy  bool
	next     time.Time
	lastExec time.Time
	startOK  bool
	starts   int
	stops    int
	restarts int
}

func (f *fakeController) Start() bool {
	f.starts++
	if !f.startOK {
		return false
	}
	f.running = true
	return true
}

func (f *fakeController) Stop() bool {
	f.stops++
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeController) Restart() bool {
	f.restarts++
	f.running = f.startOK
	return f.startOK
}

func (f *fakeController) Status() scheduler.Status {
	s := scheduler.Status{
		Running:              f.running,
		ThreadAlive:          f.running,
		IntervalSeconds:      60,
		TotalExecutions:      4,
		SuccessfulExecutions: 3,
		FailedExecutions:     1,
		SkippedExecutions:    2,
		SuccessRate:          75,
	}
	if !f.lastExec.IsZero() {
		s.LastExecutionTime = &f.lastExec
	}
	return s
}

func (f *fakeController) IsHealthy() bool { return f.healthy }

func (f *fakeController) HealthReport() scheduler.HealthReport {
	return scheduler.HealthReport{Status: f.Status(), Healthy: f.healthy, Recommendations: []string{"Scheduler is healthy"}}
}

func (f *fakeController) NextExecutionTime() (time.Time, bool) {
	return f.next, !f.next.IsZero()
}

func newTestServer(c Controller, token string) *Server {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(":0", token, c, logrus.NewEntry(l))
}

func do(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func Test_Healthz(t *testing.T) {
	tests := []struct {
		name     string
		healthy  bool
		expected int
	}{
		{name: "healthy", healthy: true, expected: http.StatusOK},
		{name: "unhealthy", healthy: false, expected: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeController{healthy: tt.healthy}, "")
			rec := do(t, s, http.MethodGet, "/healthz", "")
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func Test_Status(t *testing.T) {
	s := newTestServer(&fakeController{running: true}, "")
	rec := do(t, s, http.MethodGet, "/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.EqualValues(t, 4, status.TotalExecutions)
	assert.Equal(t, 75.0, status.SuccessRate)
}

func Test_Health(t *testing.T) {
	s := newTestServer(&fakeController{running: true, healthy: true}, "")
	rec := do(t, s, http.MethodGet, "/scheduler/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report scheduler.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Healthy)
	assert.Equal(t, []string{"Scheduler is healthy"}, report.Recommendations)
}

func Test_Next(t *testing.T) {
	next := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)

	s := newTestServer(&fakeController{next: next}, "")
	var res nextResponse
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, "/scheduler/next", "").Body.Bytes(), &res))
	assert.True(t, res.Scheduled)
	require.NotNil(t, res.NextExecutionTime)
	assert.True(t, next.Equal(*res.NextExecutionTime))

	s = newTestServer(&fakeController{}, "")
	res = nextResponse{}
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, "/scheduler/next", "").Body.Bytes(), &res))
	assert.False(t, res.Scheduled)
	assert.Nil(t, res.NextExecutionTime)
}

func Test_AdminActions(t *testing.T) {
	c := &fakeController{startOK: true}
	s := newTestServer(c, "")

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/scheduler/start", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/scheduler/stop", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/scheduler/stop", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/scheduler/restart", "").Code)

	c.startOK = false
	c.running = false
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/scheduler/start", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/scheduler/restart", "").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/scheduler/start", "").Code)
}

func Test_AdminToken(t *testing.T) {
	c := &fakeController{startOK: true}
	s := newTestServer(c, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/scheduler/start", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/scheduler/start", "wrong").Code)
	assert.Zero(t, c.starts)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/scheduler/start", "secret").Code)
	assert.Equal(t, 1, c.starts)

	// read endpoints stay open
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/scheduler/status", "").Code)
}

func Test_Metrics(t *testing.T) {
	c := &fakeController{running: true, healthy: true, lastExec: time.Unix(1700000000, 0)}
	s := newTestServer(c, "")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "device_scheduler_running 1")
	assert.Contains(t, body, `device_scheduler_executions_total{outcome="success"} 3`)
	assert.Contains(t, body, `device_scheduler_executions_total{outcome="failed"} 1`)
	assert.NotContains(t, body, `outcome="skipped"`)
	assert.Contains(t, body, "device_scheduler_skipped_executions_total 2")
	assert.Contains(t, body, "device_scheduler_success_rate_percent 75")
	assert.Contains(t, body, "device_scheduler_last_execution_timestamp_seconds 1.7e+09")
	assert.NotContains(t, body, "device_scheduler_uptime_seconds ")
}
