// Package api exposes the scheduler controller over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ping-42/device-scheduler/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Controller is the part of scheduler.Controller the API drives.
type Controller interface {
	Start() bool
	Stop() bool
	Restart() bool
	Status() scheduler.Status
	IsHealthy() bool
	HealthReport() scheduler.HealthReport
	NextExecutionTime() (time.Time, bool)
}

type Server struct {
	controller Controller
	adminToken string
	logger     *logrus.Entry
	router     chi.Router
	httpServer *http.Server
}

func New(addr, adminToken string, controller Controller, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		controller: controller,
		adminToken: adminToken,
		logger:     logger,
		router:     chi.NewRouter(),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/healthz", s.healthz)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(newSchedulerMetricsCollector(s.controller))
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.router.Route("/scheduler", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/health", s.health)
		r.Get("/next", s.next)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/start", s.start)
			r.Post("/stop", s.stop)
			r.Post("/restart", s.restart)
		})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("admin api listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
