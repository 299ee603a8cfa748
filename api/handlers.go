package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type actionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type nextResponse struct {
	Scheduled         bool       `json:"scheduled"`
	NextExecutionTime *time.Time `json:"next_execution_time,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if !s.controller.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.HealthReport())
}

func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	next, ok := s.controller.NextExecutionTime()
	res := nextResponse{Scheduled: ok}
	if ok {
		res.NextExecutionTime = &next
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Start() {
		writeJSON(w, http.StatusConflict, actionResponse{Message: "scheduler is already running or its previous worker has not exited"})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true, Message: "scheduler started"})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Stop() {
		writeJSON(w, http.StatusConflict, actionResponse{Message: "scheduler is not running"})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true, Message: "scheduler stopped"})
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Restart() {
		writeJSON(w, http.StatusConflict, actionResponse{Message: "scheduler could not be restarted"})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true, Message: "scheduler restarted"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
