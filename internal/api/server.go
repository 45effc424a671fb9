// Package api serves the admin HTTP interface over the reminder manager.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"minder/internal/config"
	"minder/internal/fuzzytime"
	"minder/internal/manager"
	"minder/internal/reminder"
	"minder/internal/status"
	"minder/internal/timezone"
	"minder/internal/users"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type Deps struct {
	Manager *manager.Manager
	Users   *users.Store
	Status  *status.Recorder
	Clock   clock.Clock
	Log     *zap.Logger
}

type Server struct {
	cfg     config.Web
	manager *manager.Manager
	users   *users.Store
	status  *status.Recorder
	clk     clock.Clock
	log     *zap.Logger
	hub     *Hub
	secret  []byte
}

func New(cfg config.Web, d Deps) *Server {
	log := d.Log.Named("api")
	s := &Server{
		cfg:     cfg,
		manager: d.Manager,
		users:   d.Users,
		status:  d.Status,
		clk:     d.Clock,
		log:     log,
		hub:     NewHub(cfg.AllowedOrigins, log),
		secret:  []byte(cfg.JWTSecret),
	}
	d.Manager.AddListener(s.hub)
	return s
}

// Hub returns the websocket hub reminder events are published to.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Message: "ok"})
	})
	mux.HandleFunc("POST /api/login", s.login)

	mux.HandleFunc("GET /api/reminders", s.withAuth(s.listReminders))
	mux.HandleFunc("POST /api/reminders", s.withAuth(s.createReminder))
	mux.HandleFunc("PUT /api/reminders", s.withAuth(s.createReminder))
	mux.HandleFunc("POST /api/reminders/clean", s.withAuth(s.cleanReminders))
	mux.HandleFunc("GET /api/reminders/{id}", s.withAuth(s.getReminder))
	mux.HandleFunc("DELETE /api/reminders/{id}", s.withAuth(s.deleteReminder))
	mux.HandleFunc("PATCH /api/reminders/{id}", s.withAuth(s.updateReminder))

	mux.HandleFunc("GET /api/when", s.withAuth(s.when))
	mux.HandleFunc("GET /api/users", s.withAuth(s.listUsers))
	mux.HandleFunc("GET /api/status", s.withAuth(s.listStatus))
	mux.HandleFunc("GET /api/events", s.withAuth(s.hub.ServeHTTP))

	return s.logRequests(mux)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Web API listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return srv.Shutdown(shutdownCtx)
}

type envelope struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	IsError bool   `json:"is_error"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, code int, message string, count int, data any) {
	writeJSON(w, code, envelope{Message: message, Count: count, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Message: message, IsError: true})
}

// fail maps domain errors onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, reminder.ErrInvalid),
		errors.Is(err, timezone.ErrInvalidTimezone),
		errors.Is(err, fuzzytime.ErrUnresolvableTime):
		code = http.StatusBadRequest
	case errors.Is(err, reminder.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, reminder.ErrDuplicateKey), errors.Is(err, reminder.ErrConflict):
		code = http.StatusConflict
	}

	if code == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the request logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clk.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.code),
			zap.Duration("took", s.clk.Now().Sub(start)))
	})
}
