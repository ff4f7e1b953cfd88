// Package api exposes booking sessions and the tee-time timeline as JSON over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"edengolf/internal/booking"
	"edengolf/internal/golfapi"
	"edengolf/internal/holds"
	"edengolf/internal/metrics"
	"edengolf/internal/models"
	"edengolf/internal/timeline"

	"github.com/rs/zerolog"
)

// Sessions is the session registry served by the API.
type Sessions interface {
	Create() *booking.Session
	Get(id string) (*booking.Session, error)
	Delete(ctx context.Context, id string) error
	Len() int
}

// Timeline provides the board of taken tee times.
type Timeline interface {
	Board() timeline.Board
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	sessions Sessions
	timeline Timeline
	logger   *zerolog.Logger
	server   *http.Server
}

// NewHTTPServer wires the routes. timeline may be nil, in which case /api/timeline
// answers 404.
func NewHTTPServer(addr string, sessions Sessions, tl Timeline, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{sessions: sessions, timeline: tl, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("PUT /api/sessions/{id}/date", s.handleSetDate)
	mux.HandleFunc("PUT /api/sessions/{id}/course", s.handleSetCourse)
	mux.HandleFunc("PUT /api/sessions/{id}/time", s.handleSelectTime)
	mux.HandleFunc("PUT /api/sessions/{id}/players", s.handleSetPlayers)
	mux.HandleFunc("PUT /api/sessions/{id}/group", s.handleSetGroup)
	mux.HandleFunc("PUT /api/sessions/{id}/extras", s.handleSetExtras)
	mux.HandleFunc("PUT /api/sessions/{id}/caddy-selection", s.handleCaddySelection)
	mux.HandleFunc("POST /api/sessions/{id}/caddies/{caddyID}", s.handleToggleCaddy)
	mux.HandleFunc("POST /api/sessions/{id}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.handleSubmit)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("booking API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("healthz")
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *HTTPServer) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("timeline")
	if s.timeline == nil {
		writeError(w, http.StatusNotFound, "timeline is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.timeline.Board())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrSessionNotFound), errors.Is(err, booking.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, models.ErrInvalidCourseType),
		errors.Is(err, booking.ErrInvalidPlayers),
		errors.Is(err, booking.ErrInvalidQuantity),
		errors.Is(err, booking.ErrUnknownSlot):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrSlotLocked),
		errors.Is(err, booking.ErrCaddyUnavailable),
		errors.Is(err, holds.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, booking.ErrIncomplete), errors.Is(err, booking.ErrCaddySelectionOff):
		return http.StatusUnprocessableEntity
	case golfapi.StatusCode(err) == http.StatusConflict:
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusBadGateway || golfapi.StatusCode(err) != 0 {
		msg = golfapi.Describe(err)
		s.logger.Warn().Err(err).Msg("backend call failed")
	}
	writeError(w, status, msg)
}
