package api

import (
	"encoding/json"
	"net/http"

	"edengolf/internal/booking"
	"edengolf/internal/metrics"
)

type dateRequest struct {
	Date string `json:"date"`
}

type courseRequest struct {
	CourseType any `json:"course_type"`
}

type timeRequest struct {
	TimeSlot string `json:"time_slot"`
}

type playersRequest struct {
	Players int `json:"players"`
}

type groupRequest struct {
	GroupName string `json:"group_name"`
}

type extrasRequest struct {
	Carts int `json:"carts"`
	Bags  int `json:"bags"`
}

type caddySelectionRequest struct {
	Enabled bool `json:"enabled"`
}

// SubmitResponse carries the hosted payment page.
type SubmitResponse struct {
	PaymentURL string `json:"payment_url"`
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("session_create")
	session := s.sessions.Create()
	s.logger.Debug().Str("session", session.ID()).Msg("booking session opened")
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_get")
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Touch(); err != nil {
		s.fail(w, err)
		return
	}
	session.Nudge()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_delete")
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSetDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_date")
	var req dateRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SetDate(req.Date)
	})
}

func (s *HTTPServer) handleSetCourse(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_course")
	var req courseRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SetCourseType(req.CourseType)
	})
}

func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_time")
	var req timeRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SelectTimeSlot(req.TimeSlot)
	})
}

func (s *HTTPServer) handleSetPlayers(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_players")
	var req playersRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SetPlayers(req.Players)
	})
}

func (s *HTTPServer) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_group")
	var req groupRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SetGroupName(req.GroupName)
	})
}

func (s *HTTPServer) handleSetExtras(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_extras")
	var req extrasRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.SetExtras(req.Carts, req.Bags)
	})
}

func (s *HTTPServer) handleCaddySelection(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_caddy_selection")
	var req caddySelectionRequest
	s.mutate(w, r, &req, func(session *booking.Session) error {
		return session.EnableCaddySelection(req.Enabled)
	})
}

func (s *HTTPServer) handleToggleCaddy(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_caddy")
	caddyID := r.PathValue("caddyID")
	s.mutate(w, r, nil, func(session *booking.Session) error {
		return session.ToggleCaddy(caddyID)
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_refresh")
	s.mutate(w, r, nil, func(session *booking.Session) error {
		return session.Refresh(r.Context())
	})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_summary")
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	sum, err := session.Summary()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_submit")
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	link, err := session.Submit(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{PaymentURL: link})
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*booking.Session, bool) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return session, true
}

// mutate decodes the body into req (when non-nil), applies op and answers with the
// session's new state.
func (s *HTTPServer) mutate(w http.ResponseWriter, r *http.Request, req any, op func(*booking.Session) error) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if req != nil {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if err := op(session); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}
