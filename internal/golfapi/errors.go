package golfapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func newStatusError(code int, body []byte) *StatusError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: code, Message: strings.TrimSpace(msg)}
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Describe turns a backend error into a short notice suitable for a golfer.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return "unable to reach the booking server, check your connection"
	}

	switch {
	case se.StatusCode == http.StatusUnauthorized:
		return "not signed in or the session has expired"
	case se.StatusCode == http.StatusForbidden:
		return "you are not allowed to do this"
	case se.StatusCode == http.StatusNotFound:
		return "booking data not found"
	case se.StatusCode == http.StatusConflict:
		return "this tee time is already booked"
	case se.StatusCode == http.StatusUnprocessableEntity:
		return "the submitted data is invalid, please check it"
	case se.StatusCode >= 500:
		return "the booking server failed, please try again later"
	case se.Message != "":
		return se.Message
	}
	return "unexpected error"
}
