package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in slot keys.
const DateLayout = "2006-01-02"

var (
	ErrInvalidCourseType = errors.New("invalid course type")
	ErrInvalidDate       = errors.New("invalid date")
)

// CourseType is the number of holes played in a round.
type CourseType string

const (
	CourseNine     CourseType = "9"
	CourseEighteen CourseType = "18"
)

// CourseTypes lists the supported course types in display order.
var CourseTypes = []CourseType{CourseNine, CourseEighteen}

// ParseCourseType accepts "9", "18" with surrounding spaces, or the numeric forms
// the backend sometimes sends.
func ParseCourseType(v any) (CourseType, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case CourseType:
		s = strings.TrimSpace(string(x))
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "", fmt.Errorf("%w: %v", ErrInvalidCourseType, v)
	}

	switch CourseType(s) {
	case CourseNine, CourseEighteen:
		return CourseType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCourseType, s)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// SlotKey identifies a bookable unit: one tee time on one date for one course.
type SlotKey struct {
	Date       string     `json:"date"`
	TimeSlot   string     `json:"time_slot"`
	CourseType CourseType `json:"course_type"`
}

// NewSlotKey builds a normalized key.
func NewSlotKey(date, timeSlot string, courseType CourseType) SlotKey {
	return SlotKey{
		Date:       strings.TrimSpace(date),
		TimeSlot:   strings.TrimSpace(timeSlot),
		CourseType: CourseType(strings.TrimSpace(string(courseType))),
	}
}

// String renders the key as date:time:course, using "none" for missing parts.
func (k SlotKey) String() string {
	return orNone(k.Date) + ":" + orNone(k.TimeSlot) + ":" + orNone(string(k.CourseType))
}

func (k SlotKey) IsZero() bool {
	return k.Date == "" && k.TimeSlot == "" && k.CourseType == ""
}

// Complete reports whether all three parts are set.
func (k SlotKey) Complete() bool {
	return k.Date != "" && k.TimeSlot != "" && k.CourseType != ""
}

// Equal compares keys after normalization.
func (k SlotKey) Equal(other SlotKey) bool {
	a := NewSlotKey(k.Date, k.TimeSlot, k.CourseType)
	b := NewSlotKey(other.Date, other.TimeSlot, other.CourseType)
	return a == b
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
