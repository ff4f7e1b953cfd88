package slots

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"edengolf/internal/models"
)

// Window describes the tee-time operating window of one course.
type Window struct {
	Start       string `yaml:"start" validate:"required"` // "06:00"
	End         string `yaml:"end" validate:"required"`   // "12:00", inclusive
	StepMinutes int    `yaml:"step_minutes"`
}

// DefaultWindows returns the club's standard tee sheet: 18-hole rounds go out in the
// morning, 9-hole rounds in the afternoon.
func DefaultWindows() map[models.CourseType]Window {
	return map[models.CourseType]Window{
		models.CourseEighteen: {Start: "06:00", End: "12:00", StepMinutes: 15},
		models.CourseNine:     {Start: "12:15", End: "17:00", StepMinutes: 15},
	}
}

// Catalog holds the canonical ordered tee times per course.
type Catalog struct {
	slots map[models.CourseType][]string
}

// NewCatalog validates the windows and precomputes every course's slot list.
func NewCatalog(windows map[models.CourseType]Window) (*Catalog, error) {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}

	c := &Catalog{slots: make(map[models.CourseType][]string, len(windows))}
	for ct, w := range windows {
		list, err := generate(w)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", ct, err)
		}
		c.slots[ct] = list
	}
	return c, nil
}

// Slots returns the ordered tee times for a course, or nil for an unknown course.
// The result is a copy and may be modified by the caller.
func (c *Catalog) Slots(ct models.CourseType) []string {
	list, ok := c.slots[ct]
	if !ok {
		return nil
	}
	return slices.Clone(list)
}

// Contains reports whether timeSlot is a canonical tee time of the course.
func (c *Catalog) Contains(ct models.CourseType, timeSlot string) bool {
	return slices.Contains(c.slots[ct], timeSlot)
}

func generate(w Window) ([]string, error) {
	step := w.StepMinutes
	if step <= 0 {
		step = 15
	}

	start, err := parseClock(w.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if end < start {
		return nil, fmt.Errorf("window ends before it starts: %s-%s", w.Start, w.End)
	}

	var out []string
	for m := start; m <= end; m += step {
		out = append(out, formatClock(m))
	}
	return out, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %s", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %s", s)
	}

	return hour*60 + minute, nil
}

func formatClock(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
