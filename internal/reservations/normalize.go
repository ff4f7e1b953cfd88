package reservations

import (
	"strconv"
	"strings"
	"time"

	"edengolf/internal/golfapi"
	"edengolf/internal/models"
)

var (
	dateFields     = []string{"date", "bookingDate", "booking_date", "date_thai"}
	timeSlotFields = []string{"timeSlot", "time_slot", "time"}
	courseFields   = []string{"courseType", "course_type", "holes"}
	statusFields   = []string{"status", "bookingStatus"}
)

// Layouts without a zone are read as wall-clock time in the viewer's location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// LocalDate extracts the calendar date of v as seen in loc. Plain YYYY-MM-DD strings
// are taken as-is; instants are converted to loc before the date is read, so a late
// evening UTC timestamp keeps the viewer's own day. Numbers are JavaScript epoch
// milliseconds.
func LocalDate(v any, loc *time.Location) (string, bool) {
	if loc == nil {
		loc = time.Local
	}

	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", false
		}
		if d, err := time.Parse(models.DateLayout, s); err == nil {
			return d.Format(models.DateLayout), true
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(loc).Format(models.DateLayout), true
			}
		}
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.Format(models.DateLayout), true
			}
		}
	case float64:
		return time.UnixMilli(int64(x)).In(loc).Format(models.DateLayout), true
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.In(loc).Format(models.DateLayout), true
	}
	return "", false
}

// normalizeRecord maps a raw booking object onto a ReservationRecord. Records without
// a readable date or time slot are rejected.
func normalizeRecord(raw golfapi.Record, loc *time.Location) (models.ReservationRecord, bool) {
	var rec models.ReservationRecord

	for _, f := range dateFields {
		if d, ok := LocalDate(raw[f], loc); ok {
			rec.Date = d
			break
		}
	}
	if rec.Date == "" {
		return rec, false
	}

	rec.TimeSlot = firstString(raw, timeSlotFields...)
	if rec.TimeSlot == "" {
		return rec, false
	}

	rec.CourseType = models.CourseType(firstString(raw, courseFields...))
	rec.Status = strings.ToLower(firstString(raw, statusFields...))
	rec.Paid = truthy(raw["isPaid"])
	return rec, true
}

// firstString returns the first field that stringifies to a non-empty value.
func firstString(raw golfapi.Record, fields ...string) string {
	for _, f := range fields {
		if s := stringify(raw[f]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	case float64:
		return x != 0
	}
	return false
}
