package models

// Reservation statuses reported by the backend. The set is open; these are the
// ones the service knows about.
const (
	StatusBooked    = "booked"
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// ReservationRecord is one booking confirmed by the backend, normalized.
type ReservationRecord struct {
	Date       string     `json:"date"` // YYYY-MM-DD, local calendar date
	TimeSlot   string     `json:"time_slot"`
	CourseType CourseType `json:"course_type"`
	Status     string     `json:"status"` // lower-cased, trimmed
	Paid       bool       `json:"paid"`
}

// Key returns the slot the record occupies.
func (r ReservationRecord) Key() SlotKey {
	return NewSlotKey(r.Date, r.TimeSlot, r.CourseType)
}

// Caddy is a bookable staff resource as returned by the backend, normalized.
type Caddy struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ProfilePic string    `json:"profile_pic,omitempty"`
	Status     string    `json:"status"`
	BusySlots  []SlotKey `json:"busy_slots,omitempty"`
}

// BusyAt reports whether the caddy already works the given slot.
func (c Caddy) BusyAt(key SlotKey) bool {
	for _, s := range c.BusySlots {
		if s.Equal(key) {
			return true
		}
	}
	return false
}
