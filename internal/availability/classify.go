package availability

import (
	"edengolf/internal/models"
)

// State is the display classification of one tee time.
type State string

const (
	StateAvailable  State = "available"
	StateLocked     State = "locked"
	StateHeldBySelf State = "held-by-self"
)

// SlotView is one classified tee time.
type SlotView struct {
	TimeSlot string `json:"time_slot"`
	State    State  `json:"state"`
}

// LockedSet is a set of locked time slots for one date and course.
type LockedSet map[string]struct{}

// Has reports whether timeSlot is locked.
func (s LockedSet) Has(timeSlot string) bool {
	_, ok := s[timeSlot]
	return ok
}

// Clone returns an independent copy.
func (s LockedSet) Clone() LockedSet {
	out := make(LockedSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// LockedSlots collects the time slots blocked by records. Records are expected to be
// already narrowed to one date and course.
func LockedSlots(records []models.ReservationRecord, policy LockPolicy) LockedSet {
	out := make(LockedSet)
	for _, r := range records {
		if r.TimeSlot == "" || !policy.IsLocked(r) {
			continue
		}
		out[r.TimeSlot] = struct{}{}
	}
	return out
}

// Classify labels every catalog slot, preserving catalog order. A locked slot is
// reported as locked even when it is the current selection.
func Classify(catalog []string, locked LockedSet, selected string) []SlotView {
	out := make([]SlotView, 0, len(catalog))
	for _, t := range catalog {
		state := StateAvailable
		switch {
		case locked.Has(t):
			state = StateLocked
		case t == selected:
			state = StateHeldBySelf
		}
		out = append(out, SlotView{TimeSlot: t, State: state})
	}
	return out
}

// FirstAvailable returns the earliest takeable slot in schedule order.
func FirstAvailable(views []SlotView) (string, bool) {
	for _, v := range views {
		if v.State == StateAvailable {
			return v.TimeSlot, true
		}
	}
	return "", false
}
