package availability

import (
	"strings"

	"edengolf/internal/models"
)

// DefaultLockedStatuses are the statuses that represent a confirmed reservation.
// Pending reservations do not lock a slot.
var DefaultLockedStatuses = []string{models.StatusBooked, models.StatusConfirmed, models.StatusPaid}

// LockPolicy decides which reservation records block a slot.
type LockPolicy struct {
	statuses map[string]struct{}
	lockPaid bool
}

// NewLockPolicy builds a policy from a status vocabulary. An empty list falls back to
// DefaultLockedStatuses. When lockPaid is set, records flagged as paid lock their slot
// whatever their status.
func NewLockPolicy(statuses []string, lockPaid bool) LockPolicy {
	if len(statuses) == 0 {
		statuses = DefaultLockedStatuses
	}
	p := LockPolicy{statuses: make(map[string]struct{}, len(statuses)), lockPaid: lockPaid}
	for _, s := range statuses {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			p.statuses[s] = struct{}{}
		}
	}
	return p
}

// IsLocked reports whether r blocks its slot.
func (p LockPolicy) IsLocked(r models.ReservationRecord) bool {
	if p.lockPaid && r.Paid {
		return true
	}
	_, ok := p.statuses[strings.ToLower(strings.TrimSpace(r.Status))]
	return ok
}

// Statuses returns the configured locked statuses.
func (p LockPolicy) Statuses() []string {
	out := make([]string, 0, len(p.statuses))
	for s := range p.statuses {
		out = append(out, s)
	}
	return out
}
