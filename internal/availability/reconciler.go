package availability

import (
	"sync"

	"edengolf/internal/models"
	"edengolf/internal/reservations"
)

const (
	NoticeUnavailable     = "unable to load availability, showing the last known tee sheet"
	NoticeSlotTaken       = "the tee time you picked was just booked by someone else, please choose another"
	NoticeCaddyTaken      = "a caddy you picked is no longer available for this tee time"
	NoticeCaddiesUnloaded = "unable to load caddies, please try again"
)

// Outcome is the reconciled tee sheet for one date and course.
type Outcome struct {
	Date       string            `json:"date"`
	CourseType models.CourseType `json:"course_type"`
	Slots      []SlotView        `json:"slots"`
	Selected   string            `json:"selected,omitempty"`
	// Cleared is set when the previous selection became locked in this pass.
	Cleared bool `json:"cleared,omitempty"`
	// Stale is set when the fetch failed and the locked set comes from memory.
	Stale  bool   `json:"stale,omitempty"`
	Notice string `json:"notice,omitempty"`
}

type sheetKey struct {
	date       string
	courseType models.CourseType
}

// Reconciler merges catalog, backend truth and session selections. It remembers the
// last good locked set per date and course so a failed fetch never unblocks a slot.
type Reconciler struct {
	policy LockPolicy

	mu          sync.Mutex
	lastLocked  map[sheetKey]LockedSet
	lastCaddies map[models.SlotKey][]models.Caddy
}

// NewReconciler creates a reconciler using policy.
func NewReconciler(policy LockPolicy) *Reconciler {
	return &Reconciler{
		policy:      policy,
		lastLocked:  make(map[sheetKey]LockedSet),
		lastCaddies: make(map[models.SlotKey][]models.Caddy),
	}
}

// Policy returns the lock policy in use.
func (r *Reconciler) Policy() LockPolicy {
	return r.policy
}

// Reconcile classifies catalog against res and re-validates selected. A selection
// that turns out locked is cleared, never replaced by another slot.
func (r *Reconciler) Reconcile(catalog []string, res reservations.Result, selected string) Outcome {
	key := sheetKey{date: res.Date, courseType: res.CourseType}
	out := Outcome{Date: res.Date, CourseType: res.CourseType, Selected: selected}

	var locked LockedSet
	r.mu.Lock()
	if res.Failed() {
		locked = r.lastLocked[key].Clone()
		out.Stale = true
		out.Notice = NoticeUnavailable
	} else {
		locked = LockedSlots(res.Records, r.policy)
		r.lastLocked[key] = locked.Clone()
	}
	r.mu.Unlock()

	if selected != "" && locked.Has(selected) {
		out.Selected = ""
		out.Cleared = true
		out.Notice = NoticeSlotTaken
	}
	out.Slots = Classify(catalog, locked, out.Selected)
	return out
}

// ForgetBefore drops remembered state for dates before date (YYYY-MM-DD) and returns
// how many entries were evicted.
func (r *Reconciler) ForgetBefore(date string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.lastLocked {
		if k.date < date {
			delete(r.lastLocked, k)
			n++
		}
	}
	for k := range r.lastCaddies {
		if k.Date < date {
			delete(r.lastCaddies, k)
			n++
		}
	}
	return n
}
