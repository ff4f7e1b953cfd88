package availability

import (
	"slices"

	"edengolf/internal/models"
	"edengolf/internal/reservations"
)

// CaddyState is the display classification of one caddy for the active slot.
type CaddyState string

const (
	CaddyAvailable  CaddyState = "available"
	CaddyHeld       CaddyState = "held"
	CaddyHeldBySelf CaddyState = "held-by-self"
)

// CaddyView is one caddy with its classification.
type CaddyView struct {
	models.Caddy
	State CaddyState `json:"state"`
}

// CaddyOutcome is the reconciled caddy list for one slot.
type CaddyOutcome struct {
	Key      models.SlotKey `json:"key"`
	Caddies  []CaddyView    `json:"caddies"`
	Selected []string       `json:"selected"`
	Dropped  []string       `json:"dropped,omitempty"`
	Stale    bool           `json:"stale,omitempty"`
	Notice   string         `json:"notice,omitempty"`
}

// Selectable returns the caddies that can still be picked.
func (o CaddyOutcome) Selectable() []CaddyView {
	var out []CaddyView
	for _, c := range o.Caddies {
		if c.State == CaddyAvailable {
			out = append(out, c)
		}
	}
	return out
}

// ReconcileCaddies classifies the candidates in res. held are the ids soft-held for
// the slot in this session; ids in selected belong to the current workflow. A held id
// that is not part of the selection was picked by another in-progress selection and
// is not offered. Selected ids that are no longer candidates are dropped.
func (r *Reconciler) ReconcileCaddies(res reservations.CaddyResult, held, selected []string) CaddyOutcome {
	out := CaddyOutcome{Key: res.Key}

	candidates := res.Caddies
	r.mu.Lock()
	if res.Failed() {
		candidates = slices.Clone(r.lastCaddies[res.Key])
		out.Stale = true
		out.Notice = NoticeCaddiesUnloaded
	} else {
		r.lastCaddies[res.Key] = slices.Clone(res.Caddies)
	}
	r.mu.Unlock()

	present := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		present[c.ID] = struct{}{}
	}

	out.Selected = make([]string, 0, len(selected))
	for _, id := range selected {
		if _, ok := present[id]; ok || out.Stale {
			out.Selected = append(out.Selected, id)
			continue
		}
		out.Dropped = append(out.Dropped, id)
	}
	if len(out.Dropped) > 0 {
		out.Notice = NoticeCaddyTaken
	}

	out.Caddies = make([]CaddyView, 0, len(candidates))
	for _, c := range candidates {
		state := CaddyAvailable
		switch {
		case slices.Contains(out.Selected, c.ID):
			state = CaddyHeldBySelf
		case slices.Contains(held, c.ID):
			state = CaddyHeld
		}
		out.Caddies = append(out.Caddies, CaddyView{Caddy: c, State: state})
	}
	return out
}
