package reservations

import (
	"context"
	"fmt"
	"strings"

	"edengolf/internal/golfapi"
	"edengolf/internal/metrics"
	"edengolf/internal/models"
)

const caddyAvailable = "available"

var (
	caddyIDFields     = []string{"caddy_id", "_id", "id"}
	caddyNameFields   = []string{"name", "fullName"}
	caddyStatusFields = []string{"caddyStatus", "status"}
	caddyPicFields    = []string{"profilePic", "avatar"}
	busyFields        = []string{"busySlots", "unavailable", "bookings", "slots"}
)

// CaddyResult is the outcome of one caddy roster fetch for a slot.
type CaddyResult struct {
	Key     models.SlotKey
	Caddies []models.Caddy
	Err     error
}

// Failed reports whether the roster could not be loaded.
func (r CaddyResult) Failed() bool {
	return r.Err != nil
}

// FetchCaddies loads the caddy roster for key.Date and keeps only candidates for key:
// caddies that are generally available and have no busy entry on that exact slot.
func (f *Fetcher) FetchCaddies(ctx context.Context, key models.SlotKey) CaddyResult {
	res := CaddyResult{Key: key}

	if _, err := models.ParseDate(key.Date); err != nil {
		res.Err = err
		return res
	}
	if f.caddies == nil {
		res.Err = fmt.Errorf("fetch caddies: no source configured")
		return res
	}

	body, err := f.caddies.GetAvailableCaddies(ctx, key.Date)
	if err != nil {
		res.Err = fmt.Errorf("fetch caddies: %w", err)
		f.logFailure(ctx, "caddies", key.Date, key.CourseType, res.Err)
		return res
	}

	raw, err := golfapi.Unwrap(body, golfapi.CaddyStrategies()...)
	if err != nil {
		res.Err = fmt.Errorf("decode caddies: %w", err)
		f.logFailure(ctx, "caddies", key.Date, key.CourseType, res.Err)
		return res
	}

	out := make([]models.Caddy, 0, len(raw))
	for _, r := range raw {
		c, ok := f.normalizeCaddy(r)
		if !ok {
			continue
		}
		if c.Status != caddyAvailable || c.BusyAt(key) {
			continue
		}
		out = append(out, c)
	}
	res.Caddies = out

	metrics.IncFetch("caddies", true)
	return res
}

func (f *Fetcher) normalizeCaddy(raw golfapi.Record) (models.Caddy, bool) {
	c := models.Caddy{
		ID:         firstString(raw, caddyIDFields...),
		Name:       firstString(raw, caddyNameFields...),
		ProfilePic: firstString(raw, caddyPicFields...),
		Status:     strings.ToLower(firstString(raw, caddyStatusFields...)),
	}
	if c.ID == "" {
		return c, false
	}
	if c.Name == "" {
		c.Name = strings.TrimSpace("Caddy " + stringify(raw["code"]))
	}
	if c.Status == "" {
		c.Status = caddyAvailable
	}

	for _, field := range busyFields {
		list, ok := raw[field].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			c.BusySlots = append(c.BusySlots, f.busySlot(obj))
		}
		break
	}
	return c, true
}

func (f *Fetcher) busySlot(obj map[string]any) models.SlotKey {
	date := ""
	for _, field := range []string{"date", "d"} {
		if d, ok := LocalDate(obj[field], f.loc); ok {
			date = d
			break
		}
	}
	return models.NewSlotKey(
		date,
		firstString(obj, "timeSlot", "t"),
		models.CourseType(firstString(obj, "courseType", "ct")),
	)
}
