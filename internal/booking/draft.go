package booking

import (
	"errors"
	"fmt"
	"strings"

	"edengolf/internal/models"
	"edengolf/internal/pricing"
	"edengolf/internal/slots"
)

var (
	ErrSlotLocked        = errors.New("tee time is already booked")
	ErrUnknownSlot       = errors.New("tee time is not on the schedule")
	ErrIncomplete        = errors.New("booking is incomplete")
	ErrClosed            = errors.New("booking session is closed")
	ErrInvalidPlayers    = errors.New("invalid number of players")
	ErrInvalidQuantity   = errors.New("quantity must not be negative")
	ErrCaddyUnavailable  = errors.New("caddy is not available for this tee time")
	ErrCaddySelectionOff = errors.New("caddy selection is not enabled")
)

// Draft is the booking a golfer is putting together.
type Draft struct {
	Date           string            `json:"date"`
	CourseType     models.CourseType `json:"course_type"`
	TimeSlot       string            `json:"time_slot"`
	Players        int               `json:"players"`
	GroupName      string            `json:"group_name"`
	CaddySelection bool              `json:"caddy_selection"`
	Caddies        []string          `json:"caddies"`
	Carts          int               `json:"carts"`
	Bags           int               `json:"bags"`
}

// Key returns the slot the draft points at.
func (d Draft) Key() models.SlotKey {
	return models.NewSlotKey(d.Date, d.TimeSlot, d.CourseType)
}

func (d Draft) order() pricing.Order {
	return pricing.Order{
		Date:       d.Date,
		CourseType: d.CourseType,
		Players:    d.Players,
		Caddies:    len(d.Caddies),
		Carts:      d.Carts,
		Bags:       d.Bags,
	}
}

// Summary is the checked draft with its price, ready for checkout.
type Summary struct {
	Draft      Draft             `json:"draft"`
	Price      pricing.Breakdown `json:"price"`
	FinishTime string            `json:"finish_time"`
}

func (d Draft) validate() error {
	var missing []string
	if d.Date == "" {
		missing = append(missing, "date")
	}
	if d.TimeSlot == "" {
		missing = append(missing, "time slot")
	}
	if d.Players <= 0 {
		missing = append(missing, "players")
	}
	if strings.TrimSpace(d.GroupName) == "" {
		missing = append(missing, "group name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if d.CaddySelection && len(d.Caddies) != d.Players {
		return fmt.Errorf("%w: %d caddies selected for %d players", ErrIncomplete, len(d.Caddies), d.Players)
	}
	return nil
}

func summarize(d Draft, tariff pricing.Tariff) (Summary, error) {
	if err := d.validate(); err != nil {
		return Summary{}, err
	}
	price, err := tariff.Price(d.order())
	if err != nil {
		return Summary{}, err
	}
	if price.Total <= 0 {
		return Summary{}, fmt.Errorf("%w: total must be positive", ErrIncomplete)
	}
	d.Caddies = append([]string(nil), d.Caddies...)
	return Summary{Draft: d, Price: price, FinishTime: slots.FinishTime(d.TimeSlot, d.CourseType)}, nil
}
