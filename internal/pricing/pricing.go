package pricing

import (
	"fmt"
	"slices"
	"time"

	"edengolf/internal/models"
)

// Fees maps a course type to a per-player green fee.
type Fees map[models.CourseType]int

// Tariff is the price list in whole baht.
type Tariff struct {
	Weekday Fees `yaml:"weekday"`
	Holiday Fees `yaml:"holiday"`
	Caddy   int  `yaml:"caddy" validate:"gte=0"`
	Cart    int  `yaml:"cart" validate:"gte=0"`
	Bag     int  `yaml:"bag" validate:"gte=0"`
	// Holidays are extra holiday-rate dates (YYYY-MM-DD) besides weekends.
	Holidays []string `yaml:"holidays"`
}

// DefaultTariff returns the course's standard price list.
func DefaultTariff() Tariff {
	return Tariff{
		Weekday: Fees{models.CourseNine: 1500, models.CourseEighteen: 2200},
		Holiday: Fees{models.CourseNine: 2500, models.CourseEighteen: 4000},
		Caddy:   400,
		Cart:    500,
		Bag:     300,
	}
}

// Order is what gets priced.
type Order struct {
	Date       string
	CourseType models.CourseType
	Players    int
	Caddies    int
	Carts      int
	Bags       int
}

// Breakdown is the priced order.
type Breakdown struct {
	Holiday  bool `json:"holiday"`
	GreenFee int  `json:"green_fee"`
	CaddyFee int  `json:"caddy_fee"`
	CartFee  int  `json:"cart_fee"`
	BagFee   int  `json:"bag_fee"`
	Total    int  `json:"total"`
}

// IsHoliday reports whether date is charged at the holiday rate.
func (t Tariff) IsHoliday(date time.Time) bool {
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	return slices.Contains(t.Holidays, date.Format(models.DateLayout))
}

// Price computes the breakdown of o.
func (t Tariff) Price(o Order) (Breakdown, error) {
	day, err := models.ParseDate(o.Date)
	if err != nil {
		return Breakdown{}, err
	}
	fees := t.Weekday
	holiday := t.IsHoliday(day)
	if holiday {
		fees = t.Holiday
	}
	perPlayer, ok := fees[o.CourseType]
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: no green fee for %q", models.ErrInvalidCourseType, o.CourseType)
	}

	b := Breakdown{
		Holiday:  holiday,
		GreenFee: perPlayer * o.Players,
		CaddyFee: t.Caddy * o.Caddies,
		CartFee:  t.Cart * o.Carts,
		BagFee:   t.Bag * o.Bags,
	}
	b.Total = b.GreenFee + b.CaddyFee + b.CartFee + b.BagFee
	return b, nil
}
