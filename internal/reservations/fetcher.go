package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edengolf/internal/golfapi"
	"edengolf/internal/metrics"
	"edengolf/internal/models"

	"github.com/rs/zerolog"
)

// BookingSource returns the raw booking list for a date.
type BookingSource interface {
	GetBookings(ctx context.Context, date string) ([]byte, error)
}

// CaddySource returns the raw caddy roster for a date.
type CaddySource interface {
	GetAvailableCaddies(ctx context.Context, date string) ([]byte, error)
}

// Result is the outcome of one reservation fetch. A failed fetch carries Err and no
// records; callers must not read an empty failed result as "nothing is booked".
type Result struct {
	Date       string
	CourseType models.CourseType
	Records    []models.ReservationRecord
	Err        error
	FetchedAt  time.Time
}

// Failed reports whether the fetch could not produce trustworthy data.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Fetcher retrieves and normalizes backend reservation state.
type Fetcher struct {
	bookings BookingSource
	caddies  CaddySource
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewFetcher creates a fetcher. loc is the zone whose calendar days records are
// compared in; nil means time.Local.
func NewFetcher(bookings BookingSource, caddies CaddySource, loc *time.Location, logger *zerolog.Logger) *Fetcher {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fetcher{
		bookings: bookings,
		caddies:  caddies,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Location returns the zone used for calendar-date comparison.
func (f *Fetcher) Location() *time.Location {
	return f.loc
}

// Fetch loads the reservations for date. When courseType is set, records for the
// other course are dropped. Records dated on another day are dropped even if the
// backend returned them.
func (f *Fetcher) Fetch(ctx context.Context, date string, courseType models.CourseType) Result {
	res := Result{Date: date, CourseType: courseType, FetchedAt: f.now()}

	if _, err := models.ParseDate(date); err != nil {
		res.Err = err
		return res
	}

	body, err := f.bookings.GetBookings(ctx, date)
	if err != nil {
		res.Err = fmt.Errorf("fetch bookings: %w", err)
		f.logFailure(ctx, "bookings", date, courseType, res.Err)
		return res
	}

	raw, err := golfapi.Unwrap(body, golfapi.BookingStrategies()...)
	if err != nil {
		res.Err = fmt.Errorf("decode bookings: %w", err)
		f.logFailure(ctx, "bookings", date, courseType, res.Err)
		return res
	}

	records := make([]models.ReservationRecord, 0, len(raw))
	for _, r := range raw {
		rec, ok := normalizeRecord(r, f.loc)
		if !ok {
			continue
		}
		if rec.Date != date {
			continue
		}
		if courseType != "" && rec.CourseType != courseType {
			continue
		}
		records = append(records, rec)
	}
	res.Records = records

	metrics.IncFetch("bookings", true)
	f.logger.Debug().
		Str("date", date).
		Str("course_type", string(courseType)).
		Int("raw", len(raw)).
		Int("records", len(records)).
		Msg("reservations fetched")
	return res
}

func (f *Fetcher) logFailure(ctx context.Context, source, date string, courseType models.CourseType, err error) {
	// A cancelled cycle was superseded on purpose; it is not a backend failure.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		f.logger.Debug().Err(err).Str("source", source).Str("date", date).Msg("fetch cancelled")
		return
	}
	metrics.IncFetch(source, false)
	f.logger.Warn().
		Err(err).
		Str("source", source).
		Str("date", date).
		Str("course_type", string(courseType)).
		Msg("unable to load availability")
}
