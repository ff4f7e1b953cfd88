// Package timeline keeps a live board of the tee times that are taken on one day.
package timeline

import (
	"context"
	"slices"
	"sync"
	"time"

	"edengolf/internal/availability"
	"edengolf/internal/golfapi"
	"edengolf/internal/metrics"
	"edengolf/internal/models"
	"edengolf/internal/poller"
	"edengolf/internal/reservations"
	"edengolf/internal/slots"

	"github.com/rs/zerolog"
)

// Source loads the reservations of a day. An empty course type means every course.
type Source interface {
	Fetch(ctx context.Context, date string, courseType models.CourseType) reservations.Result
}

// Entry is one taken tee time.
type Entry struct {
	Start  string `json:"start"`
	Finish string `json:"finish"`
}

// Board lists the taken tee times per course for one date.
type Board struct {
	Date      string                        `json:"date"`
	Locked    map[models.CourseType][]Entry `json:"locked"`
	Stale     bool                          `json:"stale,omitempty"`
	Notice    string                        `json:"notice,omitempty"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// Watcher polls a fixed date, or today in its zone when no date is fixed. In today
// mode the board moves to the next day at local midnight.
type Watcher struct {
	source    Source
	policy    availability.LockPolicy
	loc       *time.Location
	fixedDate string
	now       func() time.Time
	poller    *poller.Poller[reservations.Result]
	logger    *zerolog.Logger

	mu    sync.RWMutex
	board Board
}

// NewWatcher creates an idle watcher.
func NewWatcher(source Source, policy availability.LockPolicy, loc *time.Location, fixedDate string, config poller.Config, logger *zerolog.Logger) *Watcher {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &Watcher{
		source:    source,
		policy:    policy,
		loc:       loc,
		fixedDate: fixedDate,
		now:       time.Now,
		logger:    logger,
	}
	w.poller = poller.New[reservations.Result]("timeline", w.fetch, w.apply, config, logger)
	return w
}

// Date returns the date being watched.
func (w *Watcher) Date() string {
	if w.fixedDate != "" {
		return w.fixedDate
	}
	return w.now().In(w.loc).Format(models.DateLayout)
}

// Start polls until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.poller.Start(ctx)
	if w.fixedDate == "" {
		go w.rollover(ctx)
	}
}

// Stop stops polling.
func (w *Watcher) Stop() {
	w.poller.Stop()
}

// Refresh reloads the board now.
func (w *Watcher) Refresh(ctx context.Context) {
	w.poller.RunOnce(ctx)
}

// Board returns a copy of the current board.
func (w *Watcher) Board() Board {
	w.mu.RLock()
	defer w.mu.RUnlock()

	b := w.board
	b.Locked = make(map[models.CourseType][]Entry, len(w.board.Locked))
	for ct, entries := range w.board.Locked {
		b.Locked[ct] = slices.Clone(entries)
	}
	return b
}

func (w *Watcher) rollover(ctx context.Context) {
	timer := time.NewTimer(untilMidnight(w.now(), w.loc))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.poller.RunOnce(ctx)
			timer.Reset(untilMidnight(w.now(), w.loc))
		}
	}
}

func (w *Watcher) fetch(ctx context.Context) (reservations.Result, error) {
	res := w.source.Fetch(ctx, w.Date(), "")
	return res, res.Err
}

func (w *Watcher) apply(res reservations.Result, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.board.Date != "" && w.board.Date != res.Date {
		w.logger.Info().Str("from", w.board.Date).Str("to", res.Date).Msg("timeline moved to a new day")
	}

	if err != nil {
		if w.board.Date != res.Date {
			w.board = Board{Date: res.Date, Locked: emptyLocked()}
		}
		w.board.Stale = true
		w.board.Notice = golfapi.Describe(err)
		return
	}

	w.board = Board{
		Date:      res.Date,
		Locked:    lockedByCourse(res.Records, w.policy),
		UpdatedAt: w.now(),
	}
	for ct, entries := range w.board.Locked {
		metrics.SetLockedSlots(string(ct), len(entries))
	}
}

func emptyLocked() map[models.CourseType][]Entry {
	out := make(map[models.CourseType][]Entry, len(models.CourseTypes))
	for _, ct := range models.CourseTypes {
		out[ct] = []Entry{}
	}
	return out
}

// lockedByCourse groups locked tee times per course, sorted and without duplicates.
func lockedByCourse(records []models.ReservationRecord, policy availability.LockPolicy) map[models.CourseType][]Entry {
	times := make(map[models.CourseType][]string)
	for _, r := range records {
		if r.TimeSlot == "" || !policy.IsLocked(r) {
			continue
		}
		times[r.CourseType] = append(times[r.CourseType], r.TimeSlot)
	}

	out := emptyLocked()
	for ct, ts := range times {
		if _, ok := out[ct]; !ok {
			continue
		}
		slices.Sort(ts)
		for _, t := range slices.Compact(ts) {
			out[ct] = append(out[ct], Entry{Start: t, Finish: slots.FinishTime(t, ct)})
		}
	}
	return out
}

func untilMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.Sub(now)
}
