// Package booking runs one golfer's tee-time booking: the draft, live availability,
// caddy holds and the hand-off to checkout.
package booking

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"edengolf/internal/availability"
	"edengolf/internal/events"
	"edengolf/internal/golfapi"
	"edengolf/internal/holds"
	"edengolf/internal/metrics"
	"edengolf/internal/models"
	"edengolf/internal/poller"
	"edengolf/internal/pricing"
	"edengolf/internal/reservations"
	"edengolf/internal/slots"

	"github.com/rs/zerolog"
)

const DefaultMaxPlayers = 4

// Source loads backend truth for a session.
type Source interface {
	Fetch(ctx context.Context, date string, courseType models.CourseType) reservations.Result
	FetchCaddies(ctx context.Context, key models.SlotKey) reservations.CaddyResult
}

// Checkout starts payment for a finished draft.
type Checkout interface {
	CreateCheckout(ctx context.Context, req golfapi.CheckoutRequest) (*golfapi.CheckoutResponse, error)
}

// Dependencies are shared by every session.
type Dependencies struct {
	Catalog    *slots.Catalog
	Source     Source
	Reconciler *availability.Reconciler
	Checkout   Checkout
	Tariff     pricing.Tariff
	Bus        *events.EventBus
	Poll       poller.Config
	Location   *time.Location
	MaxPlayers int
	SuccessURL string
	CancelURL  string
	Logger     *zerolog.Logger
}

// View is a point-in-time copy of a session for display.
type View struct {
	ID         string                     `json:"id"`
	Draft      Draft                      `json:"draft"`
	Sheet      availability.Outcome       `json:"sheet"`
	Caddies    *availability.CaddyOutcome `json:"caddies,omitempty"`
	Notice     string                     `json:"notice,omitempty"`
	FinishTime string                     `json:"finish_time,omitempty"`
	PaymentURL string                     `json:"payment_url,omitempty"`
}

type update struct {
	sheet   reservations.Result
	caddies *reservations.CaddyResult
}

// Session is one golfer's booking workflow. The poller keeps the tee sheet fresh for
// the draft's date and course while the session is open.
type Session struct {
	id     string
	deps   Dependencies
	ledger *holds.Ledger
	poller *poller.Poller[update]
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	draft      Draft
	sheet      availability.Outcome
	caddies    *availability.CaddyOutcome
	notice     string
	alert      string
	paymentURL string
	closed     bool
	updatedAt  time.Time
}

// NewSession opens a session for today's 18-hole sheet and starts polling it.
func NewSession(id string, deps Dependencies, ledger *holds.Ledger) *Session {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.MaxPlayers <= 0 {
		deps.MaxPlayers = DefaultMaxPlayers
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().Str("session", id).Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		deps:   deps,
		ledger: ledger,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		draft: Draft{
			Date:       time.Now().In(deps.Location).Format(models.DateLayout),
			CourseType: models.CourseEighteen,
			Players:    1,
		},
		updatedAt: time.Now(),
	}
	s.poller = poller.New[update]("session "+id, s.fetch, s.apply, deps.Poll, &s.logger)
	s.resetSheetLocked()
	s.poller.Start(ctx)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// SetDate moves the draft to another day. The chosen tee time and caddies are
// dropped together with their holds.
func (s *Session) SetDate(date string) error {
	day, err := models.ParseDate(date)
	if err != nil {
		return err
	}
	date = day.Format(models.DateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	if date == s.draft.Date {
		return nil
	}
	if err := s.dropSlotLocked(); err != nil {
		return err
	}
	s.draft.Date = date
	s.restartLocked()
	return nil
}

// SetCourseType switches between the 9 and 18 hole sheets.
func (s *Session) SetCourseType(v any) error {
	ct, err := models.ParseCourseType(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	if ct == s.draft.CourseType {
		return nil
	}
	if err := s.dropSlotLocked(); err != nil {
		return err
	}
	s.draft.CourseType = ct
	s.restartLocked()
	return nil
}

// SelectTimeSlot picks a tee time from the current sheet. Locked tee times are refused.
func (s *Session) SelectTimeSlot(timeSlot string) error {
	timeSlot = strings.TrimSpace(timeSlot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	if !s.deps.Catalog.Contains(s.draft.CourseType, timeSlot) {
		return fmt.Errorf("%w: %s for %s holes", ErrUnknownSlot, timeSlot, s.draft.CourseType)
	}
	for _, v := range s.sheet.Slots {
		if v.TimeSlot == timeSlot && v.State == availability.StateLocked {
			return fmt.Errorf("%w: %s", ErrSlotLocked, timeSlot)
		}
	}
	if timeSlot == s.draft.TimeSlot {
		return nil
	}

	s.alert = ""
	next := models.NewSlotKey(s.draft.Date, timeSlot, s.draft.CourseType)
	if err := s.ledger.Activate(s.ctx, next); err != nil {
		return err
	}
	s.draft.TimeSlot = timeSlot
	s.draft.Caddies = nil
	s.caddies = nil
	s.sheet.Selected = timeSlot
	s.sheet.Slots = availability.Classify(s.deps.Catalog.Slots(s.draft.CourseType), lockedOf(s.sheet), timeSlot)
	s.reloadLocked()
	return nil
}

// SetPlayers sets the group size. Caddies beyond the new size are released, most
// recently picked first.
func (s *Session) SetPlayers(n int) error {
	if n < 1 || n > s.deps.MaxPlayers {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidPlayers, n, s.deps.MaxPlayers)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	for len(s.draft.Caddies) > n {
		last := s.draft.Caddies[len(s.draft.Caddies)-1]
		if err := s.ledger.Release(s.ctx, s.draft.Key(), last); err != nil {
			return err
		}
		s.draft.Caddies = s.draft.Caddies[:len(s.draft.Caddies)-1]
	}
	s.draft.Players = n
	s.refreshCaddyStatesLocked()
	return nil
}

// SetGroupName names the group on the booking.
func (s *Session) SetGroupName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	s.draft.GroupName = strings.TrimSpace(name)
	return nil
}

// SetExtras sets the number of golf carts and bags.
func (s *Session) SetExtras(carts, bags int) error {
	if carts < 0 || bags < 0 {
		return fmt.Errorf("%w: carts %d, bags %d", ErrInvalidQuantity, carts, bags)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	s.draft.Carts, s.draft.Bags = carts, bags
	return nil
}

// EnableCaddySelection turns caddy picking on or off. Turning it off releases every
// caddy hold of the current tee time.
func (s *Session) EnableCaddySelection(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	if s.draft.CaddySelection == on {
		return nil
	}
	if !on && s.draft.TimeSlot != "" {
		if err := s.ledger.Clear(s.ctx, s.draft.Key()); err != nil {
			return err
		}
	}
	s.draft.CaddySelection = on
	s.draft.Caddies = nil
	s.caddies = nil
	if on {
		s.reloadLocked()
	}
	return nil
}

// ToggleCaddy picks caddyID for the current tee time, or releases it when it is
// already picked. At most one caddy per player can be held.
func (s *Session) ToggleCaddy(caddyID string) error {
	caddyID = strings.TrimSpace(caddyID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return err
	}
	if !s.draft.CaddySelection {
		return ErrCaddySelectionOff
	}
	if s.draft.TimeSlot == "" {
		return fmt.Errorf("%w: choose a tee time first", ErrIncomplete)
	}
	key := s.draft.Key()

	if idx := slices.Index(s.draft.Caddies, caddyID); idx >= 0 {
		if err := s.ledger.Release(s.ctx, key, caddyID); err != nil {
			return err
		}
		s.draft.Caddies = slices.Delete(slices.Clone(s.draft.Caddies), idx, idx+1)
		s.refreshCaddyStatesLocked()
		return nil
	}

	s.alert = ""
	if !s.offeredLocked(caddyID) {
		return fmt.Errorf("%w: %s", ErrCaddyUnavailable, caddyID)
	}
	if err := s.ledger.Acquire(s.ctx, key, caddyID, s.draft.Players); err != nil {
		return err
	}
	s.draft.Caddies = append(slices.Clone(s.draft.Caddies), caddyID)
	s.refreshCaddyStatesLocked()
	return nil
}

// Refresh runs a poll cycle now, e.g. when the golfer returns to the page.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if err := s.touchLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	// A loop cycle started meanwhile supersedes ours; run again so a result is applied
	// before returning.
	for range 3 {
		if s.poller.RunOnce(ctx) || ctx.Err() != nil {
			break
		}
	}
	return nil
}

// Touch marks the session as in use so a golfer who only watches the sheet is not
// expired.
func (s *Session) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchLocked()
}

// Nudge asks the poller for an early cycle without waiting for it. Nudges are
// throttled.
func (s *Session) Nudge() bool {
	return s.poller.Nudge()
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:         s.id,
		Draft:      s.draft,
		Sheet:      s.sheet,
		Notice:     s.noticeLocked(),
		PaymentURL: s.paymentURL,
	}
	v.Draft.Caddies = slices.Clone(s.draft.Caddies)
	v.Sheet.Slots = slices.Clone(s.sheet.Slots)
	if s.caddies != nil {
		c := *s.caddies
		c.Caddies = slices.Clone(c.Caddies)
		c.Selected = slices.Clone(c.Selected)
		v.Caddies = &c
	}
	if s.draft.TimeSlot != "" {
		v.FinishTime = slots.FinishTime(s.draft.TimeSlot, s.draft.CourseType)
	}
	return v
}

// Summary checks the draft and prices it.
func (s *Session) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(); err != nil {
		return Summary{}, err
	}
	return summarize(s.draft, s.deps.Tariff)
}

// Submit hands the checked draft to checkout and returns the payment link.
func (s *Session) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	if err := s.touchLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	for _, v := range s.sheet.Slots {
		if v.TimeSlot == s.draft.TimeSlot && v.State == availability.StateLocked {
			s.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrSlotLocked, s.draft.TimeSlot)
		}
	}
	sum, err := summarize(s.draft, s.deps.Tariff)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	resp, err := s.deps.Checkout.CreateCheckout(ctx, golfapi.CheckoutRequest{
		CourseType:  string(sum.Draft.CourseType),
		Date:        sum.Draft.Date,
		TimeSlot:    sum.Draft.TimeSlot,
		Players:     sum.Draft.Players,
		GroupName:   sum.Draft.GroupName,
		Caddy:       sum.Draft.Caddies,
		GolfCartQty: sum.Draft.Carts,
		GolfBagQty:  sum.Draft.Bags,
		TotalPrice:  sum.Price.Total,
		SuccessURL:  s.deps.SuccessURL,
		CancelURL:   s.deps.CancelURL,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("slot", sum.Draft.Key().String()).Msg("checkout failed")
		return "", fmt.Errorf("create checkout: %w", err)
	}

	s.mu.Lock()
	s.paymentURL = resp.Link()
	s.mu.Unlock()
	s.logger.Info().
		Str("slot", sum.Draft.Key().String()).
		Int("total", sum.Price.Total).
		Msg("checkout started")
	return resp.Link(), nil
}

// Close stops polling and drops the session's holds. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.poller.Stop()
	s.cancel()
	s.poller.Wait()
	return s.ledger.Deactivate(ctx)
}

// IsExpired reports whether the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.updatedAt) > timeout
}

// noticeLocked prefers an invalidation alert, which stays until the golfer picks
// again, over the notice of the last poll.
func (s *Session) noticeLocked() string {
	if s.alert != "" {
		return s.alert
	}
	return s.notice
}

func (s *Session) touchLocked() error {
	if s.closed {
		return ErrClosed
	}
	s.updatedAt = time.Now()
	return nil
}

// dropSlotLocked forgets the chosen tee time and purges its holds.
func (s *Session) dropSlotLocked() error {
	if err := s.ledger.Deactivate(s.ctx); err != nil {
		return err
	}
	s.draft.TimeSlot = ""
	s.draft.Caddies = nil
	s.caddies = nil
	return nil
}

func (s *Session) restartLocked() {
	s.notice = ""
	s.alert = ""
	s.resetSheetLocked()
	s.reloadLocked()
}

// reloadLocked starts a fresh polling loop whose first cycle runs at once, so the
// data for a new tee time is not held back by the nudge throttle. The cycle blocks
// on s.mu until the caller is done.
func (s *Session) reloadLocked() {
	s.poller.Start(s.ctx)
}

func (s *Session) resetSheetLocked() {
	s.sheet = availability.Outcome{
		Date:       s.draft.Date,
		CourseType: s.draft.CourseType,
		Slots:      availability.Classify(s.deps.Catalog.Slots(s.draft.CourseType), nil, ""),
	}
}

func (s *Session) offeredLocked(caddyID string) bool {
	if s.caddies == nil {
		return false
	}
	for _, c := range s.caddies.Caddies {
		if c.ID == caddyID {
			return c.State == availability.CaddyAvailable
		}
	}
	return false
}

// refreshCaddyStatesLocked re-labels the last caddy roster after a local change.
func (s *Session) refreshCaddyStatesLocked() {
	if s.caddies == nil {
		return
	}
	held := s.ledger.Read(s.ctx, s.draft.Key())
	for i, c := range s.caddies.Caddies {
		state := availability.CaddyAvailable
		switch {
		case slices.Contains(s.draft.Caddies, c.ID):
			state = availability.CaddyHeldBySelf
		case slices.Contains(held, c.ID):
			state = availability.CaddyHeld
		}
		s.caddies.Caddies[i].State = state
	}
	s.caddies.Selected = slices.Clone(s.draft.Caddies)
}

func (s *Session) fetch(ctx context.Context) (update, error) {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()

	u := update{sheet: s.deps.Source.Fetch(ctx, draft.Date, draft.CourseType)}
	if draft.CaddySelection && draft.TimeSlot != "" && !u.sheet.Failed() {
		cr := s.deps.Source.FetchCaddies(ctx, draft.Key())
		u.caddies = &cr
	}
	return u, u.sheet.Err
}

func (s *Session) apply(u update, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || u.sheet.Date != s.draft.Date || u.sheet.CourseType != s.draft.CourseType {
		return
	}

	key := s.draft.Key()
	out := s.deps.Reconciler.Reconcile(s.deps.Catalog.Slots(s.draft.CourseType), u.sheet, s.draft.TimeSlot)
	s.sheet = out
	s.notice = out.Notice

	if out.Stale {
		s.deps.Bus.Publish(events.Event{Type: events.AvailabilityStale, SessionID: s.id, Key: key, Notice: out.Notice})
	}
	if out.Cleared {
		if err := s.dropSlotLocked(); err != nil {
			s.logger.Warn().Err(err).Str("slot", key.String()).Msg("unable to clear holds of invalidated tee time")
		}
		s.alert = out.Notice
		metrics.IncSelectionInvalidated("time_slot")
		s.logger.Info().Str("slot", key.String()).Msg("selected tee time was booked elsewhere, selection cleared")
		s.deps.Bus.Publish(events.Event{Type: events.SelectionInvalidated, SessionID: s.id, Key: key, Notice: out.Notice})
		return
	}

	if u.caddies == nil || !s.draft.CaddySelection || !u.caddies.Key.Equal(key) {
		return
	}
	co := s.deps.Reconciler.ReconcileCaddies(*u.caddies, s.ledger.Read(s.ctx, key), s.draft.Caddies)
	for _, id := range co.Dropped {
		if err := s.ledger.Release(s.ctx, key, id); err != nil {
			s.logger.Warn().Err(err).Str("caddy", id).Msg("unable to release dropped caddy")
		}
	}
	s.draft.Caddies = co.Selected
	s.caddies = &co
	if co.Stale {
		s.notice = co.Notice
	}
	if len(co.Dropped) > 0 {
		s.alert = co.Notice
		metrics.IncSelectionInvalidated("caddy")
		s.logger.Info().Str("slot", key.String()).Strs("caddies", co.Dropped).Msg("selected caddies no longer available")
		s.deps.Bus.Publish(events.Event{Type: events.CaddyDropped, SessionID: s.id, Key: key, IDs: co.Dropped, Notice: co.Notice})
	}
}

func lockedOf(o availability.Outcome) availability.LockedSet {
	set := make(availability.LockedSet)
	for _, v := range o.Slots {
		if v.State == availability.StateLocked {
			set[v.TimeSlot] = struct{}{}
		}
	}
	return set
}
