package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edengolf/internal/availability"
	"edengolf/internal/events"
	"edengolf/internal/golfapi"
	"edengolf/internal/holds"
	"edengolf/internal/models"
	"edengolf/internal/poller"
	"edengolf/internal/pricing"
	"edengolf/internal/reservations"
	"edengolf/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDate = "2025-01-10"

type fakeSource struct {
	mu       sync.Mutex
	records  []models.ReservationRecord
	err      error
	caddies  []models.Caddy
	caddyErr error
}

func (f *fakeSource) Fetch(_ context.Context, date string, ct models.CourseType) reservations.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := reservations.Result{Date: date, CourseType: ct, Err: f.err}
	if f.err != nil {
		return res
	}
	for _, r := range f.records {
		if r.Date == date && r.CourseType == ct {
			res.Records = append(res.Records, r)
		}
	}
	return res
}

func (f *fakeSource) FetchCaddies(_ context.Context, key models.SlotKey) reservations.CaddyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return reservations.CaddyResult{Key: key, Caddies: append([]models.Caddy(nil), f.caddies...), Err: f.caddyErr}
}

func (f *fakeSource) book(timeSlot, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, models.ReservationRecord{
		Date: testDate, TimeSlot: timeSlot, CourseType: models.CourseEighteen, Status: status,
	})
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) setCaddies(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caddies = nil
	for _, id := range ids {
		f.caddies = append(f.caddies, models.Caddy{ID: id, Name: "Caddy " + id, Status: "available"})
	}
}

type checkoutMock struct {
	mock.Mock
}

func (m *checkoutMock) CreateCheckout(ctx context.Context, req golfapi.CheckoutRequest) (*golfapi.CheckoutResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*golfapi.CheckoutResponse)
	return resp, args.Error(1)
}

type recordedEvents struct {
	mu   sync.Mutex
	list []events.Event
}

func (r *recordedEvents) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, e)
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.list {
		out = append(out, e.Type)
	}
	return out
}

func testDeps(t *testing.T, src *fakeSource, checkout Checkout) (Dependencies, *recordedEvents) {
	t.Helper()
	catalog, err := slots.NewCatalog(nil)
	require.NoError(t, err)

	bus := events.NewEventBus()
	rec := &recordedEvents{}
	for _, topic := range []string{events.SelectionInvalidated, events.CaddyDropped, events.AvailabilityStale} {
		bus.Subscribe(topic, rec.handle)
	}

	return Dependencies{
		Catalog:    catalog,
		Source:     src,
		Reconciler: availability.NewReconciler(availability.NewLockPolicy(nil, false)),
		Checkout:   checkout,
		Tariff:     pricing.DefaultTariff(),
		Bus:        bus,
		Poll:       poller.Config{Interval: time.Hour, NudgeGap: time.Hour},
		Location:   time.UTC,
		MaxPlayers: 4,
		SuccessURL: "https://golf.example/success",
		CancelURL:  "https://golf.example/booking?canceled=1",
	}, rec
}

func newTestSession(t *testing.T, src *fakeSource, checkout Checkout) (*Session, *recordedEvents) {
	t.Helper()
	deps, rec := testDeps(t, src, checkout)
	s := NewSession("s1", deps, holds.NewLedger(holds.NewMemoryStore(), holds.DefaultNamespace, nil))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NoError(t, s.SetDate(testDate))
	require.NoError(t, s.Refresh(context.Background()))
	return s, rec
}

func slotState(t *testing.T, v View, timeSlot string) availability.State {
	t.Helper()
	for _, s := range v.Sheet.Slots {
		if s.TimeSlot == timeSlot {
			return s.State
		}
	}
	t.Fatalf("slot %s missing", timeSlot)
	return ""
}

func TestSession_Defaults(t *testing.T) {
	deps, _ := testDeps(t, &fakeSource{}, nil)
	s := NewSession("s1", deps, holds.NewLedger(holds.NewMemoryStore(), "", nil))
	defer s.Close(context.Background())

	v := s.Snapshot()
	assert.Equal(t, "s1", v.ID)
	assert.Equal(t, time.Now().UTC().Format(models.DateLayout), v.Draft.Date)
	assert.Equal(t, models.CourseEighteen, v.Draft.CourseType)
	assert.Equal(t, 1, v.Draft.Players)
	assert.Len(t, v.Sheet.Slots, 25)
}

func TestSession_LockedSlotsAndSelection(t *testing.T) {
	src := &fakeSource{}
	src.book("06:00", "booked")
	src.book("06:15", "pending")
	s, _ := newTestSession(t, src, nil)

	v := s.Snapshot()
	assert.Equal(t, availability.StateLocked, slotState(t, v, "06:00"))
	assert.Equal(t, availability.StateAvailable, slotState(t, v, "06:15"))

	assert.ErrorIs(t, s.SelectTimeSlot("06:00"), ErrSlotLocked)
	assert.ErrorIs(t, s.SelectTimeSlot("06:05"), ErrUnknownSlot)
	assert.ErrorIs(t, s.SelectTimeSlot("12:15"), ErrUnknownSlot)

	require.NoError(t, s.SelectTimeSlot("06:15"))
	v = s.Snapshot()
	assert.Equal(t, "06:15", v.Draft.TimeSlot)
	assert.Equal(t, availability.StateHeldBySelf, slotState(t, v, "06:15"))
	assert.Equal(t, "10:45", v.FinishTime)
}

func TestSession_SelectionInvalidatedByPoll(t *testing.T) {
	src := &fakeSource{}
	s, rec := newTestSession(t, src, nil)

	require.NoError(t, s.SelectTimeSlot("06:00"))
	src.book("06:00", "booked")
	require.NoError(t, s.Refresh(context.Background()))

	v := s.Snapshot()
	assert.Empty(t, v.Draft.TimeSlot)
	assert.Equal(t, availability.NoticeSlotTaken, v.Notice)
	assert.Equal(t, availability.StateLocked, slotState(t, v, "06:00"))
	assert.Contains(t, rec.types(), events.SelectionInvalidated)
}

func TestSession_FailedRefreshKeepsLocks(t *testing.T) {
	src := &fakeSource{}
	src.book("06:30", "paid")
	s, rec := newTestSession(t, src, nil)

	src.setErr(errors.New("network down"))
	require.NoError(t, s.Refresh(context.Background()))

	v := s.Snapshot()
	assert.True(t, v.Sheet.Stale)
	assert.Equal(t, availability.NoticeUnavailable, v.Notice)
	assert.Equal(t, availability.StateLocked, slotState(t, v, "06:30"))
	assert.Contains(t, rec.types(), events.AvailabilityStale)
}

func TestSession_CaddyHolds(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1", "c2", "c3")
	s, _ := newTestSession(t, src, nil)

	assert.ErrorIs(t, s.ToggleCaddy("c1"), ErrCaddySelectionOff)
	require.NoError(t, s.EnableCaddySelection(true))
	assert.ErrorIs(t, s.ToggleCaddy("c1"), ErrIncomplete)

	require.NoError(t, s.SetPlayers(2))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.Refresh(context.Background()))

	v := s.Snapshot()
	require.NotNil(t, v.Caddies)
	assert.Len(t, v.Caddies.Caddies, 3)

	require.NoError(t, s.ToggleCaddy("c1"))
	require.NoError(t, s.ToggleCaddy("c2"))
	assert.ErrorIs(t, s.ToggleCaddy("c3"), holds.ErrCapacityExceeded)
	assert.ErrorIs(t, s.ToggleCaddy("ghost"), ErrCaddyUnavailable)

	key := models.NewSlotKey(testDate, "07:00", models.CourseEighteen)
	assert.Equal(t, []string{"c1", "c2"}, s.ledger.Read(context.Background(), key))

	require.NoError(t, s.ToggleCaddy("c1"))
	assert.Equal(t, []string{"c2"}, s.Snapshot().Draft.Caddies)
	assert.Equal(t, []string{"c2"}, s.ledger.Read(context.Background(), key))

	require.NoError(t, s.ToggleCaddy("c3"))
	require.NoError(t, s.SetPlayers(1))
	assert.Equal(t, []string{"c2"}, s.Snapshot().Draft.Caddies)
	assert.Equal(t, []string{"c2"}, s.ledger.Read(context.Background(), key))

	require.NoError(t, s.EnableCaddySelection(false))
	assert.Empty(t, s.ledger.Read(context.Background(), key))
	assert.Empty(t, s.Snapshot().Draft.Caddies)
}

func TestSession_CaddyDroppedByPoll(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1", "c2")
	s, rec := newTestSession(t, src, nil)

	require.NoError(t, s.SetPlayers(2))
	require.NoError(t, s.EnableCaddySelection(true))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.ToggleCaddy("c1"))
	require.NoError(t, s.ToggleCaddy("c2"))

	src.setCaddies("c2")
	require.NoError(t, s.Refresh(context.Background()))

	v := s.Snapshot()
	assert.Equal(t, []string{"c2"}, v.Draft.Caddies)
	assert.Equal(t, availability.NoticeCaddyTaken, v.Notice)
	assert.Contains(t, rec.types(), events.CaddyDropped)

	key := models.NewSlotKey(testDate, "07:00", models.CourseEighteen)
	assert.Equal(t, []string{"c2"}, s.ledger.Read(context.Background(), key))
}

func TestSession_DateChangeClearsHolds(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1")
	s, _ := newTestSession(t, src, nil)

	require.NoError(t, s.EnableCaddySelection(true))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.ToggleCaddy("c1"))

	key := models.NewSlotKey(testDate, "07:00", models.CourseEighteen)
	require.NotEmpty(t, s.ledger.Read(context.Background(), key))

	require.NoError(t, s.SetDate("2025-01-11"))
	assert.Empty(t, s.ledger.Read(context.Background(), key))

	v := s.Snapshot()
	assert.Equal(t, "2025-01-11", v.Draft.Date)
	assert.Empty(t, v.Draft.TimeSlot)
	assert.Empty(t, v.Draft.Caddies)

	assert.ErrorIs(t, s.SetDate("11/01/2025"), models.ErrInvalidDate)
}

func TestSession_CourseChange(t *testing.T) {
	s, _ := newTestSession(t, &fakeSource{}, nil)
	require.NoError(t, s.SelectTimeSlot("06:00"))

	require.NoError(t, s.SetCourseType(9))
	v := s.Snapshot()
	assert.Equal(t, models.CourseNine, v.Draft.CourseType)
	assert.Empty(t, v.Draft.TimeSlot)
	assert.Len(t, v.Sheet.Slots, 20)

	assert.ErrorIs(t, s.SetCourseType("27"), models.ErrInvalidCourseType)
}

func TestSession_Validation(t *testing.T) {
	s, _ := newTestSession(t, &fakeSource{}, nil)

	assert.ErrorIs(t, s.SetPlayers(0), ErrInvalidPlayers)
	assert.ErrorIs(t, s.SetPlayers(5), ErrInvalidPlayers)
	assert.ErrorIs(t, s.SetExtras(-1, 0), ErrInvalidQuantity)

	_, err := s.Summary()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.SelectTimeSlot("06:00"))
	_, err = s.Summary()
	assert.ErrorContains(t, err, "group name")

	require.NoError(t, s.SetGroupName("  Sunrise Four "))
	require.NoError(t, s.EnableCaddySelection(true))
	_, err = s.Summary()
	assert.ErrorContains(t, err, "0 caddies selected for 1 players")
}

func TestSession_SubmitHandsOffToCheckout(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1", "c2")
	checkout := &checkoutMock{}
	s, _ := newTestSession(t, src, checkout)

	require.NoError(t, s.SetPlayers(2))
	require.NoError(t, s.EnableCaddySelection(true))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.ToggleCaddy("c1"))
	require.NoError(t, s.ToggleCaddy("c2"))
	require.NoError(t, s.SetGroupName("Sunrise"))
	require.NoError(t, s.SetExtras(1, 0))

	sum, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, pricing.Breakdown{GreenFee: 4400, CaddyFee: 800, CartFee: 500, Total: 5700}, sum.Price)
	assert.Equal(t, "11:30", sum.FinishTime)

	want := golfapi.CheckoutRequest{
		CourseType:  "18",
		Date:        testDate,
		TimeSlot:    "07:00",
		Players:     2,
		GroupName:   "Sunrise",
		Caddy:       []string{"c1", "c2"},
		GolfCartQty: 1,
		TotalPrice:  5700,
		SuccessURL:  "https://golf.example/success",
		CancelURL:   "https://golf.example/booking?canceled=1",
	}
	checkout.On("CreateCheckout", mock.Anything, want).
		Return(&golfapi.CheckoutResponse{URL: "https://pay.example/cs_1"}, nil).Once()

	link, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", link)
	assert.Equal(t, link, s.Snapshot().PaymentURL)
	checkout.AssertExpectations(t)
}

func TestSession_SubmitFailures(t *testing.T) {
	src := &fakeSource{}
	checkout := &checkoutMock{}
	s, _ := newTestSession(t, src, checkout)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.SelectTimeSlot("06:00"))
	require.NoError(t, s.SetGroupName("Solo"))

	backendErr := &golfapi.StatusError{StatusCode: 409, Message: "slot already booked"}
	checkout.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, backendErr).Once()
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, backendErr)
	checkout.AssertExpectations(t)
}

func TestSession_Close(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1")
	s, _ := newTestSession(t, src, nil)

	require.NoError(t, s.EnableCaddySelection(true))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.ToggleCaddy("c1"))

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	key := models.NewSlotKey(testDate, "07:00", models.CourseEighteen)
	assert.Empty(t, s.ledger.Read(context.Background(), key))
	assert.ErrorIs(t, s.SetGroupName("late"), ErrClosed)
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrClosed)
	assert.False(t, s.poller.Running())
}

func TestSession_SlotSwitchLoadsCaddiesWhileNudgeThrottled(t *testing.T) {
	src := &fakeSource{}
	src.setCaddies("c1", "c2")
	deps, _ := testDeps(t, src, nil)
	deps.Poll = poller.Config{Interval: time.Hour, NudgeGap: 2 * time.Second}
	s := NewSession("s1", deps, holds.NewLedger(holds.NewMemoryStore(), holds.DefaultNamespace, nil))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	caddiesFor := func(timeSlot string) func() bool {
		return func() bool {
			v := s.Snapshot()
			return v.Caddies != nil && v.Caddies.Key.TimeSlot == timeSlot
		}
	}

	require.NoError(t, s.SetDate(testDate))
	require.NoError(t, s.SelectTimeSlot("07:00"))
	require.NoError(t, s.EnableCaddySelection(true))
	require.Eventually(t, caddiesFor("07:00"), time.Second, 5*time.Millisecond)

	s.Nudge()
	assert.False(t, s.Nudge())

	require.NoError(t, s.SelectTimeSlot("07:15"))
	require.Eventually(t, caddiesFor("07:15"), time.Second, 5*time.Millisecond)
	require.NoError(t, s.ToggleCaddy("c1"))
	assert.Equal(t, []string{"c1"}, s.Snapshot().Draft.Caddies)
}

func TestSession_TouchKeepsSessionAlive(t *testing.T) {
	s, _ := newTestSession(t, &fakeSource{}, nil)

	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.IsExpired(30*time.Millisecond))

	require.NoError(t, s.Touch())
	assert.False(t, s.IsExpired(30*time.Millisecond))

	require.NoError(t, s.Close(context.Background()))
	assert.ErrorIs(t, s.Touch(), ErrClosed)
}
