package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"edengolf/internal/availability"
	"edengolf/internal/booking"
	"edengolf/internal/golfapi"
	"edengolf/internal/models"
	"edengolf/internal/poller"
	"edengolf/internal/pricing"
	"edengolf/internal/reservations"
	"edengolf/internal/slots"
	"edengolf/internal/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type fakeBackend struct {
	mu          sync.Mutex
	records     []models.ReservationRecord
	caddies     []models.Caddy
	checkoutErr error
	checkouts   []golfapi.CheckoutRequest
}

func (f *fakeBackend) Fetch(_ context.Context, date string, ct models.CourseType) reservations.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := reservations.Result{Date: date, CourseType: ct}
	for _, r := range f.records {
		if r.Date == date && (ct == "" || r.CourseType == ct) {
			res.Records = append(res.Records, r)
		}
	}
	return res
}

func (f *fakeBackend) FetchCaddies(_ context.Context, key models.SlotKey) reservations.CaddyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return reservations.CaddyResult{Key: key, Caddies: append([]models.Caddy(nil), f.caddies...)}
}

func (f *fakeBackend) CreateCheckout(_ context.Context, req golfapi.CheckoutRequest) (*golfapi.CheckoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkouts = append(f.checkouts, req)
	return &golfapi.CheckoutResponse{PaymentURL: "https://pay.example/cs_test"}, nil
}

type testServer struct {
	*httptest.Server
	backend *fakeBackend
	store   *booking.SessionStore
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := slots.NewCatalog(nil)
	require.NoError(t, err)

	backend := &fakeBackend{
		records: []models.ReservationRecord{
			{Date: "2025-01-10", TimeSlot: "06:00", CourseType: models.CourseEighteen, Status: "booked"},
		},
		caddies: []models.Caddy{
			{ID: "c1", Name: "Caddy 1", Status: "available"},
			{ID: "c2", Name: "Caddy 2", Status: "available"},
		},
	}
	policy := availability.NewLockPolicy(nil, false)
	deps := booking.Dependencies{
		Catalog:    catalog,
		Source:     backend,
		Reconciler: availability.NewReconciler(policy),
		Checkout:   backend,
		Tariff:     pricing.DefaultTariff(),
		Poll:       poller.Config{Interval: time.Hour, NudgeGap: time.Hour},
		Location:   time.UTC,
		MaxPlayers: 4,
	}
	store := booking.NewSessionStore(deps, nil, "", time.Hour)
	t.Cleanup(func() { store.CloseAll(context.Background()) })

	tl := timeline.NewWatcher(backend, availability.NewLockPolicy(nil, true), time.UTC, "2025-01-10", poller.Config{Interval: time.Hour}, nil)
	tl.Refresh(context.Background())

	srv := NewHTTPServer(":0", store, tl, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, backend: backend, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) newSession(t *testing.T) string {
	t.Helper()
	var view booking.View
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/sessions", nil, &view))
	require.NotEmpty(t, view.ID)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/sessions/"+view.ID+"/date", map[string]string{"date": "2025-01-10"}, &view))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/sessions/"+view.ID+"/refresh", nil, &view))
	return view.ID
}

func TestHealthAndTimeline(t *testing.T) {
	srv := setupTestServer(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var board timeline.Board
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/timeline", nil, &board))
	assert.Equal(t, "2025-01-10", board.Date)
	assert.Equal(t, []timeline.Entry{{Start: "06:00", Finish: "10:30"}}, board.Locked[models.CourseEighteen])
}

func TestSessionFlow(t *testing.T) {
	srv := setupTestServer(t)
	id := srv.newSession(t)
	base := "/api/sessions/" + id

	var view booking.View
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base, nil, &view))
	require.NotEmpty(t, view.Sheet.Slots)
	assert.Equal(t, availability.StateLocked, view.Sheet.Slots[0].State)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPut, base+"/time", map[string]string{"time_slot": "06:00"}, &errResp))
	assert.Contains(t, errResp.Error, "already booked")

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/time", map[string]string{"time_slot": "07:00"}, &view))
	assert.Equal(t, "07:00", view.Draft.TimeSlot)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/course", map[string]any{"course_type": 18}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/players", map[string]int{"players": 2}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/group", map[string]string{"group_name": "Dawn Patrol"}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/extras", map[string]int{"carts": 1, "bags": 2}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/caddy-selection", map[string]bool{"enabled": true}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, base+"/refresh", nil, &view))
	require.NotNil(t, view.Caddies)

	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodGet, base+"/summary", nil, &errResp))

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, base+"/caddies/c1", nil, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, base+"/caddies/c2", nil, &view))
	assert.Equal(t, []string{"c1", "c2"}, view.Draft.Caddies)

	var sum booking.Summary
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base+"/summary", nil, &sum))
	assert.Equal(t, 4400+800+500+600, sum.Price.Total)

	var submitted SubmitResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, base+"/submit", nil, &submitted))
	assert.Equal(t, "https://pay.example/cs_test", submitted.PaymentURL)
	require.Len(t, srv.backend.checkouts, 1)
	assert.Equal(t, "Dawn Patrol", srv.backend.checkouts[0].GroupName)

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, base, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, base, nil, &errResp))
}

func TestSessionErrors(t *testing.T) {
	srv := setupTestServer(t)
	id := srv.newSession(t)
	base := "/api/sessions/" + id

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound},
		{"bad date", http.MethodPut, base + "/date", map[string]string{"date": "10-01-2025"}, http.StatusBadRequest},
		{"bad course", http.MethodPut, base + "/course", map[string]string{"course_type": "27"}, http.StatusBadRequest},
		{"off-schedule time", http.MethodPut, base + "/time", map[string]string{"time_slot": "06:05"}, http.StatusBadRequest},
		{"too many players", http.MethodPut, base + "/players", map[string]int{"players": 9}, http.StatusBadRequest},
		{"negative extras", http.MethodPut, base + "/extras", map[string]int{"carts": -1}, http.StatusBadRequest},
		{"unknown field", http.MethodPut, base + "/group", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"caddy without selection", http.MethodPost, base + "/caddies/c1", nil, http.StatusUnprocessableEntity},
		{"incomplete submit", http.MethodPost, base + "/submit", nil, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			status := srv.do(t, tt.method, tt.path, tt.body, &errResp)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestSubmitBackendFailure(t *testing.T) {
	srv := setupTestServer(t)
	id := srv.newSession(t)
	base := "/api/sessions/" + id

	var view booking.View
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/time", map[string]string{"time_slot": "07:15"}, &view))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, base+"/group", map[string]string{"group_name": "Solo"}, &view))

	srv.backend.mu.Lock()
	srv.backend.checkoutErr = &golfapi.StatusError{StatusCode: http.StatusInternalServerError}
	srv.backend.mu.Unlock()

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadGateway, srv.do(t, http.MethodPost, base+"/submit", nil, &errResp))
	assert.Equal(t, "the booking server failed, please try again later", errResp.Error)

	srv.backend.mu.Lock()
	srv.backend.checkoutErr = &golfapi.StatusError{StatusCode: http.StatusConflict, Message: "taken"}
	srv.backend.mu.Unlock()
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, base+"/submit", nil, &errResp))
	assert.Equal(t, "this tee time is already booked", errResp.Error)
}
