package golfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a thin HTTP client for the golf club backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL and optional API key.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for booking lookups. Many sessions
// poll the same date, so a short TTL collapses them into one backend call.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetBookings fetches the raw booking list for a date (YYYY-MM-DD).
func (c *Client) GetBookings(ctx context.Context, date string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/booking/today?date=%s", c.baseURL, url.QueryEscape(date))
	cacheKey := fmt.Sprintf("bookings:%s", date)

	if body, ok := c.readCache(ctx, cacheKey); ok {
		return body, nil
	}

	body, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, body)
	return body, nil
}

// GetAvailableCaddies fetches the raw caddy roster for a date.
func (c *Client) GetAvailableCaddies(ctx context.Context, date string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/caddy/available-caddies", c.baseURL)
	body := struct {
		Date *string `json:"date"`
	}{}
	if date != "" {
		body.Date = &date
	}
	return c.doPost(ctx, endpoint, body)
}

// CheckoutRequest is the booking draft handed over to the payment gateway.
type CheckoutRequest struct {
	CourseType  string   `json:"courseType"`
	Date        string   `json:"date"`
	TimeSlot    string   `json:"timeSlot"`
	Players     int      `json:"players"`
	GroupName   string   `json:"groupName"`
	Caddy       []string `json:"caddy"`
	GolfCartQty int      `json:"golfCartQty"`
	GolfBagQty  int      `json:"golfBagQty"`
	TotalPrice  int      `json:"totalPrice"`
	SuccessURL  string   `json:"successUrl,omitempty"`
	CancelURL   string   `json:"cancelUrl,omitempty"`
}

// CheckoutResponse carries the hosted payment page to redirect the golfer to.
type CheckoutResponse struct {
	PaymentURL string `json:"paymentUrl"`
	URL        string `json:"url"`
	Message    string `json:"message,omitempty"`
}

// Link returns whichever payment link the backend filled in.
func (r *CheckoutResponse) Link() string {
	if r.PaymentURL != "" {
		return r.PaymentURL
	}
	return r.URL
}

// CreateCheckout starts a checkout session for a confirmed draft.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	endpoint := fmt.Sprintf("%s/stripe/create-checkout", c.baseURL)
	body, err := c.doPost(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}

	var resp CheckoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	if resp.Link() == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no payment link in checkout response"
		}
		return nil, fmt.Errorf("create checkout: %s", msg)
	}
	return &resp, nil
}

// HealthCheck checks if the backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Client) writeCache(ctx context.Context, key string, val []byte) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	_ = c.redis.Set(ctx, key, val, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.do(req)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
