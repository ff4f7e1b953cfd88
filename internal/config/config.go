package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"edengolf/internal/availability"
	"edengolf/internal/booking"
	"edengolf/internal/holds"
	"edengolf/internal/models"
	"edengolf/internal/poller"
	"edengolf/internal/pricing"
	"edengolf/internal/slots"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when EDENGOLF_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

const DefaultTimezone = "Asia/Bangkok"

var validate = validator.New()

type Config struct {
	Backend struct {
		BaseURL         string `yaml:"base_url" validate:"required,url"`
		APIKey          string `yaml:"api_key"`
		TimeoutSeconds  int    `yaml:"timeout_seconds" validate:"gte=0"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds" validate:"gte=0"`
	} `yaml:"backend"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db" validate:"gte=0"`
		HoldTTLMinutes int    `yaml:"hold_ttl_minutes" validate:"gte=0"`
	} `yaml:"redis"`

	Server struct {
		Listen                string `yaml:"listen"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes" validate:"gte=0"`
	} `yaml:"server"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port" validate:"gte=0,lte=65535"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
	} `yaml:"monitoring"`

	Schedule struct {
		Timezone string                             `yaml:"timezone"`
		Windows  map[models.CourseType]slots.Window `yaml:"windows" validate:"dive"`
	} `yaml:"schedule"`

	Availability struct {
		LockedStatuses       []string `yaml:"locked_statuses"`
		LockPaid             bool     `yaml:"lock_paid"`
		PollIntervalSeconds  int      `yaml:"poll_interval_seconds" validate:"gte=0"`
		RefreshMinGapSeconds int      `yaml:"refresh_min_gap_seconds" validate:"gte=0"`
	} `yaml:"availability"`

	Holds struct {
		Namespace string `yaml:"namespace"`
	} `yaml:"holds"`

	Pricing *pricing.Tariff `yaml:"pricing"`

	Booking struct {
		MaxPlayers int    `yaml:"max_players" validate:"gte=0,lte=8"`
		SuccessURL string `yaml:"success_url" validate:"omitempty,url"`
		CancelURL  string `yaml:"cancel_url" validate:"omitempty,url"`
	} `yaml:"booking"`

	// Timeline.Date pins the timeline to one day; empty follows today.
	Timeline struct {
		Date string `yaml:"date" validate:"omitempty,datetime=2006-01-02"`
	} `yaml:"timeline"`
}

// Load reads path (DefaultPath when empty). A .env file next to the working directory
// is loaded first so that ${VAR} placeholders in the YAML can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Catalog(); err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return &cfg, nil
}

func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Backend.CacheTTLSeconds) * time.Second
}

func (c *Config) HoldTTL() time.Duration {
	if c.Redis.HoldTTLMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Redis.HoldTTLMinutes) * time.Minute
}

func (c *Config) ListenAddr() string {
	if c.Server.Listen == "" {
		return ":8080"
	}
	return c.Server.Listen
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Server.SessionTimeoutMinutes <= 0 {
		return booking.DefaultSessionTimeout
	}
	return time.Duration(c.Server.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort == 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

// Location resolves the club's timezone, used for every calendar-date comparison.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Catalog builds the tee sheet from the configured windows, defaults when none.
func (c *Config) Catalog() (*slots.Catalog, error) {
	return slots.NewCatalog(c.Schedule.Windows)
}

func (c *Config) LockPolicy() availability.LockPolicy {
	return availability.NewLockPolicy(c.Availability.LockedStatuses, c.Availability.LockPaid)
}

func (c *Config) PollConfig() poller.Config {
	return poller.Config{
		Interval: time.Duration(c.Availability.PollIntervalSeconds) * time.Second,
		NudgeGap: time.Duration(c.Availability.RefreshMinGapSeconds) * time.Second,
	}
}

func (c *Config) HoldNamespace() string {
	if c.Holds.Namespace == "" {
		return holds.DefaultNamespace
	}
	return c.Holds.Namespace
}

// Tariff returns the configured prices; missing parts fall back to the standard list.
func (c *Config) Tariff() pricing.Tariff {
	t := pricing.DefaultTariff()
	if c.Pricing == nil {
		return t
	}
	p := c.Pricing
	if len(p.Weekday) > 0 {
		t.Weekday = p.Weekday
	}
	if len(p.Holiday) > 0 {
		t.Holiday = p.Holiday
	}
	if p.Caddy > 0 {
		t.Caddy = p.Caddy
	}
	if p.Cart > 0 {
		t.Cart = p.Cart
	}
	if p.Bag > 0 {
		t.Bag = p.Bag
	}
	t.Holidays = p.Holidays
	return t
}

func (c *Config) MaxPlayers() int {
	if c.Booking.MaxPlayers <= 0 {
		return booking.DefaultMaxPlayers
	}
	return c.Booking.MaxPlayers
}
