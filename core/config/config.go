// Package config loads the settings shared by every bot built on the core.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// RunModeWebhook receives updates on an HTTPS endpoint.
	RunModeWebhook = "webhook"
	// RunModeLongpoll pulls updates with getUpdates.
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

var updateKinds = []string{UpdateCallback, UpdateMessage, UpdateInlineQuery}

// TelegramConfig holds the bot token and how updates are received.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds of 0 selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is required in webhook mode only.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig is read by logger.InitLogger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile is "debug", "dev" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// I18nConfig selects locale sources.
type I18nConfig struct {
	DefaultLanguage string `yaml:"default_language" envconfig:"I18N_DEFAULT_LANGUAGE"`
	// Dir holds extra <lang>.yaml files merged over the built-in messages.
	Dir string `yaml:"dir" envconfig:"I18N_DIR"`
}

// FlowConfig tunes the conversation runtime.
type FlowConfig struct {
	// CalendarLocation is an IANA zone used to pick the calendar's initial month.
	CalendarLocation string `yaml:"calendar_location" envconfig:"FLOW_CALENDAR_LOCATION"`

	location *time.Location
}

// Location returns the parsed calendar zone, UTC when unset.
func (f FlowConfig) Location() *time.Location {
	if f.location == nil {
		return time.UTC
	}
	return f.location
}

// RateLimitConfig spaces out updates of one user. ExcludeUpdates lists
// update kinds that are never limited.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Interval is the minimum gap between two updates; zero disables limiting.
func (r RateLimitConfig) Interval() time.Duration {
	return time.Duration(max(r.IntervalMS, 0)) * time.Millisecond
}

// Excluded returns ExcludeUpdates as a set.
func (r RateLimitConfig) Excluded() map[string]struct{} {
	set := make(map[string]struct{}, len(r.ExcludeUpdates))
	for _, kind := range r.ExcludeUpdates {
		set[kind] = struct{}{}
	}
	return set
}

// Config aggregates the sections owned by the core packages.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	I18n      I18nConfig      `yaml:"i18n"`
	Flow      FlowConfig      `yaml:"flow"`
}

// Decode fills dst from the YAML file at path, then applies environment overrides.
// Bots embedding Config decode their own struct with it.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// Load decodes and normalizes a core-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg in place and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	return errors.Join(
		cfg.Telegram.normalize(cfg.Webhook),
		cfg.RateLimit.normalize(),
		cfg.I18n.normalize(),
		cfg.Flow.normalize(),
	)
}

func (t *TelegramConfig) normalize(wh WebhookConfig) error {
	if t.Token == "" {
		return errors.New("telegram.token is required")
	}
	mode := strings.ToLower(strings.TrimSpace(t.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		if t.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
		t.RunMode = RunModeLongpoll
	case RunModeWebhook:
		var missing []string
		if strings.TrimSpace(wh.URL) == "" {
			missing = append(missing, "webhook.url")
		}
		if strings.TrimSpace(wh.Listen) == "" {
			missing = append(missing, "webhook.listen")
		}
		if wh.Port <= 0 {
			missing = append(missing, "webhook.port")
		}
		if len(missing) > 0 {
			return fmt.Errorf("webhook mode requires %s", strings.Join(missing, ", "))
		}
		t.RunMode = RunModeWebhook
	default:
		return fmt.Errorf("telegram.run_mode %q: want %s or %s", t.RunMode, RunModeLongpoll, RunModeWebhook)
	}
	return nil
}

func (r *RateLimitConfig) normalize() error {
	if r.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	kinds := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		if kind == "" {
			continue
		}
		if !slices.Contains(updateKinds, kind) {
			return fmt.Errorf("rate_limit.exclude_updates: unknown kind %q; allowed: %s", v, strings.Join(updateKinds, ", "))
		}
		kinds = append(kinds, kind)
	}
	r.ExcludeUpdates = kinds
	return nil
}

func (i *I18nConfig) normalize() error {
	i.DefaultLanguage = strings.ToLower(strings.TrimSpace(i.DefaultLanguage))
	if i.DefaultLanguage == "" {
		i.DefaultLanguage = "en"
	}
	return nil
}

func (f *FlowConfig) normalize() error {
	zone := strings.TrimSpace(f.CalendarLocation)
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Errorf("flow.calendar_location %q: %w", f.CalendarLocation, err)
	}
	f.CalendarLocation = zone
	f.location = loc
	return nil
}
