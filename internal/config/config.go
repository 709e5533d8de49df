package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	appLog "storefront/internal/log"
)

const (
	DefaultFeedURLTemplate = "https://calendar.google.com/calendar/ical/%s/public/basic.ics"
	DefaultAPIBaseURL      = "https://www.googleapis.com/calendar/v3/"
	DefaultTimezone        = "Europe/Kyiv"
	DefaultRefresh         = "*/15 * * * *"
	DefaultListen          = "127.0.0.1:8080"
	DefaultWindowDays      = 5
	DefaultTimeout         = 10 * time.Second
	DefaultMaxAttempts     = 2
)

// StoreLocation is a named map link for a physical shop.
type StoreLocation struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Profile holds the business constants shown on the storefront page.
type Profile struct {
	ShopName        string   `yaml:"shop_name" json:"shop_name"`
	ShopDescription string   `yaml:"shop_description" json:"shop_description"`
	WorkingHours    string   `yaml:"working_hours" json:"working_hours"`
	Categories      []string `yaml:"categories" json:"categories"`

	// Bank transfer details.
	FOPName        string `yaml:"fop_name" json:"fop_name"`
	EDRPOU         string `yaml:"edrpou" json:"edrpou"`
	IBAN           string `yaml:"iban" json:"iban"`
	BankName       string `yaml:"bank_name" json:"bank_name"`
	PaymentPurpose string `yaml:"payment_purpose" json:"payment_purpose"`

	// Card payment.
	CardNumber     string `yaml:"card_number" json:"card_number"`
	CardHolderName string `yaml:"card_holder_name" json:"card_holder_name"`
	CardBankName   string `yaml:"card_bank_name" json:"card_bank_name"`

	// Contacts. TelegramPhone wins over TelegramUsername when both are set.
	TelegramUsername  string `yaml:"telegram_username" json:"telegram_username"`
	TelegramPhone     string `yaml:"telegram_phone" json:"telegram_phone"`
	ViberPhone        string `yaml:"viber_phone" json:"viber_phone"`
	TelegramShowcase  string `yaml:"telegram_showcase" json:"telegram_showcase"`
	InstagramUsername string `yaml:"instagram_username" json:"instagram_username"`
	BiggoLiveURL      string `yaml:"biggo_live_url" json:"biggo_live_url"`
	FacebookPage      string `yaml:"facebook_page" json:"facebook_page"`
	TikTokUsername    string `yaml:"tiktok_username" json:"tiktok_username"`
	YouTubeChannel    string `yaml:"youtube_channel" json:"youtube_channel"`
	WhatsAppPhone     string `yaml:"whatsapp_phone" json:"whatsapp_phone"`

	StoreLocations []StoreLocation `yaml:"store_locations" json:"store_locations"`
	PaymentOptions []string        `yaml:"payment_options" json:"payment_options"`

	DeliveryMethod string `yaml:"delivery_method" json:"delivery_method"`
	DeliveryTime   string `yaml:"delivery_time" json:"delivery_time"`
	DeliveryNote   string `yaml:"delivery_note" json:"delivery_note"`

	ExchangeDays       int      `yaml:"exchange_days" json:"exchange_days"`
	ReturnDays         int      `yaml:"return_days" json:"return_days"`
	ReturnConditions   []string `yaml:"return_conditions" json:"return_conditions"`
	ReturnMoneyTime    string   `yaml:"return_money_time" json:"return_money_time"`
	ReturnDeliveryCost string   `yaml:"return_delivery_cost" json:"return_delivery_cost"`

	AfterPaymentTemplate string `yaml:"after_payment_template" json:"after_payment_template"`
}

// CalendarConfig configures the live-stream schedule.
type CalendarConfig struct {
	// Reference is a bare calendar ID, an embed URL or a public iCal URL.
	// Empty means the shop has no live schedule.
	Reference string `yaml:"reference" json:"reference"`
	// APIKey enables the structured events API; the public feed is used
	// when it is empty or the API yields nothing.
	APIKey string `yaml:"api_key" json:"-"`

	// FeedURLTemplate has a single %s for the percent-encoded calendar ID.
	FeedURLTemplate string `yaml:"feed_url_template" json:"feed_url_template"`
	APIBaseURL      string `yaml:"api_base_url" json:"api_base_url"`

	WindowDays  int           `yaml:"window_days" json:"window_days"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`

	// ExpandRecurring replaces RRULE records with their occurrences inside
	// the window.
	ExpandRecurring bool `yaml:"expand_recurring" json:"expand_recurring"`
}

// Config is the top-level application configuration. It is built once by
// Load and treated as read-only afterwards.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Timezone string `yaml:"timezone" json:"timezone"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Refresh is a cron schedule for background calendar reloads.
	Refresh string `yaml:"refresh" json:"refresh"`

	// ConstantsFile optionally points at a "c1 - value" shorthand file that
	// fills Profile and Calendar.Reference. Relative paths resolve against
	// the config file directory.
	ConstantsFile string `yaml:"constants_file,omitempty" json:"constants_file,omitempty"`

	Profile  Profile        `yaml:"profile" json:"profile"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Refresh == "" {
		c.Refresh = DefaultRefresh
	}

	cal := &c.Calendar
	if cal.FeedURLTemplate == "" {
		cal.FeedURLTemplate = DefaultFeedURLTemplate
	}
	if cal.APIBaseURL == "" {
		cal.APIBaseURL = DefaultAPIBaseURL
	}
	if cal.WindowDays <= 0 {
		cal.WindowDays = DefaultWindowDays
	}
	if cal.Timeout <= 0 {
		cal.Timeout = DefaultTimeout
	}
	if cal.MaxAttempts <= 0 {
		cal.MaxAttempts = DefaultMaxAttempts
	}

	if c.Profile.Categories == nil {
		c.Profile.Categories = []string{}
	}
	if c.Profile.PaymentOptions == nil {
		c.Profile.PaymentOptions = []string{}
	}
	if c.Profile.ReturnConditions == nil {
		c.Profile.ReturnConditions = []string{}
	}
	if c.Profile.StoreLocations == nil {
		c.Profile.StoreLocations = []StoreLocation{}
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded, the optional constants file applied,
//     and defaults normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.ConstantsFile != "" {
		cpath := cfg.ConstantsFile
		if !filepath.IsAbs(cpath) {
			cpath = filepath.Join(filepath.Dir(path), cpath)
		}
		text, err := os.ReadFile(cpath)
		if err != nil {
			return nil, err
		}
		for _, line := range cfg.ApplyConstants(string(text)) {
			appLog.Warn("constants: unparsed line", "line", line)
		}
	}

	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".storefront-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
