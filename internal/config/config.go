package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/currency"
)

// Config holds the full application configuration. It is constructed once at
// process start and passed by reference into every adapter and uploader;
// nothing reads environment state after Load returns.
type Config struct {
	Twilio       TwilioConfig       `yaml:"twilio" mapstructure:"twilio"`
	WhatConverts WhatConvertsConfig `yaml:"whatconverts" mapstructure:"whatconverts"`
	GoogleAds    GoogleAdsConfig    `yaml:"google_ads" mapstructure:"google_ads"`
	MicrosoftAds MicrosoftAdsConfig `yaml:"microsoft_ads" mapstructure:"microsoft_ads"`
	Upload       UploadConfig       `yaml:"upload" mapstructure:"upload"`
	Phone        PhoneConfig        `yaml:"phone" mapstructure:"phone"`
	Reconcile    ReconcileConfig    `yaml:"reconcile" mapstructure:"reconcile"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// TwilioConfig holds telephony provider credentials and the business number
// whose inbound calls are reconciled.
type TwilioConfig struct {
	AccountSID     string  `yaml:"account_sid" mapstructure:"account_sid"`
	AuthToken      string  `yaml:"auth_token" mapstructure:"auth_token"`
	BusinessNumber string  `yaml:"business_number" mapstructure:"business_number"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WhatConvertsConfig holds call-tracking provider API credentials.
type WhatConvertsConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	Secret   string `yaml:"secret" mapstructure:"secret"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// GoogleAdsConfig holds the primary ads platform credentials and the
// pre-provisioned conversion action resource name.
type GoogleAdsConfig struct {
	DeveloperToken   string  `yaml:"developer_token" mapstructure:"developer_token"`
	ClientID         string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string  `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken     string  `yaml:"refresh_token" mapstructure:"refresh_token"`
	CustomerID       string  `yaml:"customer_id" mapstructure:"customer_id"`
	LoginCustomerID  string  `yaml:"login_customer_id" mapstructure:"login_customer_id"`
	ConversionAction string  `yaml:"conversion_action" mapstructure:"conversion_action"`
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// MicrosoftAdsConfig holds the secondary ads platform credentials. Offline
// conversions there require a click identifier the pipeline does not capture
// for phone calls, so these are optional; when absent the uploader reports
// the capability gap instead of failing.
type MicrosoftAdsConfig struct {
	DeveloperToken string `yaml:"developer_token" mapstructure:"developer_token"`
	CustomerID     string `yaml:"customer_id" mapstructure:"customer_id"`
	AccountID      string `yaml:"account_id" mapstructure:"account_id"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	ConversionName string `yaml:"conversion_name" mapstructure:"conversion_name"`
}

// UploadConfig holds conversion value settings shared by both platforms.
type UploadConfig struct {
	ConversionValue float64 `yaml:"conversion_value" mapstructure:"conversion_value"`
	CurrencyCode    string  `yaml:"currency_code" mapstructure:"currency_code"`
}

// PhoneConfig holds the home-country dialing plan for number normalization.
type PhoneConfig struct {
	CountryCode   string `yaml:"country_code" mapstructure:"country_code"`
	TrunkPrefix   string `yaml:"trunk_prefix" mapstructure:"trunk_prefix"`
	NationalMin   int    `yaml:"national_min" mapstructure:"national_min"`
	NationalMax   int    `yaml:"national_max" mapstructure:"national_max"`
	MinFullLength int    `yaml:"min_full_length" mapstructure:"min_full_length"`
}

// ReconcileConfig holds matching thresholds.
type ReconcileConfig struct {
	MinCallSeconds int `yaml:"min_call_seconds" mapstructure:"min_call_seconds"`
	ExactWindowMS  int `yaml:"exact_window_ms" mapstructure:"exact_window_ms"`
	FuzzyWindowMS  int `yaml:"fuzzy_window_ms" mapstructure:"fuzzy_window_ms"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("whatconverts.base_url", "https://app.whatconverts.com/api/v1")
	v.SetDefault("whatconverts.page_size", 250)
	v.SetDefault("twilio.rate_limit", 10)
	v.SetDefault("google_ads.batch_size", 2000)
	v.SetDefault("google_ads.rate_limit", 5)
	v.SetDefault("microsoft_ads.conversion_name", "Qualified Call")
	v.SetDefault("upload.conversion_value", 50.0)
	v.SetDefault("upload.currency_code", "GBP")
	v.SetDefault("phone.country_code", "44")
	v.SetDefault("phone.trunk_prefix", "0")
	v.SetDefault("phone.national_min", 9)
	v.SetDefault("phone.national_max", 10)
	v.SetDefault("phone.min_full_length", 11)
	v.SetDefault("reconcile.min_call_seconds", 60)
	v.SetDefault("reconcile.exact_window_ms", 30_000)
	v.SetDefault("reconcile.fuzzy_window_ms", 300_000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can support a pipeline run. Missing
// adapter credentials are fatal before any fetch starts; Microsoft Ads
// credentials are deliberately not required (capability gap, reported per
// run).
func (c *Config) Validate() error {
	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		return eris.New("config: twilio account_sid and auth_token are required (CONVSYNC_TWILIO_ACCOUNT_SID / CONVSYNC_TWILIO_AUTH_TOKEN)")
	}
	if c.Twilio.BusinessNumber == "" {
		return eris.New("config: twilio business_number is required")
	}
	if c.WhatConverts.Token == "" || c.WhatConverts.Secret == "" {
		return eris.New("config: whatconverts token and secret are required")
	}
	if c.Upload.ConversionValue < 0 {
		return eris.New("config: upload conversion_value must not be negative")
	}
	if _, err := currency.ParseISO(c.Upload.CurrencyCode); err != nil {
		return eris.Wrapf(err, "config: invalid currency code %q", c.Upload.CurrencyCode)
	}
	if c.GoogleAds.BatchSize <= 0 || c.GoogleAds.BatchSize > 2000 {
		return eris.Errorf("config: google_ads batch_size %d outside 1-2000", c.GoogleAds.BatchSize)
	}
	if c.Reconcile.FuzzyWindowMS < c.Reconcile.ExactWindowMS {
		return eris.New("config: reconcile fuzzy_window_ms must not be smaller than exact_window_ms")
	}
	return nil
}

// RequireGoogleAds checks the primary platform credential set; a live run
// cannot start without it.
func (c *Config) RequireGoogleAds() error {
	g := c.GoogleAds
	if g.DeveloperToken == "" || g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" || g.CustomerID == "" {
		return eris.New("config: google_ads credentials incomplete (developer_token, client_id, client_secret, refresh_token, customer_id)")
	}
	if g.ConversionAction == "" {
		return eris.New("config: google_ads conversion_action is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
