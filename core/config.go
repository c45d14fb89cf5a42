package core

import (
	"fmt"
	"strings"
	"time"
)

type AppleConfig struct {
	APIBaseURL     string        `koanf:"api_base_url" mapstructure:"api_base_url"`
	SandboxBaseURL string        `koanf:"sandbox_base_url" mapstructure:"sandbox_base_url"`
	ConnectBaseURL string        `koanf:"connect_base_url" mapstructure:"connect_base_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type PlayConfig struct {
	APIBaseURL     string        `koanf:"api_base_url" mapstructure:"api_base_url"`
	OAuthScope     string        `koanf:"oauth_scope" mapstructure:"oauth_scope"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type DeliveryConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	ClaimLease     time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
	SecretHeader   string        `koanf:"secret_header" mapstructure:"secret_header"`
}

type CatalogConfig struct {
	Locale          string `koanf:"locale" mapstructure:"locale"`
	DefaultCurrency string `koanf:"default_currency" mapstructure:"default_currency"`
}

type EventsConfig struct {
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Apple       AppleConfig    `koanf:"apple" mapstructure:"apple"`
	Play        PlayConfig     `koanf:"play" mapstructure:"play"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
	Catalog     CatalogConfig  `koanf:"catalog" mapstructure:"catalog"`
	Events      EventsConfig   `koanf:"events" mapstructure:"events"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "iap",
		Apple: AppleConfig{
			APIBaseURL:     "https://api.storekit.itunes.apple.com",
			SandboxBaseURL: "https://api.storekit-sandbox.itunes.apple.com",
			ConnectBaseURL: "https://api.appstoreconnect.apple.com",
			RequestTimeout: 30 * time.Second,
		},
		Play: PlayConfig{
			APIBaseURL:     "https://androidpublisher.googleapis.com",
			OAuthScope:     "https://www.googleapis.com/auth/androidpublisher",
			RequestTimeout: 30 * time.Second,
		},
		Delivery: DeliveryConfig{
			BatchSize:      10,
			PollInterval:   time.Second,
			RequestTimeout: 10 * time.Second,
			MaxAttempts:    10,
			ClaimLease:     30 * time.Second,
			SecretHeader:   "X-Webhook-Secret",
		},
		Catalog: CatalogConfig{
			Locale:          "en-US",
			DefaultCurrency: "USD",
		},
		Events: EventsConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.BatchSize <= 0 {
		return fmt.Errorf("core: delivery.batch_size must be positive")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("core: delivery.max_attempts must be positive")
	}
	if c.Delivery.PollInterval <= 0 {
		return fmt.Errorf("core: delivery.poll_interval must be positive")
	}
	if c.Delivery.RequestTimeout <= 0 {
		return fmt.Errorf("core: delivery.request_timeout must be positive")
	}
	if strings.TrimSpace(c.Delivery.SecretHeader) == "" {
		return fmt.Errorf("core: delivery.secret_header is required")
	}
	if c.Events.DefaultLimit <= 0 || c.Events.MaxLimit < c.Events.DefaultLimit {
		return fmt.Errorf("core: events limits are inconsistent")
	}
	return nil
}
