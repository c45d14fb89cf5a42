package core

import (
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = " " }},
		{"zero batch size", func(c *Config) { c.Delivery.BatchSize = 0 }},
		{"negative max attempts", func(c *Config) { c.Delivery.MaxAttempts = -1 }},
		{"zero poll interval", func(c *Config) { c.Delivery.PollInterval = 0 }},
		{"zero request timeout", func(c *Config) { c.Delivery.RequestTimeout = 0 }},
		{"blank secret header", func(c *Config) { c.Delivery.SecretHeader = "" }},
		{"zero default limit", func(c *Config) { c.Events.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Events.DefaultLimit = 50; c.Events.MaxLimit = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestDefaultConfig_DeliveryKnobs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Delivery.BatchSize != 10 {
		t.Fatalf("unexpected batch size %d", cfg.Delivery.BatchSize)
	}
	if cfg.Delivery.MaxAttempts != 10 {
		t.Fatalf("unexpected attempt ceiling %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected request timeout %s", cfg.Delivery.RequestTimeout)
	}
	if cfg.Delivery.SecretHeader != "X-Webhook-Secret" {
		t.Fatalf("unexpected secret header %q", cfg.Delivery.SecretHeader)
	}
}
