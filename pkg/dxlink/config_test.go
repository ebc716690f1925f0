// pkg/dxlink/config_test.go
package dxlink

import (
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.ChannelID != 3 {
		t.Errorf("ChannelID = %d, want 3", cfg.ChannelID)
	}
	if cfg.KeepaliveInterval != 30*time.Second {
		t.Errorf("KeepaliveInterval = %v, want 30s", cfg.KeepaliveInterval)
	}
	if cfg.KeepaliveTimeout != 60*time.Second {
		t.Errorf("KeepaliveTimeout = %v, want 60s", cfg.KeepaliveTimeout)
	}
	if cfg.AcceptAggregationPeriod != 0.1 {
		t.Errorf("AcceptAggregationPeriod = %v, want 0.1", cfg.AcceptAggregationPeriod)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"custom channel ok", func(c *Config) { c.ChannelID = 5 }, false},
		{"reserved session channel", func(c *Config) { c.ChannelID = sessionChannel }, true},
		{"keepalive interval above timeout", func(c *Config) {
			c.KeepaliveInterval = 90 * time.Second
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
