// pkg/dxlink/config.go
package dxlink

import (
	"fmt"
	"time"
)

// Config holds session tunables. Zero values fall back to the defaults the
// public endpoint expects.
type Config struct {
	// ChannelID is the logical feed channel multiplexed onto the
	// connection. Any small positive integer works; it is negotiated via
	// CHANNEL_REQUEST/CHANNEL_OPENED, never assumed.
	ChannelID int `mapstructure:"channel_id"`

	// Version is the protocol/client version reported in SETUP.
	Version string `mapstructure:"version"`

	// KeepaliveInterval is how often the session pings the peer while the
	// channel is open.
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`

	// KeepaliveTimeout is the liveness bound advertised in SETUP.
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`

	// AcceptAggregationPeriod is the requested feed aggregation period in
	// seconds.
	AcceptAggregationPeriod float64 `mapstructure:"accept_aggregation_period"`

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// WriteTimeout bounds every outbound frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ReadTimeout is the inbound inactivity bound; the deadline is extended
	// on every received frame.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

func (c *Config) applyDefaults() {
	if c.ChannelID == 0 {
		c.ChannelID = 3
	}
	if c.Version == "" {
		c.Version = "0.1-go/1.0.0"
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 60 * time.Second
	}
	if c.AcceptAggregationPeriod <= 0 {
		c.AcceptAggregationPeriod = 0.1
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 75 * time.Second
	}
}

func (c Config) validate() error {
	if c.ChannelID <= 0 {
		return fmt.Errorf("dxlink: ChannelID must be a positive integer")
	}
	if c.ChannelID == sessionChannel {
		return fmt.Errorf("dxlink: ChannelID %d is reserved for session control", sessionChannel)
	}
	if c.KeepaliveInterval >= c.KeepaliveTimeout {
		return fmt.Errorf("dxlink: KeepaliveInterval must be below KeepaliveTimeout")
	}
	return nil
}
