// pkg/dxlink/messages.go
package dxlink

import (
	"encoding/json"
	"fmt"
)

// Wire message type discriminators. All frames are newline-free JSON objects
// keyed by "type"; "channel" is 0 for session-level messages and the
// negotiated feed channel id otherwise.
const (
	typeSetup            = "SETUP"
	typeAuth             = "AUTH"
	typeAuthState        = "AUTH_STATE"
	typeChannelRequest   = "CHANNEL_REQUEST"
	typeChannelOpened    = "CHANNEL_OPENED"
	typeFeedSetup        = "FEED_SETUP"
	typeFeedConfig       = "FEED_CONFIG"
	typeFeedData         = "FEED_DATA"
	typeFeedSubscription = "FEED_SUBSCRIPTION"
	typeKeepalive        = "KEEPALIVE"
)

// AUTH_STATE values reported by the peer.
const (
	authStateUnauthorized = "UNAUTHORIZED"
	authStateAuthorized   = "AUTHORIZED"
)

// sessionChannel is the channel id of session-level control messages.
const sessionChannel = 0

// -----------------------------------------------------------------------------
// Outbound messages
// -----------------------------------------------------------------------------

type setupRequest struct {
	Type                   string `json:"type"`
	Channel                int    `json:"channel"`
	Version                string `json:"version"`
	KeepaliveTimeout       int    `json:"keepaliveTimeout"`
	AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout"`
}

type authRequest struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Token   string `json:"token"`
}

type channelRequest struct {
	Type       string            `json:"type"`
	Channel    int               `json:"channel"`
	Service    string            `json:"service"`
	Parameters map[string]string `json:"parameters"`
}

type feedSetupRequest struct {
	Type                    string                 `json:"type"`
	Channel                 int                    `json:"channel"`
	AcceptAggregationPeriod float64                `json:"acceptAggregationPeriod"`
	AcceptDataFormat        string                 `json:"acceptDataFormat"`
	AcceptEventFields       map[EventKind][]string `json:"acceptEventFields"`
}

// SubscriptionEntry is one (kind, symbol) pair of a FEED_SUBSCRIPTION message.
type SubscriptionEntry struct {
	Kind   EventKind `json:"type"`
	Symbol string    `json:"symbol"`
}

type feedSubscriptionRequest struct {
	Type    string              `json:"type"`
	Channel int                 `json:"channel"`
	Reset   bool                `json:"reset"`
	Add     []SubscriptionEntry `json:"add,omitempty"`
	Remove  []SubscriptionEntry `json:"remove,omitempty"`
}

type keepaliveRequest struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
}

// -----------------------------------------------------------------------------
// Inbound messages (closed tagged union)
// -----------------------------------------------------------------------------

// controlMessage is the closed set of inbound control messages the state
// machine dispatches on. Anything the peer sends outside this set decodes
// into unknownMessage and is ignored.
type controlMessage interface {
	controlType() string
}

type setupAck struct {
	Channel          int    `json:"channel"`
	Version          string `json:"version"`
	KeepaliveTimeout int    `json:"keepaliveTimeout"`
}

type authState struct {
	Channel int    `json:"channel"`
	State   string `json:"state"`
}

type channelOpened struct {
	Channel int    `json:"channel"`
	Service string `json:"service"`
}

type feedConfig struct {
	Channel           int     `json:"channel"`
	DataFormat        string  `json:"dataFormat"`
	AggregationPeriod float64 `json:"aggregationPeriod"`
}

type feedData struct {
	Channel int               `json:"channel"`
	Data    []json.RawMessage `json:"data"`
}

type keepaliveAck struct {
	Channel int `json:"channel"`
}

type unknownMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
}

func (setupAck) controlType() string         { return typeSetup }
func (authState) controlType() string        { return typeAuthState }
func (channelOpened) controlType() string    { return typeChannelOpened }
func (feedConfig) controlType() string       { return typeFeedConfig }
func (feedData) controlType() string         { return typeFeedData }
func (keepaliveAck) controlType() string     { return typeKeepalive }
func (m unknownMessage) controlType() string { return m.Type }

// decodeControl parses one inbound frame into its typed representation.
func decodeControl(data []byte) (controlMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("dxlink: malformed control message: %w", err)
	}

	switch env.Type {
	case typeSetup:
		var m setupAck
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	case typeAuthState:
		var m authState
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	case typeChannelOpened:
		var m channelOpened
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	case typeFeedConfig:
		var m feedConfig
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	case typeFeedData:
		var m feedData
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	case typeKeepalive:
		var m keepaliveAck
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("dxlink: decode %s: %w", env.Type, err)
		}
		return m, nil
	default:
		var m unknownMessage
		_ = json.Unmarshal(data, &m)
		if m.Type == "" {
			m.Type = env.Type
		}
		return m, nil
	}
}
