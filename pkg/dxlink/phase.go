// pkg/dxlink/phase.go
package dxlink

// Phase is the protocol state of one streaming session. Exactly one phase is
// active at a time; transitions are driven by inbound control messages and
// never skip a phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSettingUp
	PhaseUnauthorized
	PhaseAuthorized
	PhaseChannelRequested
	PhaseChannelOpen
	PhaseFeedConfigured
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSettingUp:
		return "SETTING_UP"
	case PhaseUnauthorized:
		return "UNAUTHORIZED"
	case PhaseAuthorized:
		return "AUTHORIZED"
	case PhaseChannelRequested:
		return "CHANNEL_REQUESTED"
	case PhaseChannelOpen:
		return "CHANNEL_OPEN"
	case PhaseFeedConfigured:
		return "FEED_CONFIGURED"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// action tells the session what to do after a transition.
type action int

const (
	actNone action = iota

	// actSendAuth: send AUTH with the bearer token (phase stays Unauthorized
	// until the peer confirms).
	actSendAuth

	// actOpenChannel: send CHANNEL_REQUEST for the configured feed channel;
	// the session advances to ChannelRequested once the request is on the
	// wire.
	actOpenChannel

	// actConfigureFeed: send FEED_SETUP declaring format, aggregation period
	// and per-kind field subsets.
	actConfigureFeed

	// actStartKeepalive: start the keepalive scheduler (once per session).
	actStartKeepalive

	// actFlushPending: the feed is configured, flush queued subscription
	// messages.
	actFlushPending

	// actDeliverData: decode the FEED_DATA payload and deliver the batch.
	actDeliverData

	// actIgnore: message does not apply to the current phase; log and drop.
	actIgnore
)

// transition is the pure phase reducer: given the current phase, an inbound
// control message and the negotiated feed channel id, it returns the next
// phase and the actions to perform. It never touches the transport, which
// keeps every phase sequence unit-testable.
func transition(p Phase, msg controlMessage, feedChannel int) (Phase, []action) {
	switch m := msg.(type) {
	case setupAck:
		if p == PhaseSettingUp {
			return PhaseUnauthorized, nil
		}

	case authState:
		switch m.State {
		case authStateUnauthorized:
			if p == PhaseUnauthorized {
				return PhaseUnauthorized, []action{actSendAuth}
			}
		case authStateAuthorized:
			if p == PhaseUnauthorized {
				return PhaseAuthorized, []action{actOpenChannel}
			}
		}

	case channelOpened:
		if p == PhaseChannelRequested && m.Channel == feedChannel {
			return PhaseChannelOpen, []action{actConfigureFeed, actStartKeepalive}
		}

	case feedConfig:
		if p == PhaseChannelOpen && m.Channel == feedChannel {
			return PhaseFeedConfigured, []action{actFlushPending}
		}
		// peers may re-send FEED_CONFIG after the feed is already configured
		if p == PhaseFeedConfigured && m.Channel == feedChannel {
			return PhaseFeedConfigured, nil
		}

	case feedData:
		// data may interleave with configuration acknowledgments
		if (p == PhaseChannelOpen || p == PhaseFeedConfigured) && m.Channel == feedChannel {
			return p, []action{actDeliverData}
		}

	case keepaliveAck:
		// peer liveness probe, nothing to do
		return p, nil

	case unknownMessage:
		return p, []action{actIgnore}
	}

	return p, []action{actIgnore}
}
