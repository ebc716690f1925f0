// pkg/dxlink/phase_test.go
package dxlink

import (
	"reflect"
	"testing"
)

const testChannel = 3

func TestTransition_HappyPath(t *testing.T) {
	steps := []struct {
		name        string
		msg         controlMessage
		wantPhase   Phase
		wantActions []action
	}{
		{"setup ack", setupAck{Channel: 0}, PhaseUnauthorized, nil},
		{"unauthorized", authState{State: authStateUnauthorized}, PhaseUnauthorized, []action{actSendAuth}},
		{"authorized", authState{State: authStateAuthorized}, PhaseAuthorized, []action{actOpenChannel}},
	}

	p := PhaseSettingUp
	for _, step := range steps {
		var actions []action
		p, actions = transition(p, step.msg, testChannel)
		if p != step.wantPhase {
			t.Fatalf("%s: phase = %s, want %s", step.name, p, step.wantPhase)
		}
		if !reflect.DeepEqual(actions, step.wantActions) {
			t.Fatalf("%s: actions = %v, want %v", step.name, actions, step.wantActions)
		}
	}

	// the session advances to ChannelRequested itself after sending the request
	p = PhaseChannelRequested

	p, actions := transition(p, channelOpened{Channel: testChannel}, testChannel)
	if p != PhaseChannelOpen {
		t.Fatalf("channel opened: phase = %s, want CHANNEL_OPEN", p)
	}
	if !reflect.DeepEqual(actions, []action{actConfigureFeed, actStartKeepalive}) {
		t.Fatalf("channel opened: actions = %v", actions)
	}

	p, actions = transition(p, feedConfig{Channel: testChannel}, testChannel)
	if p != PhaseFeedConfigured {
		t.Fatalf("feed config: phase = %s, want FEED_CONFIGURED", p)
	}
	if !reflect.DeepEqual(actions, []action{actFlushPending}) {
		t.Fatalf("feed config: actions = %v", actions)
	}
}

func TestTransition_OutOfOrderIgnored(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		msg   controlMessage
	}{
		{"setup ack twice", PhaseUnauthorized, setupAck{}},
		{"authorized before setup ack", PhaseSettingUp, authState{State: authStateAuthorized}},
		{"channel opened before request", PhaseAuthorized, channelOpened{Channel: testChannel}},
		{"channel opened wrong channel", PhaseChannelRequested, channelOpened{Channel: 7}},
		{"feed config wrong channel", PhaseChannelOpen, feedConfig{Channel: 7}},
		{"feed data before channel open", PhaseAuthorized, feedData{Channel: testChannel}},
		{"feed data wrong channel", PhaseFeedConfigured, feedData{Channel: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, actions := transition(tt.phase, tt.msg, testChannel)
			if next != tt.phase {
				t.Errorf("phase = %s, want unchanged %s", next, tt.phase)
			}
			if !reflect.DeepEqual(actions, []action{actIgnore}) {
				t.Errorf("actions = %v, want [actIgnore]", actions)
			}
		})
	}
}

func TestTransition_FeedDataInBothOpenPhases(t *testing.T) {
	for _, phase := range []Phase{PhaseChannelOpen, PhaseFeedConfigured} {
		next, actions := transition(phase, feedData{Channel: testChannel}, testChannel)
		if next != phase {
			t.Errorf("phase %s: changed to %s", phase, next)
		}
		if !reflect.DeepEqual(actions, []action{actDeliverData}) {
			t.Errorf("phase %s: actions = %v, want [actDeliverData]", phase, actions)
		}
	}
}

func TestTransition_FeedConfigResent(t *testing.T) {
	next, actions := transition(PhaseFeedConfigured, feedConfig{Channel: testChannel}, testChannel)
	if next != PhaseFeedConfigured {
		t.Errorf("phase = %s, want FEED_CONFIGURED", next)
	}
	if actions != nil {
		t.Errorf("actions = %v, want none", actions)
	}
}

func TestTransition_UnknownMessageIgnored(t *testing.T) {
	for p := PhaseIdle; p <= PhaseClosed; p++ {
		next, actions := transition(p, unknownMessage{Type: "ERROR"}, testChannel)
		if next != p {
			t.Errorf("phase %s: changed to %s on unknown message", p, next)
		}
		if !reflect.DeepEqual(actions, []action{actIgnore}) {
			t.Errorf("phase %s: actions = %v, want [actIgnore]", p, actions)
		}
	}
}

func TestTransition_KeepaliveAckNoop(t *testing.T) {
	next, actions := transition(PhaseFeedConfigured, keepaliveAck{}, testChannel)
	if next != PhaseFeedConfigured || actions != nil {
		t.Errorf("keepalive ack: phase = %s, actions = %v", next, actions)
	}
}
