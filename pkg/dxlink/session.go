// pkg/dxlink/session.go
package dxlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quotelab/quote-streamer/pkg/logger"
)

var (
	// ErrAlreadyConnected reports a Connect call while a session cycle is
	// still live. Disconnect first, then reconnect.
	ErrAlreadyConnected = errors.New("dxlink: session already connected")

	// ErrNotConnected reports a subscription call outside a live cycle.
	ErrNotConnected = errors.New("dxlink: session not connected")

	// ErrClosedBeforeReady reports that the connection terminated before the
	// handshake reached the feed-configured state.
	ErrClosedBeforeReady = errors.New("dxlink: connection closed before handshake completed")
)

// errNotWritable is internal: an outbound send raced with termination.
var errNotWritable = errors.New("dxlink: connection no longer writable")

// Handlers are the session callbacks. All of them are optional; they are
// invoked from session-owned goroutines, never concurrently with each other
// for the same event, and must not block for long.
type Handlers struct {
	// OnConnect fires once per cycle, after the WebSocket handshake succeeds
	// and before the protocol handshake starts.
	OnConnect func()

	// OnData delivers one decoded FEED_DATA batch in wire order.
	OnData func(events []MarketEvent)

	// OnError delivers operational errors. Non-terminal errors (for example
	// a partially malformed batch) may fire many times per cycle.
	OnError func(err error)

	// OnDisconnect fires exactly once per cycle, after the cycle is torn
	// down and the subscription registry is cleared.
	OnDisconnect func()
}

// Session is one logical streaming connection: it owns the WebSocket, drives
// the handshake phases, schedules keepalives and tracks subscriptions.
//
// A Session is reusable: after a cycle terminates (peer close, error or
// Disconnect), Connect may be called again. Credentials are fetched fresh on
// every Connect because quote tokens are single-use.
type Session struct {
	cfg      Config
	tokens   TokenProvider
	handlers Handlers
	log      *logger.Logger

	// mu guards all cycle state below.
	mu        sync.Mutex
	phase     Phase
	gen       uint64
	conn      *websocket.Conn
	reg       *registry
	pending   []feedSubscriptionRequest
	token     string
	ready     chan struct{}
	done      chan struct{}
	termErr   error
	kaStop    chan struct{}
	kaStarted bool

	// writeMu serializes outbound frames; the read goroutine, keepalive
	// goroutine and callers all write.
	writeMu sync.Mutex
}

// NewSession builds a Session. The zero Config is usable; invalid explicit
// values are rejected.
func NewSession(cfg Config, tokens TokenProvider, handlers Handlers, log *logger.Logger) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("dxlink: token provider is required")
	}
	return &Session{
		cfg:      cfg,
		tokens:   tokens,
		handlers: handlers,
		log:      log.Named("dxlink"),
		phase:    PhaseIdle,
		reg:      newRegistry(),
	}, nil
}

// Connect fetches a fresh quote token, dials the streaming endpoint and
// drives the handshake through setup, auth, channel negotiation and feed
// configuration. It returns once the feed is configured, the connection
// dies, or ctx expires. Subscriptions issued while the handshake is still
// in flight are queued and flushed on feed configuration.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseIdle && s.phase != PhaseClosed {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	tok, err := s.tokens.QuoteToken(ctx)
	if err != nil {
		incConnect("token_error")
		return fmt.Errorf("dxlink: fetch quote token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, tok.URL, nil)
	if err != nil {
		incConnect("dial_error")
		return fmt.Errorf("dxlink: dial %s: %w", tok.URL, err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conn = conn
	s.token = tok.Token
	s.phase = PhaseSettingUp
	s.pending = nil
	s.termErr = nil
	s.ready = make(chan struct{})
	s.done = make(chan struct{})
	s.kaStop = make(chan struct{})
	s.kaStarted = false
	ready, done := s.ready, s.done
	s.mu.Unlock()

	incConnect("ok")
	s.log.Info("connected to streaming endpoint",
		zap.String("url", tok.URL),
		zap.Int("feed_channel", s.cfg.ChannelID),
	)
	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	if err := s.send(setupRequest{
		Type:                   typeSetup,
		Channel:                sessionChannel,
		Version:                s.cfg.Version,
		KeepaliveTimeout:       int(s.cfg.KeepaliveTimeout.Seconds()),
		AcceptKeepaliveTimeout: int(s.cfg.KeepaliveTimeout.Seconds()),
	}); err != nil {
		s.terminate(gen, fmt.Errorf("dxlink: send SETUP: %w", err))
		return fmt.Errorf("dxlink: send SETUP: %w", err)
	}

	go s.readLoop(conn, gen)

	select {
	case <-ready:
		return nil
	case <-done:
		s.mu.Lock()
		err := s.termErr
		s.mu.Unlock()
		if err == nil {
			err = ErrClosedBeforeReady
		}
		return err
	case <-ctx.Done():
		s.Disconnect()
		return ctx.Err()
	}
}

// Disconnect tears the current cycle down. It is safe to call at any time,
// including concurrently with a peer-initiated close; the cycle terminates
// exactly once either way.
func (s *Session) Disconnect() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.terminate(gen, nil)
}

// SubscribeToSymbols adds symbols to the feed. Already subscribed symbols
// are skipped, so repeated calls are idempotent. Before the feed is
// configured the subscription message is queued and flushed on FEED_CONFIG.
func (s *Session) SubscribeToSymbols(symbols ...string) error {
	return s.changeSubscription(symbols, true)
}

// UnsubscribeFromSymbols removes symbols from the feed. Symbols that were
// never subscribed are skipped.
func (s *Session) UnsubscribeFromSymbols(symbols ...string) error {
	return s.changeSubscription(symbols, false)
}

func (s *Session) changeSubscription(symbols []string, add bool) error {
	s.mu.Lock()
	if s.phase == PhaseIdle || s.phase == PhaseClosed {
		s.mu.Unlock()
		return ErrNotConnected
	}

	var entries []SubscriptionEntry
	if add {
		entries = s.reg.addDiff(symbols)
	} else {
		entries = s.reg.removeDiff(symbols)
	}
	if len(entries) == 0 {
		s.mu.Unlock()
		return nil
	}
	setSubscribedSymbols(s.reg.size())

	msg := feedSubscriptionRequest{
		Type:    typeFeedSubscription,
		Channel: s.cfg.ChannelID,
		Reset:   false,
	}
	if add {
		msg.Add = entries
	} else {
		msg.Remove = entries
	}

	if s.phase != PhaseFeedConfigured {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		s.log.Debug("subscription queued until feed is configured",
			zap.Int("entries", len(entries)),
		)
		return nil
	}
	s.mu.Unlock()

	return s.send(msg)
}

// Connected reports whether the session holds an authorized connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseAuthorized, PhaseChannelRequested, PhaseChannelOpen, PhaseFeedConfigured:
		return true
	default:
		return false
	}
}

// Phase returns the current protocol phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SubscribedSymbols returns a sorted snapshot of the subscribed symbols.
func (s *Session) SubscribedSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.list()
}

// Done returns a channel closed when the current cycle terminates. Before
// the first Connect it returns an already closed channel.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// readLoop owns the inbound side of one cycle. It exits on the first read
// error, which includes the deadline expiring and the peer closing.
func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.terminate(gen, nil)
			} else {
				s.terminate(gen, fmt.Errorf("dxlink: read: %w", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.handle(gen, data)
	}
}

// handle decodes one inbound frame, runs the phase reducer under the lock
// and performs the resulting actions outside it.
func (s *Session) handle(gen uint64, data []byte) {
	msg, err := decodeControl(data)
	if err != nil {
		s.log.Warn("dropping malformed control message", zap.Error(err))
		s.emitError(err)
		return
	}
	incMessage(msg.controlType())

	s.mu.Lock()
	if gen != s.gen || s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	prev := s.phase
	tok := s.token
	next, actions := transition(s.phase, msg, s.cfg.ChannelID)
	s.phase = next
	ready := s.ready

	var (
		flush     []feedSubscriptionRequest
		flushConn *websocket.Conn
	)
	for _, act := range actions {
		if act == actFlushPending {
			flush = s.pending
			s.pending = nil
			flushConn = s.conn
		}
	}
	if flushConn != nil {
		// take the write lock before the new phase becomes visible, so a
		// subscriber that observes FeedConfigured cannot write ahead of the
		// queued frames
		s.writeMu.Lock()
	}
	s.mu.Unlock()

	if next != prev {
		s.log.Debug("phase transition",
			zap.String("from", prev.String()),
			zap.String("to", next.String()),
			zap.String("message", msg.controlType()),
		)
	}

	for _, act := range actions {
		switch act {
		case actSendAuth:
			if err := s.send(authRequest{Type: typeAuth, Channel: sessionChannel, Token: tok}); err != nil {
				s.terminate(gen, fmt.Errorf("dxlink: send AUTH: %w", err))
				return
			}

		case actOpenChannel:
			if err := s.send(channelRequest{
				Type:       typeChannelRequest,
				Channel:    s.cfg.ChannelID,
				Service:    "FEED",
				Parameters: map[string]string{"contract": "AUTO"},
			}); err != nil {
				s.terminate(gen, fmt.Errorf("dxlink: send CHANNEL_REQUEST: %w", err))
				return
			}
			s.mu.Lock()
			if gen == s.gen && s.phase == PhaseAuthorized {
				s.phase = PhaseChannelRequested
			}
			s.mu.Unlock()

		case actConfigureFeed:
			if err := s.send(feedSetupRequest{
				Type:                    typeFeedSetup,
				Channel:                 s.cfg.ChannelID,
				AcceptAggregationPeriod: s.cfg.AcceptAggregationPeriod,
				AcceptDataFormat:        "COMPACT",
				AcceptEventFields:       acceptEventFields,
			}); err != nil {
				s.terminate(gen, fmt.Errorf("dxlink: send FEED_SETUP: %w", err))
				return
			}

		case actStartKeepalive:
			s.startKeepalive(gen)

		case actFlushPending:
			flushErr := func() error {
				defer s.writeMu.Unlock()
				for _, m := range flush {
					if err := s.writeFrame(flushConn, m); err != nil {
						return err
					}
				}
				return nil
			}()
			if flushErr != nil {
				s.terminate(gen, fmt.Errorf("dxlink: flush subscriptions: %w", flushErr))
				return
			}
			// handshake complete: unblock Connect
			close(ready)

		case actDeliverData:
			fd := msg.(feedData)
			events, err := decodeFeedData(fd.Data, time.Now().UTC())
			if err != nil {
				s.log.Warn("feed data batch partially decoded", zap.Error(err))
				s.emitError(err)
			}
			if len(events) > 0 && s.handlers.OnData != nil {
				s.handlers.OnData(events)
			}

		case actIgnore:
			s.log.Debug("ignoring control message",
				zap.String("type", msg.controlType()),
				zap.String("phase", prev.String()),
			)
		}
	}
}

// startKeepalive launches the keepalive scheduler once per cycle.
func (s *Session) startKeepalive(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.kaStarted {
		s.mu.Unlock()
		return
	}
	s.kaStarted = true
	stop := s.kaStop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				err := s.send(keepaliveRequest{Type: typeKeepalive, Channel: sessionChannel})
				if err != nil {
					if !errors.Is(err, errNotWritable) {
						s.terminate(gen, fmt.Errorf("dxlink: send KEEPALIVE: %w", err))
					}
					return
				}
				incKeepalive()
			}
		}
	}()
}

// send marshals and writes one outbound frame under the write lock.
func (s *Session) send(msg interface{}) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.phase == PhaseClosed
	s.mu.Unlock()
	if conn == nil || closed {
		return errNotWritable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeFrame(conn, msg)
}

// writeFrame marshals and writes one frame. The caller must hold writeMu.
func (s *Session) writeFrame(conn *websocket.Conn, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("dxlink: marshal outbound message: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// terminate tears down the cycle identified by gen. Stale generations and
// repeated calls are no-ops, so the peer closing, a read error, a failed
// write and an explicit Disconnect can all race safely.
func (s *Session) terminate(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.phase == PhaseClosed || s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseClosed
	s.termErr = err
	conn := s.conn
	s.conn = nil
	s.reg.clear()
	setSubscribedSymbols(0)
	if s.kaStop != nil {
		close(s.kaStop)
	}
	done := s.done
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	incDisconnect()
	if err != nil {
		s.log.Warn("session terminated", zap.Error(err))
		s.emitError(err)
	} else {
		s.log.Info("session closed")
	}
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect()
	}
	if done != nil {
		close(done)
	}
}

func (s *Session) emitError(err error) {
	incErrorEmitted()
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}
