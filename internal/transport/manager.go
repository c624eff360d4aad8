// Package transport keeps one WebSocket event channel per session id.
//
// Each channel is read by a single goroutine that hands decoded events to
// the Handler synchronously, so events of one session are delivered in the
// order the server sent them. No ordering holds across sessions.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/log"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second
)

// ErrManagerClosed is returned by Open after CloseAll.
var ErrManagerClosed = errors.New("transport: manager closed")

// Handler receives every event of every channel. It is called from the
// channel's reader goroutine.
type Handler func(events.Event)

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config configures a Manager.
type Config struct {
	// WSURL is the base URL, e.g. ws://localhost:8000. Channels connect to
	// {WSURL}/api/ws/{session_id}.
	WSURL        string
	PingInterval time.Duration
	Dialer       Dialer
}

// Manager owns the open channels.
type Manager struct {
	baseURL      string
	pingInterval time.Duration
	dialer       Dialer
	handler      Handler

	mu       sync.Mutex
	channels map[domain.SessionID]*channel
	closed   bool
	wg       sync.WaitGroup
}

type channel struct {
	session domain.SessionID
	conn    *websocket.Conn
	done    chan struct{}
	// closing is set when the local side closes; the read error that
	// follows is not reported.
	closing atomic.Bool
	writeMu sync.Mutex
}

// NewManager creates a manager delivering events to h.
func NewManager(cfg Config, h Handler) *Manager {
	d := cfg.Dialer
	if d == nil {
		d = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return &Manager{
		baseURL:      strings.TrimRight(cfg.WSURL, "/"),
		pingInterval: ping,
		dialer:       d,
		handler:      h,
		channels:     make(map[domain.SessionID]*channel),
	}
}

// ChannelURL returns the endpoint for session.
func (m *Manager) ChannelURL(session domain.SessionID) string {
	return m.baseURL + "/api/ws/" + url.PathEscape(string(session))
}

// Open connects the channel for session. Opening an already open session is
// a no-op.
func (m *Manager) Open(ctx context.Context, session domain.SessionID) error {
	if session == "" {
		return fmt.Errorf("open channel: empty session id")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, ok := m.channels[session]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, resp, err := m.dialer.DialContext(ctx, m.ChannelURL(session), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.ErrorErr(log.CatTransport, "dial failed", err, "session", session)
		return fmt.Errorf("dial %s: %w", session, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrManagerClosed
	}
	if _, ok := m.channels[session]; ok {
		// Lost a race with another Open for the same session.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	ch := &channel{session: session, conn: conn, done: make(chan struct{})}
	m.channels[session] = ch
	m.wg.Add(2)
	m.mu.Unlock()

	go m.readLoop(ch)
	go m.pingLoop(ch)
	log.Info(log.CatTransport, "channel opened", "session", session)
	return nil
}

// Close closes the channel for session without waiting for its reader to
// exit, so it may be called from inside the Handler. Closing does not cancel
// the job on the server.
func (m *Manager) Close(session domain.SessionID) {
	m.mu.Lock()
	ch, ok := m.channels[session]
	if ok {
		delete(m.channels, session)
	}
	m.mu.Unlock()
	if ok {
		m.shutdown(ch)
		log.Info(log.CatTransport, "channel closed", "session", session)
	}
}

// CloseAll closes every channel and waits for the reader goroutines. It must
// not be called from the Handler.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	chans := make([]*channel, 0, len(m.channels))
	for _, ch := range m.channels {
		chans = append(chans, ch)
	}
	clear(m.channels)
	m.mu.Unlock()

	for _, ch := range chans {
		m.shutdown(ch)
	}
	m.wg.Wait()
}

// IsOpen reports whether a channel for session is open.
func (m *Manager) IsOpen(session domain.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[session]
	return ok
}

// OpenSessions returns the open session ids, sorted.
func (m *Manager) OpenSessions() []domain.SessionID {
	m.mu.Lock()
	out := make([]domain.SessionID, 0, len(m.channels))
	for s := range m.channels {
		out = append(out, s)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

func (m *Manager) shutdown(ch *channel) {
	if !ch.closing.CompareAndSwap(false, true) {
		return
	}
	ch.writeMu.Lock()
	_ = ch.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	ch.writeMu.Unlock()
	_ = ch.conn.Close()
}

func (m *Manager) forget(ch *channel) {
	m.mu.Lock()
	if cur, ok := m.channels[ch.session]; ok && cur == ch {
		delete(m.channels, ch.session)
	}
	m.mu.Unlock()
}

func (m *Manager) readLoop(ch *channel) {
	defer m.wg.Done()
	defer close(ch.done)

	ch.conn.SetPongHandler(func(string) error {
		return ch.conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
	})
	_ = ch.conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			m.forget(ch)
			if ch.closing.Load() {
				return
			}
			_ = ch.conn.Close()
			code, reason := closeDetails(err)
			log.Info(log.CatTransport, "channel terminated", "session", ch.session, "code", code, "reason", reason)
			m.deliver(events.Closed{
				Envelope: events.Envelope{SessionID: ch.session},
				Code:     code,
				Reason:   reason,
			})
			return
		}
		_ = ch.conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))

		ev, err := events.Decode(data)
		if err != nil {
			log.ErrorErr(log.CatTransport, "undecodable frame", err, "session", ch.session)
			m.deliver(events.ConnectionError{
				Envelope: events.Envelope{SessionID: ch.session},
				Message:  "malformed event: " + err.Error(),
			})
			continue
		}
		m.deliver(events.Stamp(ev, ch.session))
	}
}

func (m *Manager) pingLoop(ch *channel) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			ch.writeMu.Lock()
			err := ch.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ch.writeMu.Unlock()
			if err != nil && !ch.closing.Load() {
				log.Debug(log.CatTransport, "ping failed", "session", ch.session, "error", err)
			}
		}
	}
}

// deliver calls the handler, isolating panics to the single event.
func (m *Manager) deliver(ev events.Event) {
	if m.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatTransport, "handler panicked", "session", ev.Session(), "kind", ev.Kind(), "panic", r)
		}
	}()
	m.handler(ev)
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
