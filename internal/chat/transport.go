package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Realtime event names, fixed by the backend contract.
const (
	EventJoinBand       = "join_band"
	EventSendBandMsg    = "send_band_message"
	EventNewBandMessage = "new_band_message"
)

var ErrNotConnected = errors.New("no live connection")

// envelope is the wire framing for every realtime event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport is one logical realtime connection. Handlers registered with On
// replace any previous handler for the same event, so a re-registration
// never doubles delivery. Implementations guarantee at most one live
// connection and an idempotent Disconnect.
type Transport interface {
	Connect(ctx context.Context)
	OnConnect(fn func())
	On(event string, fn func(data json.RawMessage))
	Emit(event string, payload any) error
	Connected() bool
	Disconnect()
}

// SocketSettings bound the reconnect behavior of the websocket transport.
type SocketSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectDelay   time.Duration
	MaxReconnects    int
}

func DefaultSocketSettings() SocketSettings {
	return SocketSettings{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReconnectDelay:   2 * time.Second,
		MaxReconnects:    5,
	}
}

// Socket is the gorilla/websocket Transport. It dials, dispatches inbound
// envelopes, and redials a bounded number of times after a drop. Every
// successful (re)connect fires the connect hooks so room membership can be
// re-issued; the server is never assumed to remember joins across
// reconnects.
type Socket struct {
	url      string
	settings SocketSettings

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]func(json.RawMessage)
	onConn   []func()
	done     chan struct{}
	started  bool
	closed   bool
}

func NewSocket(url string, settings SocketSettings) *Socket {
	return &Socket{
		url:      url,
		settings: settings,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
}

func (s *Socket) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConn = append(s.onConn, fn)
}

func (s *Socket) On(event string, fn func(data json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

// Connect starts the dial/read loop. Connection failures are logged, not
// surfaced; callers observe liveness through Connected.
func (s *Socket) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Socket) run(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: s.settings.HandshakeTimeout}

	attempts := 0
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			attempts++
			log.Printf("chat: connect %s (attempt %d): %v", s.url, attempts, err)
			if attempts > s.settings.MaxReconnects {
				log.Printf("chat: giving up on %s after %d attempts", s.url, attempts)
				return
			}
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(s.settings.ReconnectDelay):
			}
			continue
		}
		attempts = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		hooks := append([]func(){}, s.onConn...)
		s.mu.Unlock()

		for _, fn := range hooks {
			fn()
		}

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		closed := s.closed
		s.mu.Unlock()
		conn.Close()
		if closed {
			return
		}
		// dropped connection; loop redials
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("chat: read: %v", err)
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		fn := s.handlers[env.Event]
		s.mu.Unlock()

		if fn != nil {
			fn(env.Data)
		}
	}
}

func (s *Socket) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return ErrNotConnected
	}
	if s.settings.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
	}
	return s.conn.WriteJSON(envelope{Event: event, Data: data})
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

// Disconnect tears the connection down. Safe to call more than once; no
// handler fires after it returns the transport to the closed state.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
