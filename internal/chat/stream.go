package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one band chat entry. ClientID is the correlation id attached
// to locally-echoed sends; the authoritative push for the same send carries
// it back so the pending copy can be replaced in place.
type Message struct {
	ID        int64     `json:"message_id,omitempty"`
	BandID    int64     `json:"band_id,omitempty"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sender    Sender    `json:"sender"`
	ClientID  string    `json:"client_id,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
}

type Sender struct {
	FullName string `json:"full_name"`
}

// State of a mounted chat view.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateReceiving    State = "receiving"
)

var ErrEmptyMessage = errors.New("message must not be empty")

// HistoryFetcher is the slice of the API client the stream needs.
type HistoryFetcher interface {
	Get(ctx context.Context, path string, out any) error
}

// Stream owns the ordered message feed of one band's chat room. Messages
// are kept sorted by creation time (stable for equal stamps), so a history
// fetch that completes after live pushes cannot misorder the feed.
type Stream struct {
	bandID   int64
	userID   int64
	fullName string
	backend  HistoryFetcher
	tr       Transport

	mu       sync.Mutex
	msgs     []Message
	state    State
	closed   bool
	hooks    map[int]func()
	nextHook int
}

func NewStream(bandID, userID int64, fullName string, backend HistoryFetcher, tr Transport) *Stream {
	return &Stream{
		bandID:   bandID,
		userID:   userID,
		fullName: fullName,
		backend:  backend,
		tr:       tr,
		state:    StateDisconnected,
		hooks:    make(map[int]func()),
	}
}

// OnUpdate registers a side effect fired after every feed change (the
// scroll-to-latest push). Several views can observe one stream; the
// returned func removes this hook.
func (s *Stream) OnUpdate(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHook
	s.nextHook++
	s.hooks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.hooks, id)
	}
}

// Open connects the transport and fetches history in parallel. The room
// join is emitted on every successful connect, not only the first: the
// server does not remember membership across reconnects.
func (s *Stream) Open(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.tr.OnConnect(func() {
		payload := map[string]any{"bandId": s.bandID}
		if err := s.tr.Emit(EventJoinBand, payload); err != nil {
			log.Printf("chat: join band %d: %v", s.bandID, err)
			return
		}
		s.mu.Lock()
		if !s.closed && s.state == StateConnecting {
			s.state = StateJoined
		}
		s.mu.Unlock()
	})
	s.tr.On(EventNewBandMessage, s.handlePush)
	s.tr.Connect(ctx)

	s.fetchHistory(ctx)
}

func (s *Stream) fetchHistory(ctx context.Context) {
	var history []Message
	path := fmt.Sprintf("/bands/%d/messages", s.bandID)
	if err := s.backend.Get(ctx, path, &history); err != nil {
		log.Printf("chat: history band %d: %v", s.bandID, err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, m := range history {
		s.insertLocked(m)
	}
	fns := s.updateHooksLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Stream) handlePush(data json.RawMessage) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("chat: bad push payload: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StateJoined {
		s.state = StateReceiving
	}
	if m.ClientID == "" || !s.resolvePendingLocked(m) {
		s.insertLocked(m)
	}
	fns := s.updateHooksLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Send validates and emits one outbound message. The text is appended
// locally as a pending entry so the sender sees it immediately; the server
// push carrying the same correlation id later confirms it.
func (s *Stream) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !s.tr.Connected() {
		return ErrNotConnected
	}

	cid := uuid.NewString()
	local := Message{
		BandID:    s.bandID,
		UserID:    s.userID,
		Content:   text,
		CreatedAt: time.Now().UTC(),
		Sender:    Sender{FullName: s.fullName},
		ClientID:  cid,
		Pending:   true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.insertLocked(local)
	fns := s.updateHooksLocked()
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}

	payload := map[string]any{
		"bandId":   s.bandID,
		"userId":   s.userID,
		"content":  text,
		"clientId": cid,
	}
	if err := s.tr.Emit(EventSendBandMsg, payload); err != nil {
		s.mu.Lock()
		s.removePendingLocked(cid)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Messages returns the feed ordered by creation time then arrival.
func (s *Stream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the view down. No handler observes the stream afterwards.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateDisconnected
	s.hooks = nil
	s.mu.Unlock()

	s.tr.Disconnect()
}

// insertLocked places m by CreatedAt, keeping arrival order for equal
// stamps, and drops exact duplicates by server id.
func (s *Stream) insertLocked(m Message) {
	if m.ID != 0 {
		for i := range s.msgs {
			if s.msgs[i].ID == m.ID {
				return
			}
		}
	}
	at := len(s.msgs)
	for i := range s.msgs {
		if s.msgs[i].CreatedAt.After(m.CreatedAt) {
			at = i
			break
		}
	}
	s.msgs = append(s.msgs, Message{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = m
}

// resolvePendingLocked drops the pending local echo matching the push's
// correlation id and re-inserts the authoritative copy at its server
// stamp, so an intervening message cannot leave the feed misordered.
// Reports whether a replacement happened.
func (s *Stream) resolvePendingLocked(m Message) bool {
	for i := range s.msgs {
		if s.msgs[i].Pending && s.msgs[i].ClientID == m.ClientID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			m.Pending = false
			s.insertLocked(m)
			return true
		}
	}
	return false
}

func (s *Stream) removePendingLocked(cid string) {
	for i := range s.msgs {
		if s.msgs[i].Pending && s.msgs[i].ClientID == cid {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return
		}
	}
}

func (s *Stream) updateHooksLocked() []func() {
	if s.closed || len(s.hooks) == 0 {
		return nil
	}
	out := make([]func(), 0, len(s.hooks))
	for _, fn := range s.hooks {
		out = append(out, fn)
	}
	return out
}
