package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTransport implements Transport in memory.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	onConnect []func()
	handlers  map[string]func(json.RawMessage)
	emitted   []fakeEmit
	emitErr   error
}

type fakeEmit struct {
	event   string
	payload map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(json.RawMessage))}
}

func (f *fakeTransport) Connect(ctx context.Context) {
	f.fireConnect()
}

// fireConnect simulates one successful (re)connect.
func (f *fakeTransport) fireConnect() {
	f.mu.Lock()
	f.connected = true
	hooks := append([]func(){}, f.onConnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = append(f.onConnect, fn)
}

func (f *fakeTransport) On(event string, fn func(data json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = fn
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	if !f.connected {
		return ErrNotConnected
	}
	f.emitted = append(f.emitted, fakeEmit{event: event, payload: payload.(map[string]any)})
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// push delivers a server message through the registered handler.
func (f *fakeTransport) push(t *testing.T, m Message) {
	t.Helper()
	f.mu.Lock()
	fn := f.handlers[EventNewBandMessage]
	f.mu.Unlock()
	if fn == nil {
		t.Fatal("no handler registered for new_band_message")
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	fn(data)
}

func (f *fakeTransport) emittedEvents(event string) []fakeEmit {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeEmit
	for _, e := range f.emitted {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeHistory struct {
	msgs []Message
	err  error
}

func (f *fakeHistory) Get(ctx context.Context, path string, out any) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(f.msgs)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func at(sec int) time.Time {
	return time.Date(2026, 8, 28, 12, 0, sec, 0, time.UTC)
}

func historyOf(n int) []Message {
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Message{
			ID:        int64(i + 1),
			BandID:    42,
			UserID:    7,
			Content:   fmt.Sprintf("hist-%d", i+1),
			CreatedAt: at(i),
			Sender:    Sender{FullName: "Alex"},
		})
	}
	return out
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestStream_HistoryThenLivePushes(t *testing.T) {
	tr := newFakeTransport()
	s := NewStream(42, 7, "Alex", &fakeHistory{msgs: historyOf(3)}, tr)
	s.Open(context.Background())

	for i := 0; i < 2; i++ {
		tr.push(t, Message{
			ID:        int64(100 + i),
			BandID:    42,
			UserID:    8,
			Content:   fmt.Sprintf("live-%d", i+1),
			CreatedAt: at(10 + i),
			Sender:    Sender{FullName: "Sam"},
		})
	}

	got := contents(s.Messages())
	want := []string{"hist-1", "hist-2", "hist-3", "live-1", "live-2"}
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages = %v, want %v", got, want)
		}
	}
}

func TestStream_HistoryArrivingAfterPushesMergesByTimestamp(t *testing.T) {
	tr := newFakeTransport()
	history := &fakeHistory{err: errors.New("not yet")}
	s := NewStream(42, 7, "Alex", history, tr)
	s.Open(context.Background()) // history fetch fails, feed starts empty

	// a live push lands before history is available
	tr.push(t, Message{ID: 100, UserID: 8, Content: "live", CreatedAt: at(10)})

	// history completes afterwards with older messages
	history.err = nil
	history.msgs = historyOf(2)
	s.fetchHistory(context.Background())

	got := contents(s.Messages())
	want := []string{"hist-1", "hist-2", "live"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages = %v, want %v (ordered by timestamp)", got, want)
		}
	}
}

func TestStream_JoinReissuedPerReconnect(t *testing.T) {
	tr := newFakeTransport()
	s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
	s.Open(context.Background())

	if joins := tr.emittedEvents(EventJoinBand); len(joins) != 1 {
		t.Fatalf("joins after connect = %d, want 1", len(joins))
	}

	tr.drop()
	tr.fireConnect()

	joins := tr.emittedEvents(EventJoinBand)
	if len(joins) != 2 {
		t.Fatalf("joins after reconnect = %d, want 2", len(joins))
	}
	for _, j := range joins {
		if j.payload["bandId"] != int64(42) {
			t.Errorf("join payload = %v", j.payload)
		}
	}

	// a duplicate join must not duplicate delivery: one handler, one message
	tr.push(t, Message{ID: 1, UserID: 8, Content: "once", CreatedAt: at(1)})
	if got := s.Messages(); len(got) != 1 {
		t.Errorf("messages = %d, want 1", len(got))
	}
}

func TestStream_Send(t *testing.T) {
	t.Run("empty text refused before the network", func(t *testing.T) {
		tr := newFakeTransport()
		s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
		s.Open(context.Background())

		if err := s.Send("   "); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("err = %v, want ErrEmptyMessage", err)
		}
		if len(tr.emittedEvents(EventSendBandMsg)) != 0 {
			t.Error("empty send must not emit")
		}
	})

	t.Run("no live connection refuses the send", func(t *testing.T) {
		tr := newFakeTransport()
		s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
		s.Open(context.Background())
		tr.drop()

		if err := s.Send("ready for Friday?"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
		if len(tr.emittedEvents(EventSendBandMsg)) != 0 {
			t.Error("refused send must not emit")
		}
		if len(s.Messages()) != 0 {
			t.Error("refused send must not append")
		}
	})

	t.Run("local echo is pending until the push confirms it", func(t *testing.T) {
		tr := newFakeTransport()
		s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
		s.Open(context.Background())

		if err := s.Send("ready for Friday?"); err != nil {
			t.Fatalf("Send: %v", err)
		}

		msgs := s.Messages()
		if len(msgs) != 1 || !msgs[0].Pending || msgs[0].Content != "ready for Friday?" {
			t.Fatalf("messages = %+v, want one pending echo", msgs)
		}

		sends := tr.emittedEvents(EventSendBandMsg)
		if len(sends) != 1 {
			t.Fatalf("sends = %d, want 1", len(sends))
		}
		payload := sends[0].payload
		if payload["bandId"] != int64(42) || payload["userId"] != int64(7) || payload["content"] != "ready for Friday?" {
			t.Errorf("payload = %v", payload)
		}
		cid, _ := payload["clientId"].(string)
		if cid == "" {
			t.Fatal("send carries no correlation id")
		}

		// the authoritative push replaces the pending entry
		tr.push(t, Message{
			ID: 500, BandID: 42, UserID: 7,
			Content:   "ready for Friday?",
			CreatedAt: at(30),
			ClientID:  cid,
			Sender:    Sender{FullName: "Alex"},
		})

		msgs = s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("messages = %d, want pending replaced not duplicated", len(msgs))
		}
		if msgs[0].Pending || msgs[0].ID != 500 {
			t.Errorf("message = %+v, want confirmed server copy", msgs[0])
		}
	})

	t.Run("confirmation reorders the echo by server stamp", func(t *testing.T) {
		tr := newFakeTransport()
		s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
		s.Open(context.Background())

		if err := s.Send("ready for Friday?"); err != nil {
			t.Fatalf("Send: %v", err)
		}
		cid, _ := tr.emittedEvents(EventSendBandMsg)[0].payload["clientId"].(string)

		// another member's message lands between the echo and its confirmation
		tr.push(t, Message{
			ID: 600, UserID: 8, Content: "yes",
			CreatedAt: time.Now().UTC().Add(time.Hour),
			Sender:    Sender{FullName: "Sam"},
		})
		tr.push(t, Message{
			ID: 601, UserID: 7, Content: "ready for Friday?",
			CreatedAt: time.Now().UTC().Add(2 * time.Hour),
			ClientID:  cid,
			Sender:    Sender{FullName: "Alex"},
		})

		got := contents(s.Messages())
		want := []string{"yes", "ready for Friday?"}
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("messages = %v, want %v (ordered by server stamp)", got, want)
		}
	})

	t.Run("emit failure removes the pending echo", func(t *testing.T) {
		tr := newFakeTransport()
		s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
		s.Open(context.Background())
		tr.emitErr = errors.New("write: broken pipe")

		if err := s.Send("hello"); err == nil {
			t.Error("want error")
		}
		if len(s.Messages()) != 0 {
			t.Error("failed send must not leave a pending echo")
		}
	})
}

func TestStream_UpdateFansOutToAllObservers(t *testing.T) {
	tr := newFakeTransport()
	s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)
	s.Open(context.Background())

	var first, second int
	stopFirst := s.OnUpdate(func() { first++ })
	s.OnUpdate(func() { second++ })

	tr.push(t, Message{ID: 1, UserID: 8, Content: "one", CreatedAt: at(1)})
	if first != 1 || second != 1 {
		t.Fatalf("updates = (%d, %d), want every observer notified", first, second)
	}

	stopFirst()
	tr.push(t, Message{ID: 2, UserID: 8, Content: "two", CreatedAt: at(2)})
	if first != 1 {
		t.Error("removed observer still notified")
	}
	if second != 2 {
		t.Errorf("remaining observer updates = %d, want 2", second)
	}
}

func TestStream_CloseStopsCallbacks(t *testing.T) {
	tr := newFakeTransport()
	s := NewStream(42, 7, "Alex", &fakeHistory{}, tr)

	updates := 0
	s.OnUpdate(func() { updates++ })
	s.Open(context.Background())

	tr.push(t, Message{ID: 1, UserID: 8, Content: "before", CreatedAt: at(1)})
	if updates == 0 {
		t.Fatal("no update before close")
	}
	before := updates

	s.Close()
	if tr.Connected() {
		t.Error("Close must disconnect the transport")
	}

	tr.push(t, Message{ID: 2, UserID: 8, Content: "after", CreatedAt: at(2)})
	if updates != before {
		t.Error("update fired after Close")
	}
	if len(s.Messages()) != 1 {
		t.Error("state mutated after Close")
	}

	s.Close() // idempotent
}

func TestStream_DuplicateServerIDsDropped(t *testing.T) {
	tr := newFakeTransport()
	s := NewStream(42, 7, "Alex", &fakeHistory{msgs: historyOf(2)}, tr)
	s.Open(context.Background())

	// the same message arrives again via the live channel
	tr.push(t, Message{ID: 2, UserID: 7, Content: "hist-2", CreatedAt: at(1)})

	if got := len(s.Messages()); got != 2 {
		t.Errorf("messages = %d, want duplicate dropped", got)
	}
}
