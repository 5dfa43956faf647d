package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// the gateway serves its own pages, so cross-origin upgrades are refused
	CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || r.Host == hostOf(r.Header.Get("Origin"))
	},
}

func hostOf(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
			return origin[len(prefix):]
		}
	}
	return origin
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	user := currentUser(r)
	view := s.viewFor(user, band)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    view.stream.State(),
		"messages": newMessageViews(view.stream.Messages(), user.ctx.UserID),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user := currentUser(r)
	view := s.viewFor(user, band)
	if err := view.stream.Send(body.Content); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// handleChatBridge upgrades the browser connection and mirrors the chat
// stream into it: every feed change pushes a fresh ordered snapshot, and
// inbound frames are send gestures. Closing the browser tab detaches the
// bridge, which on the last reference tears the upstream stream down.
func (s *Server) handleChatBridge(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	user := currentUser(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: chat bridge upgrade: %v", err)
		return
	}

	// The stream's context belongs to the view, not this request;
	// teardown is detach-driven.
	view := s.attach(user, band)
	notify := make(chan struct{}, 1)
	stopUpdates := view.stream.OnUpdate(func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	outbound := make(chan any, 8)
	done := make(chan struct{})

	// single writer goroutine; gorilla conns do not allow concurrent writes
	go func() {
		defer conn.Close()
		snapshot := func() any {
			return map[string]any{
				"type":     "messages",
				"state":    view.stream.State(),
				"messages": newMessageViews(view.stream.Messages(), user.ctx.UserID),
			}
		}
		if err := conn.WriteJSON(snapshot()); err != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case <-notify:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(snapshot()); err != nil {
					return
				}
			case payload := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(payload); err != nil {
					return
				}
			}
		}
	}()

	for {
		var gesture struct {
			Content string `json:"content"`
		}
		if err := conn.ReadJSON(&gesture); err != nil {
			break
		}
		if err := view.stream.Send(gesture.Content); err != nil {
			select {
			case outbound <- map[string]any{"type": "error", "error": err.Error()}:
			default:
			}
		}
	}

	close(done)
	stopUpdates()
	s.detach(user, band)
}
