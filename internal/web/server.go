package web

import (
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"bandmate-web/internal/api"
	"bandmate-web/internal/chat"
	"bandmate-web/internal/session"
	"bandmate-web/internal/setlist"
)

//go:embed templates/*.gohtml
var tplFS embed.FS

type ctxKey int

const userKey ctxKey = 0

// Server renders the band views and translates browser gestures into
// Setlist Engine and Chat Stream operations. One engine and one stream per
// (session, band) pair, created lazily and torn down when the last chat
// bridge detaches.
type Server struct {
	backend  *api.Client
	sessions *session.Store
	cookies  *session.Cookies

	// newTransport builds the realtime connection for one chat stream.
	// Injected so tests can run against fakes.
	newTransport func() chat.Transport

	mu    sync.Mutex
	views map[viewKey]*bandView
}

type viewKey struct {
	sessionID string
	bandID    int64
}

// bandView is the per-session, per-band client state: the setlist engine
// plus the chat stream, reference-counted by attached chat bridges. The
// stream's context spans the view's whole lifetime, not any one bridge's.
type bandView struct {
	engine *setlist.Engine
	stream *chat.Stream
	refs   int
	cancel context.CancelFunc
}

func NewServer(backend *api.Client, sessions *session.Store, cookies *session.Cookies, newTransport func() chat.Transport) *Server {
	return &Server{
		backend:      backend,
		sessions:     sessions,
		cookies:      cookies,
		newTransport: newTransport,
		views:        make(map[viewKey]*bandView),
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/session", s.handleOpenSession)
	r.Delete("/session", s.handleCloseSession)

	r.Group(func(r chi.Router) {
		r.Use(s.withUser)

		r.Get("/bands/{bandID}/setlist", s.page("setlist.gohtml"))
		r.Get("/bands/{bandID}/setlist/print", s.page("print.gohtml"))
		r.Get("/bands/{bandID}/chat", s.page("chat.gohtml"))

		r.Get("/ui/bands/{bandID}/setlists", s.handleSetlistSnapshot)
		r.Post("/ui/bands/{bandID}/setlists", s.handleCreateSetlist)
		r.Post("/ui/bands/{bandID}/setlists/{setlistID}/select", s.handleSelectSetlist)
		r.Post("/ui/bands/{bandID}/songs", s.handleAddSong)
		r.Delete("/ui/bands/{bandID}/songs/{songID}", s.handleDeleteSong)
		r.Post("/ui/bands/{bandID}/songs/{songID}/move", s.handleMoveSong)
		r.Post("/ui/bands/{bandID}/songs/{songID}/status", s.handleCycleStatus)
		r.Post("/ui/bands/{bandID}/songs/{songID}/lyrics", s.handleSetLyrics)

		r.Get("/ui/bands/{bandID}/messages", s.handleMessages)
		r.Post("/ui/bands/{bandID}/messages", s.handleSendMessage)
		r.Get("/bands/{bandID}/chat/ws", s.handleChatBridge)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bandmate-web",
	})
}

// handleOpenSession constructs the session context at the application
// boundary. Authentication itself happens in the backend; this tier only
// records who the backend said the user is.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body session.Context
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	id, err := s.sessions.Save(r.Context(), body)
	if err != nil {
		log.Printf("web: open session: %v", err)
		writeError(w, http.StatusInternalServerError, "session store error")
		return
	}
	if err := s.cookies.SetSessionID(w, r, id); err != nil {
		log.Printf("web: session cookie: %v", err)
		writeError(w, http.StatusInternalServerError, "session cookie error")
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.cookies.SessionID(r); ok {
		if err := s.sessions.Delete(r.Context(), id); err != nil {
			log.Printf("web: close session: %v", err)
		}
	}
	_ = s.cookies.Clear(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// withUser resolves the session cookie into the session context and hands
// it down explicitly via the request context.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.cookies.SessionID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "no session")
			return
		}
		user, err := s.sessions.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, sessionUser{id: id, ctx: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sessionUser struct {
	id  string
	ctx session.Context
}

func currentUser(r *http.Request) sessionUser {
	u, _ := r.Context().Value(userKey).(sessionUser)
	return u
}

func bandID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bandID"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := bandID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid band id")
			return
		}
		tpl, err := template.ParseFS(tplFS, "templates/base.gohtml", "templates/"+name)
		if err != nil {
			http.Error(w, "template error", http.StatusInternalServerError)
			return
		}

		user := currentUser(r)
		data := map[string]any{
			"BandID": id,
			"User":   user.ctx,
			"Path":   r.URL.Path,
		}
		if name == "print.gohtml" {
			view := s.viewFor(user, id)
			if err := view.engine.Load(r.Context()); err != nil {
				log.Printf("web: print load: %v", err)
			}
			active, hasActive := view.engine.Active()
			data["Setlist"] = newSetlistView(id, view.engine.Setlists(), active, hasActive)
		}

		if err := tpl.ExecuteTemplate(w, "base", data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// viewFor returns the band view for this session, creating engine and
// stream on first use.
func (s *Server) viewFor(user sessionUser, band int64) *bandView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(user, band)
}

func (s *Server) viewLocked(user sessionUser, band int64) *bandView {
	key := viewKey{sessionID: user.id, bandID: band}
	if v, ok := s.views[key]; ok {
		return v
	}
	v := &bandView{
		engine: setlist.NewEngine(band, s.backend),
		stream: chat.NewStream(band, user.ctx.UserID, user.ctx.FullName, s.backend, s.newTransport()),
	}
	s.views[key] = v
	return v
}

// attach counts a chat bridge onto the view, opening the stream on the
// first one. Lookup and count share one critical section; callers must
// use the returned view, a concurrent detach may have dropped the map
// entry they looked up earlier.
func (s *Server) attach(user sessionUser, band int64) *bandView {
	s.mu.Lock()
	v := s.viewLocked(user, band)
	v.refs++
	var openCtx context.Context
	if v.refs == 1 {
		openCtx, v.cancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	if openCtx != nil {
		v.stream.Open(openCtx)
	}
	return v
}

// detach drops a bridge; the last one cancels the stream's context,
// closes it and forgets the view, which is the unmount teardown of the
// original UI.
func (s *Server) detach(user sessionUser, band int64) {
	key := viewKey{sessionID: user.id, bandID: band}

	s.mu.Lock()
	v, ok := s.views[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	v.refs--
	last := v.refs <= 0
	if last {
		delete(s.views, key)
	}
	s.mu.Unlock()

	if last {
		if v.cancel != nil {
			v.cancel()
		}
		v.stream.Close()
	}
}
