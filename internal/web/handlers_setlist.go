package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bandmate-web/internal/setlist"
)

func songID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "songID"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleSetlistSnapshot(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.Load(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

func (s *Server) writeSetlistSnapshot(w http.ResponseWriter, band int64, view *bandView) {
	active, hasActive := view.engine.Active()
	writeJSON(w, http.StatusOK, newSetlistView(band, view.engine.Setlists(), active, hasActive))
}

func (s *Server) handleCreateSetlist(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.CreateSetlist(r.Context(), body.Title); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

func (s *Server) handleSelectSetlist(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	listID, err := strconv.ParseInt(chi.URLParam(r, "setlistID"), 10, 64)
	if err != nil || listID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid setlist id")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.SelectSetlist(listID); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	var draft setlist.SongDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.AddSong(r.Context(), draft); err != nil {
		// the browser keeps the typed form on failure
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

// handleDeleteSong dispatches only after the browser confirmed the delete;
// an unconfirmed request is refused before anything reaches the engine.
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	song, ok := songID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "delete requires confirmation")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.DeleteSong(r.Context(), song); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

// handleMoveSong is the drop gesture: the dragged song plus its target
// index inside the active setlist.
func (s *Server) handleMoveSong(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	song, ok := songID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	var body struct {
		ToIndex int `json:"to_index"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.MoveSong(r.Context(), song, body.ToIndex); err != nil {
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	song, ok := songID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	view := s.viewFor(currentUser(r), band)
	status, err := view.engine.CycleSongStatus(r.Context(), song)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"song_id":      song,
		"status":       status,
		"status_label": status.Label(),
		"chip_class":   status.ChipClass(),
	})
}

func (s *Server) handleSetLyrics(w http.ResponseWriter, r *http.Request) {
	band, ok := bandID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid band id")
		return
	}
	song, ok := songID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	var body struct {
		Lyrics string `json:"lyrics"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view := s.viewFor(currentUser(r), band)
	if err := view.engine.SetLyrics(r.Context(), song, body.Lyrics); err != nil {
		// the editor stays open with the typed text
		writeOpError(w, err)
		return
	}
	s.writeSetlistSnapshot(w, band, view)
}
