package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"bandmate-web/internal/api"
	"bandmate-web/internal/chat"
	"bandmate-web/internal/setlist"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOpError maps engine/stream failures onto the transient error JSON the
// views show. Validation errors stay 4xx; backend rejections keep their
// status when it is a client fault, everything else is a bad gateway.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, setlist.ErrEmptyTitle),
		errors.Is(err, setlist.ErrOrderMismatch),
		errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, setlist.ErrUnknownSetlist),
		errors.Is(err, setlist.ErrUnknownSong),
		errors.Is(err, setlist.ErrNoActiveSetlist):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrNotConnected):
		writeError(w, http.StatusConflict, "chat connection is not live")
	default:
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Status >= 400 && apiErr.Status < 500 {
				writeError(w, apiErr.Status, apiErr.Message)
				return
			}
			writeError(w, http.StatusBadGateway, apiErr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}
