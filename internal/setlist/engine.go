package setlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrNoActiveSetlist = errors.New("no active setlist")
	ErrUnknownSetlist  = errors.New("setlist not found")
	ErrUnknownSong     = errors.New("song not found")
	ErrOrderMismatch   = errors.New("reorder must carry every song of the active setlist exactly once")
)

// Backend is the slice of the API client the engine needs. *api.Client
// satisfies it; tests plug a fake.
type Backend interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// Engine holds one band's setlists and applies mutations optimistically,
// reconciling with server snapshots. One Engine per band view; safe for
// concurrent use from request handlers.
type Engine struct {
	bandID  int64
	backend Backend

	mu       sync.Mutex
	lists    []Setlist
	activeID int64 // 0 = none selected yet
}

func NewEngine(bandID int64, backend Backend) *Engine {
	return &Engine{bandID: bandID, backend: backend}
}

// Load refreshes every setlist of the band from the server. Songs are
// sorted by sequence on receipt; server order is not trusted. The active
// setlist is matched back by id so a background refresh never jumps the
// view to a different list. Transport errors are logged and leave the last
// known state in place (best-effort reload).
func (e *Engine) Load(ctx context.Context) error {
	var lists []Setlist
	if err := e.backend.Get(ctx, fmt.Sprintf("/setlists?bandId=%d", e.bandID), &lists); err != nil {
		log.Printf("setlist: load band %d: %v", e.bandID, err)
		return nil
	}

	for i := range lists {
		songs := lists[i].Songs
		sort.SliceStable(songs, func(a, b int) bool {
			return songs[a].Sequence < songs[b].Sequence
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists = lists
	if e.activeID != 0 {
		for i := range lists {
			if lists[i].ID == e.activeID {
				return nil
			}
		}
	}
	if len(lists) > 0 {
		e.activeID = lists[0].ID
	} else {
		e.activeID = 0
	}
	return nil
}

// SelectSetlist switches the active tab.
func (e *Engine) SelectSetlist(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.lists {
		if e.lists[i].ID == id {
			e.activeID = id
			return nil
		}
	}
	return ErrUnknownSetlist
}

func (e *Engine) CreateSetlist(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	body := map[string]any{"bandId": e.bandID, "title": title}
	if err := e.backend.Post(ctx, "/setlists", body, nil); err != nil {
		return err
	}
	return e.Load(ctx)
}

// AddSong appends a song to the active setlist. The sequence sent to the
// server is the current song count, i.e. the next free slot. On failure the
// caller keeps the draft; the engine never clears form state.
func (e *Engine) AddSong(ctx context.Context, draft SongDraft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return ErrEmptyTitle
	}

	e.mu.Lock()
	active := e.activeLocked()
	if active == nil {
		e.mu.Unlock()
		return ErrNoActiveSetlist
	}
	setlistID := active.ID
	sequence := len(active.Songs)
	e.mu.Unlock()

	body := map[string]any{
		"title":        draft.Title,
		"artist":       strings.TrimSpace(draft.Artist),
		"key":          strings.TrimSpace(draft.Key),
		"youtube_link": strings.TrimSpace(draft.YoutubeLink),
		"sequence":     sequence,
	}
	if err := e.backend.Post(ctx, fmt.Sprintf("/setlists/%d/songs", setlistID), body, nil); err != nil {
		return err
	}
	return e.Load(ctx)
}

// DeleteSong removes a song and reconciles. User confirmation happens in
// the presentation layer before this is ever dispatched.
func (e *Engine) DeleteSong(ctx context.Context, songID int64) error {
	if err := e.backend.Delete(ctx, fmt.Sprintf("/setlists/songs/%d", songID)); err != nil {
		return err
	}
	return e.Load(ctx)
}

// MoveSong translates a drop gesture (song dragged to toIndex) into a
// whole-list reorder of the active setlist.
func (e *Engine) MoveSong(ctx context.Context, songID int64, toIndex int) error {
	e.mu.Lock()
	active := e.activeLocked()
	if active == nil {
		e.mu.Unlock()
		return ErrNoActiveSetlist
	}
	from := -1
	for i := range active.Songs {
		if active.Songs[i].ID == songID {
			from = i
			break
		}
	}
	if from == -1 {
		e.mu.Unlock()
		return ErrUnknownSong
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex >= len(active.Songs) {
		toIndex = len(active.Songs) - 1
	}

	ids := make([]int64, 0, len(active.Songs))
	for i := range active.Songs {
		ids = append(ids, active.Songs[i].ID)
	}
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:toIndex], append([]int64{songID}, ids[toIndex:]...)...)
	e.mu.Unlock()

	return e.ReorderSongs(ctx, ids)
}

// ReorderSongs applies a new order to the active setlist. The local splice
// is visible immediately; one bulk request then carries the full ordered id
// list so the server recomputes a contiguous sequence from positions. On
// request failure the optimistic order is discarded by reloading the last
// known-good server state.
func (e *Engine) ReorderSongs(ctx context.Context, orderedIDs []int64) error {
	e.mu.Lock()
	active := e.activeLocked()
	if active == nil {
		e.mu.Unlock()
		return ErrNoActiveSetlist
	}
	if len(orderedIDs) != len(active.Songs) {
		e.mu.Unlock()
		return ErrOrderMismatch
	}
	byID := make(map[int64]Song, len(active.Songs))
	for i := range active.Songs {
		byID[active.Songs[i].ID] = active.Songs[i]
	}
	reordered := make([]Song, 0, len(orderedIDs))
	for pos, id := range orderedIDs {
		song, ok := byID[id]
		if !ok {
			e.mu.Unlock()
			return ErrOrderMismatch
		}
		delete(byID, id)
		song.Sequence = pos
		reordered = append(reordered, song)
	}
	active.Songs = reordered
	e.mu.Unlock()

	body := map[string]any{"songIds": orderedIDs}
	if err := e.backend.Patch(ctx, "/setlists/reorder-songs", body, nil); err != nil {
		log.Printf("setlist: reorder band %d: %v", e.bandID, err)
		if lerr := e.Load(ctx); lerr != nil {
			return lerr
		}
		return err
	}
	return nil
}

// CycleSongStatus advances a song along pending -> learning -> ready ->
// pending. The new status is applied before the request so the chip flips
// instantly; a rejected request rolls the song back to its prior status.
func (e *Engine) CycleSongStatus(ctx context.Context, songID int64) (Status, error) {
	e.mu.Lock()
	song := e.findSongLocked(songID)
	if song == nil {
		e.mu.Unlock()
		return "", ErrUnknownSong
	}
	prev := song.Status
	next := prev.Next()
	song.Status = next
	e.mu.Unlock()

	body := map[string]any{"status": next}
	if err := e.backend.Patch(ctx, fmt.Sprintf("/setlists/songs/%d", songID), body, nil); err != nil {
		e.mu.Lock()
		if song := e.findSongLocked(songID); song != nil && song.Status == next {
			song.Status = prev
		}
		e.mu.Unlock()
		return prev, err
	}
	return next, nil
}

// SetLyrics stores the lyrics/chords blob and reconciles on success. On
// failure the editor stays open with the typed text; the engine only
// reports the error.
func (e *Engine) SetLyrics(ctx context.Context, songID int64, text string) error {
	body := map[string]any{"lyrics": text}
	if err := e.backend.Patch(ctx, fmt.Sprintf("/setlists/songs/%d", songID), body, nil); err != nil {
		return err
	}
	return e.Load(ctx)
}

// Setlists returns a copy of all setlists for rendering.
func (e *Engine) Setlists() []Setlist {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Setlist, len(e.lists))
	for i := range e.lists {
		out[i] = e.lists[i]
		out[i].Songs = append([]Song(nil), e.lists[i].Songs...)
	}
	return out
}

// Active returns a copy of the active setlist, if one is selected.
func (e *Engine) Active() (Setlist, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := e.activeLocked()
	if active == nil {
		return Setlist{}, false
	}
	out := *active
	out.Songs = append([]Song(nil), active.Songs...)
	return out, true
}

func (e *Engine) activeLocked() *Setlist {
	for i := range e.lists {
		if e.lists[i].ID == e.activeID {
			return &e.lists[i]
		}
	}
	return nil
}

func (e *Engine) findSongLocked(songID int64) *Song {
	active := e.activeLocked()
	if active == nil {
		return nil
	}
	for i := range active.Songs {
		if active.Songs[i].ID == songID {
			return &active.Songs[i]
		}
	}
	return nil
}
