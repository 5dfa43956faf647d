package web

import (
	"time"

	"bandmate-web/internal/chat"
	"bandmate-web/internal/setlist"
)

// View models rendered into templates and the gesture JSON responses.
// Status chip text/class come from the Status type, never from string
// comparison at the call site.

type setlistTabView struct {
	ID        int64  `json:"setlist_id"`
	Title     string `json:"title"`
	SongCount int    `json:"song_count"`
	Active    bool   `json:"active"`
}

type songView struct {
	ID          int64  `json:"song_id"`
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Key         string `json:"key"`
	YoutubeLink string `json:"youtube_link"`
	HasLyrics   bool   `json:"has_lyrics"`
	Lyrics      string `json:"lyrics"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	ChipClass   string `json:"chip_class"`
	Sequence    int    `json:"sequence"`
}

type setlistView struct {
	BandID int64            `json:"band_id"`
	Tabs   []setlistTabView `json:"setlists"`
	Active *activeView      `json:"active,omitempty"`
}

type activeView struct {
	ID    int64      `json:"setlist_id"`
	Title string     `json:"title"`
	Songs []songView `json:"songs"`
}

type messageView struct {
	UserID    int64  `json:"user_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Clock     string `json:"clock"`
	Mine      bool   `json:"mine"`
	Pending   bool   `json:"pending"`
}

func newSetlistView(bandID int64, lists []setlist.Setlist, active setlist.Setlist, hasActive bool) setlistView {
	view := setlistView{BandID: bandID}
	for _, l := range lists {
		view.Tabs = append(view.Tabs, setlistTabView{
			ID:        l.ID,
			Title:     l.Title,
			SongCount: len(l.Songs),
			Active:    hasActive && l.ID == active.ID,
		})
	}
	if hasActive {
		av := &activeView{ID: active.ID, Title: active.Title}
		for i, s := range active.Songs {
			av.Songs = append(av.Songs, songView{
				ID:          s.ID,
				Index:       i + 1,
				Title:       s.Title,
				Artist:      s.Artist,
				Key:         s.Key,
				YoutubeLink: s.YoutubeLink,
				HasLyrics:   s.Lyrics != "",
				Lyrics:      s.Lyrics,
				Status:      string(s.Status),
				StatusLabel: s.Status.Label(),
				ChipClass:   s.Status.ChipClass(),
				Sequence:    s.Sequence,
			})
		}
		view.Active = av
	}
	return view
}

func newMessageViews(msgs []chat.Message, viewerID int64) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			UserID:    m.UserID,
			Sender:    m.Sender.FullName,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
			Clock:     m.CreatedAt.Local().Format("15:04"),
			Mine:      m.UserID == viewerID,
			Pending:   m.Pending,
		})
	}
	return out
}
