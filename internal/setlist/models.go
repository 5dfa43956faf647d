package setlist

// Setlist is an ordered collection of songs owned by one band. Order is
// performance order.
type Setlist struct {
	ID     int64  `json:"setlist_id"`
	BandID int64  `json:"band_id"`
	Title  string `json:"title"`
	Songs  []Song `json:"songs"`
}

// Song belongs to a setlist. Songs are ordered by Sequence (0-based).
type Song struct {
	ID          int64  `json:"song_id"`
	SetlistID   int64  `json:"setlist_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Key         string `json:"key,omitempty"`
	YoutubeLink string `json:"youtube_link,omitempty"`
	Lyrics      string `json:"lyrics,omitempty"`
	Status      Status `json:"status"`
	Sequence    int    `json:"sequence"`
}

// SongDraft is the add-song form payload. Sequence is assigned by the
// engine, never by the user.
type SongDraft struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Key         string `json:"key"`
	YoutubeLink string `json:"youtube_link"`
}

// Status is the rehearsal state of a song.
type Status string

const (
	StatusPending  Status = "pending"
	StatusLearning Status = "learning"
	StatusReady    Status = "ready"
)

// statusNext is the fixed rotation pending -> learning -> ready -> pending.
var statusNext = map[Status]Status{
	StatusPending:  StatusLearning,
	StatusLearning: StatusReady,
	StatusReady:    StatusPending,
}

// Next returns the following status in the cycle. Unknown values are
// normalized to pending so a bad backend value cannot wedge the cycle.
func (s Status) Next() Status {
	if next, ok := statusNext[s]; ok {
		return next
	}
	return StatusPending
}

func (s Status) Valid() bool {
	_, ok := statusNext[s]
	return ok
}

// Label is the status chip text shown in the views.
func (s Status) Label() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusLearning:
		return "Learning"
	default:
		return "Pending"
	}
}

// ChipClass is the css class of the status chip.
func (s Status) ChipClass() string {
	switch s {
	case StatusReady:
		return "chip chip-ready"
	case StatusLearning:
		return "chip chip-learning"
	default:
		return "chip chip-pending"
	}
}
