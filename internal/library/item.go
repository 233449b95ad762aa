package library

import "time"

// Status represents the download state of a ledger record
type Status string

const (
	// StatusDownloaded means the file exists at the recorded path
	StatusDownloaded Status = "downloaded"
	// StatusFailed means the last acquisition attempt failed
	StatusFailed Status = "failed"
	// StatusPending means the song is known but not yet (or no longer) on disk
	StatusPending Status = "pending"
)

// Item is the durable record of one physically stored song. There is at
// most one item per video id system-wide; the file path is a derived
// value, the video id is the identity.
type Item struct {
	VideoID    string    `json:"video_id"`
	Path       string    `json:"path"`
	Status     Status    `json:"status"`
	Album      string    `json:"album,omitempty"` // empty means unsorted
	Artist     string    `json:"artist,omitempty"`
	Title      string    `json:"title,omitempty"`
	TrackIndex int       `json:"track_index,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a copy of the item so callers cannot mutate ledger state
func (i *Item) Clone() *Item {
	c := *i
	return &c
}
