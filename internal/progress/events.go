package progress

import "time"

// Event types emitted by the run orchestrator
const (
	TypeProgress = "progress"
	TypeStatus   = "status"
	TypeComplete = "complete"
)

// ProgressEvent reports the entry currently being reconciled
type ProgressEvent struct {
	CurrentItem string    `json:"current_item"`
	Playlist    string    `json:"playlist"`
	Song        string    `json:"song"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatusEvent reports whether a run is active
type StatusEvent struct {
	IsRunning bool      `json:"is_running"`
	Timestamp time.Time `json:"timestamp"`
}

// CompleteEvent reports the outcome of a finished run
type CompleteEvent struct {
	Success   bool      `json:"success"`
	Cancelled bool      `json:"cancelled"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the envelope broadcast to subscribers
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
