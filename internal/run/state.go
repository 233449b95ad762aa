package run

import (
	"sync/atomic"

	"github.com/ytshelf/ytshelf-go/internal/errors"
)

// Status is the lifecycle state of the orchestrator
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

var statusCodes = map[Status]int32{
	StatusIdle:      0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusCancelled: 3,
	StatusFailed:    4,
}

var codeStatuses = map[int32]Status{
	0: StatusIdle,
	1: StatusRunning,
	2: StatusCompleted,
	3: StatusCancelled,
	4: StatusFailed,
}

// State tracks whether a run is in flight. Transitions are compare-and-
// swap so two concurrent Start calls can never both win.
type State struct {
	code atomic.Int32
}

// NewState creates an idle state
func NewState() *State {
	return &State{}
}

// Begin moves the state to running. Fails with AlreadyRunning when a
// run is already in flight; any settled state may start a new run.
func (s *State) Begin() error {
	for {
		cur := s.code.Load()
		if codeStatuses[cur] == StatusRunning {
			return errors.NewAlreadyRunningError()
		}
		if s.code.CompareAndSwap(cur, statusCodes[StatusRunning]) {
			return nil
		}
	}
}

// Finish settles a running state. Only running can settle; a stale
// Finish after another run began is ignored.
func (s *State) Finish(status Status) {
	if status != StatusCompleted && status != StatusCancelled && status != StatusFailed {
		return
	}
	s.code.CompareAndSwap(statusCodes[StatusRunning], statusCodes[status])
}

// Current returns the current status
func (s *State) Current() Status {
	return codeStatuses[s.code.Load()]
}

// IsRunning reports whether a run is in flight
func (s *State) IsRunning() bool {
	return s.Current() == StatusRunning
}
