package run

import (
	"sync"
	"testing"

	"github.com/ytshelf/ytshelf-go/internal/errors"
)

func TestStateLifecycle(t *testing.T) {
	state := NewState()

	if got := state.Current(); got != StatusIdle {
		t.Errorf("Current() = %q, want %q", got, StatusIdle)
	}
	if err := state.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !state.IsRunning() {
		t.Error("IsRunning() = false after Begin")
	}

	if err := state.Begin(); !errors.IsAlreadyRunning(err) {
		t.Errorf("second Begin() error = %v, want already running", err)
	}

	state.Finish(StatusCompleted)
	if got := state.Current(); got != StatusCompleted {
		t.Errorf("Current() = %q, want %q", got, StatusCompleted)
	}

	// A settled state can start again
	if err := state.Begin(); err != nil {
		t.Errorf("Begin() after settle error = %v", err)
	}
}

func TestStateFinishIgnoresInvalid(t *testing.T) {
	state := NewState()
	if err := state.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	state.Finish(StatusRunning)
	if !state.IsRunning() {
		t.Error("Finish(running) changed state")
	}
	state.Finish(StatusIdle)
	if !state.IsRunning() {
		t.Error("Finish(idle) changed state")
	}
}

func TestStateOnlyOneWinner(t *testing.T) {
	state := NewState()

	var wg sync.WaitGroup
	wins := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if state.Begin() == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("%d Begin() calls won, want exactly 1", count)
	}
}
