// Package autosave coalesces bursts of rapid mutation into one deferred
// save invocation per entity.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mlefevre/brokersync/internal/logging"
)

// SaveFunc persists the current draft state. It is re-read at timer fire
// time, so the scheduler always invokes the most recently configured
// function, never a stale one.
type SaveFunc func(ctx context.Context) error

// Scheduler debounces save requests for a single entity. At most one save
// invocation is in flight per instance; a request arriving mid-save is
// dropped and the state it represents is picked up by the next scheduled
// save, which re-reads the latest mutation state anyway.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      SaveFunc
	enabled bool
	timer   *time.Timer
	saving  bool
}

// New creates an idle, disabled Scheduler. Call Configure before use.
func New() *Scheduler {
	return &Scheduler{}
}

// Configure updates the debounce delay, the save function cell and the
// enabled flag. Disabling cancels any pending timer.
func (s *Scheduler) Configure(delay time.Duration, fn SaveFunc, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delay = delay
	s.fn = fn
	s.enabled = enabled

	if !enabled && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ScheduleSave arms (or re-arms) the debounce timer. No-op while a save is
// already in flight or when the scheduler is disabled.
func (s *Scheduler) ScheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.saving {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// CancelSave cancels a pending timer without invoking the save function.
func (s *Scheduler) CancelSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ForceSave cancels any pending timer and invokes the current save
// function immediately, waiting for it to complete. Returns nil without
// saving when disabled or when a save is already in flight.
func (s *Scheduler) ForceSave() error {
	s.mu.Lock()
	if !s.enabled || s.saving {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	fn := s.fn
	s.saving = true
	s.mu.Unlock()

	err := s.invoke(fn)

	s.mu.Lock()
	s.saving = false
	s.mu.Unlock()
	return err
}

// IsSaving reports whether a save invocation is currently executing.
func (s *Scheduler) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// fire runs on timer expiry. It reads through the save-function cell so a
// Configure call between scheduling and firing is honored.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.enabled || s.saving {
		s.mu.Unlock()
		return
	}
	fn := s.fn
	s.saving = true
	s.timer = nil
	s.mu.Unlock()

	if err := s.invoke(fn); err != nil {
		// No automatic retry; the next mutation reschedules naturally.
		logging.Error("Auto-save failed", err, nil)
	}

	s.mu.Lock()
	s.saving = false
	s.mu.Unlock()
}

// invoke runs the save function, converting a panic into an error so a
// misbehaving callback cannot take the scheduler down.
func (s *Scheduler) invoke(fn SaveFunc) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save function panicked: %v", r)
		}
	}()
	return fn(context.Background())
}
