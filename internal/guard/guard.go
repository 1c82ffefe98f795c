// Package guard exposes the pre-unload check the host UI shell runs
// before closing: a thin consumer of the pending-sync index with no
// independent state.
package guard

import (
	"sync"

	"github.com/mlefevre/brokersync/internal/store"
)

// PromptFunc asks the user whether to close despite unsynced entries.
// It receives the pending count and returns true to allow closing.
type PromptFunc func(pending int) bool

// Guard answers the host shell's close-time questions.
type Guard struct {
	store *store.Store

	mu      sync.RWMutex
	enabled bool
	prompt  PromptFunc
}

// New creates a Guard. The prompt may be nil; ConfirmClose then allows
// closing unconditionally.
func New(st *store.Store, prompt PromptFunc) *Guard {
	return &Guard{
		store:   st,
		enabled: true,
		prompt:  prompt,
	}
}

// HasPendingSync reports whether any unsynced entries exist.
func (g *Guard) HasPendingSync() bool {
	return g.store.HasPending()
}

// PendingSyncCount returns the number of unsynced entries.
func (g *Guard) PendingSyncCount() int {
	return g.store.PendingCount()
}

// SetEnabled toggles the close-time prompt.
func (g *Guard) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// ConfirmClose is invoked by the host shell on the page-close event.
// When the guard is enabled and unsynced entries exist, the user is
// prompted; otherwise closing is allowed immediately.
func (g *Guard) ConfirmClose() bool {
	g.mu.RLock()
	enabled := g.enabled
	prompt := g.prompt
	g.mu.RUnlock()

	if !enabled || prompt == nil {
		return true
	}

	pending := g.store.PendingCount()
	if pending == 0 {
		return true
	}
	return prompt(pending)
}
