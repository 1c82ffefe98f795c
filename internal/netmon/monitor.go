// Package netmon observes connectivity transitions and classifies link quality.
// It is the single source of truth for connectivity, consumed by the sync
// engine and the upload queues.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/models"
)

// Event is a connectivity transition notification.
type Event string

const (
	EventWentOnline  Event = "went-online"
	EventWentOffline Event = "went-offline"
)

// Prober is the platform-level connectivity primitive. A probe failure
// means the link is down; a probe that cannot classify link quality
// reports EffectiveTypeUnknown.
type Prober interface {
	Probe(ctx context.Context) models.ConnectivitySample
}

// Monitor tracks the current connectivity sample and notifies subscribers
// on online/offline transitions. It is a pure observer with no other side
// effects.
type Monitor struct {
	mu     sync.RWMutex
	sample models.ConnectivitySample
	subs   map[int]func(Event)
	nextID int
}

// New creates a Monitor. The initial state is online with unknown link
// quality, matching a freshly started host shell.
func New() *Monitor {
	return &Monitor{
		sample: models.ConnectivitySample{
			IsOnline:      true,
			EffectiveType: models.EffectiveTypeUnknown,
		},
		subs: make(map[int]func(Event)),
	}
}

// IsOnline returns the current connectivity.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sample.IsOnline
}

// IsSlowConnection reports whether the current link is classified slow.
// When link-quality introspection is unavailable this is always false.
func (m *Monitor) IsSlowConnection() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sample.IsSlowConnection()
}

// Sample returns the most recent connectivity sample.
func (m *Monitor) Sample() models.ConnectivitySample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sample
}

// Subscribe registers a transition callback and returns an unsubscribe
// function. Callbacks run synchronously on the goroutine applying the
// state change; subscribers must not block.
func (m *Monitor) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetState applies a new connectivity sample. Subscribers are notified
// only when the online/offline bit actually flips.
func (m *Monitor) SetState(sample models.ConnectivitySample) {
	m.mu.Lock()
	wasOnline := m.sample.IsOnline
	m.sample = sample
	var fns []func(Event)
	if wasOnline != sample.IsOnline {
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	event := EventWentOffline
	if sample.IsOnline {
		event = EventWentOnline
	}
	logging.Info("Connectivity changed",
		map[string]interface{}{
			"online":         sample.IsOnline,
			"effective_type": string(sample.EffectiveType),
		})
	for _, fn := range fns {
		fn(event)
	}
}

// Watch polls the prober at the given interval and feeds samples into the
// monitor until the context is cancelled.
func (m *Monitor) Watch(ctx context.Context, prober Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetState(prober.Probe(ctx))
		}
	}
}
