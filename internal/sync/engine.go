// Package sync reconciles pending local drafts against the remote system
// of record.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/models"
	"github.com/mlefevre/brokersync/internal/netmon"
	"github.com/mlefevre/brokersync/internal/store"
)

// RecordStore is the remote system of record: a partial-update-by-id
// interface accepting a sparse field map. It must tolerate repeated
// idempotent updates and partial field sets.
type RecordStore interface {
	UpdateRecord(ctx context.Context, entityID string, fields map[string]interface{}) error
}

// Config holds engine timing configuration.
type Config struct {
	SyncInterval   time.Duration // periodic pass interval when online with pending work
	ReconnectDelay time.Duration // delay before the pass triggered by went-online
	FieldMap       models.FieldMap
}

// DefaultConfig returns the fixed intervals the engine ships with. There
// is deliberately no backoff growth on repeated failure; retries are
// purely interval and event driven.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:   30 * time.Second,
		ReconnectDelay: 1 * time.Second,
		FieldMap:       models.EstimationFieldMap,
	}
}

// Engine pushes pending drafts to the remote system of record and keeps
// the aggregate Status current. One pass runs at a time; entities are
// processed sequentially in index insertion order with continue-on-error
// semantics.
type Engine struct {
	store   *store.Store
	remote  RecordStore
	monitor *netmon.Monitor
	status  *Status
	cfg     *Config

	mu          stdsync.Mutex
	syncing     bool
	lastReport  *PassReport
	running     bool
	stopCh      chan struct{}
	wg          stdsync.WaitGroup
	unsubscribe func()
}

// New creates an Engine. A nil cfg selects DefaultConfig.
func New(st *store.Store, remote RecordStore, monitor *netmon.Monitor, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FieldMap == nil {
		cfg.FieldMap = models.EstimationFieldMap
	}
	e := &Engine{
		store:   st,
		remote:  remote,
		monitor: monitor,
		status:  NewStatus(),
		cfg:     cfg,
	}
	e.refreshIdleStatus()
	return e
}

// Status returns the engine's observable status cell.
func (e *Engine) Status() *Status {
	return e.status
}

// LastReport returns the report of the most recent pass, or nil.
func (e *Engine) LastReport() *PassReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// SyncToServer runs one reconciliation pass. Offline is a no-op returning
// false; an empty pending index resolves to synced and returns true.
// Otherwise every pending entity is pushed in order, failures logged and
// skipped, and the return value reports whether all of them succeeded.
// A pass already in flight makes this call a no-op returning false.
func (e *Engine) SyncToServer(ctx context.Context) bool {
	if !e.monitor.IsOnline() {
		e.status.set(StateOffline)
		return false
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return false
	}
	e.syncing = true
	e.mu.Unlock()

	ids, err := e.store.PendingIDs()
	if err != nil {
		logging.Error("Failed to read pending index", err, nil)
		e.clearSyncing()
		e.settle(false)
		return false
	}
	if len(ids) == 0 {
		e.clearSyncing()
		e.settle(true)
		return true
	}

	e.status.set(StateSyncing)
	report := &PassReport{StartTime: time.Now()}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			report.add(id, ctx.Err())
			continue
		default:
		}

		if err := e.pushEntity(ctx, id); err != nil {
			logging.Warn("Entity sync failed",
				map[string]interface{}{"entity_id": id, "error": err.Error()})
			report.add(id, err)
			continue
		}
		report.add(id, nil)
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	e.mu.Lock()
	e.syncing = false
	e.lastReport = report
	e.mu.Unlock()

	e.settle(report.AllSucceeded())

	logging.Info("Sync pass complete",
		map[string]interface{}{
			"succeeded": report.Succeeded,
			"failed":    report.Failed,
			"duration":  report.Duration.String(),
		})

	return report.AllSucceeded()
}

func (e *Engine) clearSyncing() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

// settle publishes the end-of-pass status. Offline overrides the pass
// outcome: when the link dropped mid-pass the went-offline state must
// stand until reconnect, whatever the report says. Partial success still
// reports error; callers needing per-entity detail inspect the pass
// report.
func (e *Engine) settle(allSucceeded bool) {
	if !e.monitor.IsOnline() {
		e.status.set(StateOffline)
		return
	}
	if allSucceeded {
		e.status.set(StateSynced)
	} else {
		e.status.set(StateError)
	}
}

// ForceSync is the user-triggered equivalent of SyncToServer. A no-op
// returning false while offline.
func (e *Engine) ForceSync(ctx context.Context) bool {
	if !e.monitor.IsOnline() {
		e.status.set(StateOffline)
		return false
	}
	return e.SyncToServer(ctx)
}

// pushEntity maps one draft onto the remote schema and performs the
// partial update, marking the entity synced on success.
func (e *Engine) pushEntity(ctx context.Context, entityID string) error {
	ent, err := e.store.GetLocal(entityID)
	if err != nil {
		return err
	}
	if ent == nil {
		// Index entry without a draft; drop it from the index.
		return e.store.MarkSynced(entityID)
	}

	fields := e.cfg.FieldMap.Apply(ent.Draft)
	if err := e.remote.UpdateRecord(ctx, entityID, fields); err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "remote update failed", err)
	}

	return e.store.MarkSynced(entityID)
}

// Start wires the automatic triggers: a delayed pass on reconnect and a
// periodic pass while online with pending work. Stop undoes both.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.unsubscribe = e.monitor.Subscribe(func(event netmon.Event) {
		switch event {
		case netmon.EventWentOffline:
			e.status.set(StateOffline)
		case netmon.EventWentOnline:
			e.refreshIdleStatus()
			// Debounce network flapping before the reconnect pass.
			time.AfterFunc(e.cfg.ReconnectDelay, func() {
				select {
				case <-stopCh:
					return
				default:
				}
				e.SyncToServer(ctx)
			})
		}
	})

	e.wg.Add(1)
	go e.periodicLoop(ctx, stopCh)

	logging.Info("Sync engine started",
		map[string]interface{}{
			"sync_interval":   e.cfg.SyncInterval.String(),
			"reconnect_delay": e.cfg.ReconnectDelay.String(),
		})
}

// Stop halts the automatic triggers. A pass in flight runs to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.wg.Wait()

	logging.Info("Sync engine stopped", nil)
}

func (e *Engine) periodicLoop(ctx context.Context, stopCh chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if e.monitor.IsOnline() && e.store.HasPending() {
				e.SyncToServer(ctx)
			}
		}
	}
}

// RefreshStatus re-derives the resting state from connectivity and the
// pending index. Called by the host after local saves so the pending
// badge appears without waiting for the next pass.
func (e *Engine) RefreshStatus() {
	e.mu.Lock()
	syncing := e.syncing
	e.mu.Unlock()
	if syncing {
		return
	}
	e.refreshIdleStatus()
}

// refreshIdleStatus derives the resting state from connectivity and the
// pending index: offline overrides everything, then pending, then synced.
func (e *Engine) refreshIdleStatus() {
	if !e.monitor.IsOnline() {
		e.status.set(StateOffline)
		return
	}
	if e.store.HasPending() {
		e.status.set(StatePending)
		return
	}
	e.status.set(StateSynced)
}
