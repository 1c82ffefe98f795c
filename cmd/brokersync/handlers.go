package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mlefevre/brokersync/internal/autosave"
	"github.com/mlefevre/brokersync/internal/guard"
	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/netmon"
	"github.com/mlefevre/brokersync/internal/store"
	syncpkg "github.com/mlefevre/brokersync/internal/sync"
	"github.com/mlefevre/brokersync/internal/upload"
)

// maxPhotoUpload bounds a single multipart photo submission.
const maxPhotoUpload = 32 << 20

// API exposes the sync core to the host UI shell over local HTTP. Upload
// queues and autosave schedulers are created lazily per entity and live
// for the life of the daemon.
type API struct {
	store      *store.Store
	engine     *syncpkg.Engine
	monitor    *netmon.Monitor
	blobs      upload.BlobStore
	closeGuard *guard.Guard
	hub        *WSHub

	autosaveDelay time.Duration

	mu         sync.Mutex
	queues     map[string]*upload.Queue
	schedulers map[string]*autosave.Scheduler
	deltas     map[string]map[string]interface{}
	reporting  map[string]bool
}

// NewAPI creates the daemon's HTTP API.
func NewAPI(st *store.Store, engine *syncpkg.Engine, monitor *netmon.Monitor,
	blobs upload.BlobStore, closeGuard *guard.Guard, hub *WSHub, autosaveDelay time.Duration) *API {
	return &API{
		store:         st,
		engine:        engine,
		monitor:       monitor,
		blobs:         blobs,
		closeGuard:    closeGuard,
		hub:           hub,
		autosaveDelay: autosaveDelay,
		queues:        make(map[string]*upload.Queue),
		schedulers:    make(map[string]*autosave.Scheduler),
		deltas:        make(map[string]map[string]interface{}),
		reporting:     make(map[string]bool),
	}
}

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", a.GetStatus)
	mux.HandleFunc("POST /sync", a.ForceSync)
	mux.HandleFunc("PUT /entities/{id}/draft", a.SaveDraft)
	mux.HandleFunc("GET /entities/{id}/draft", a.GetDraft)
	mux.HandleFunc("POST /entities/{id}/draft/flush", a.FlushDraft)
	mux.HandleFunc("POST /entities/{id}/photos", a.AddPhotos)
	mux.HandleFunc("GET /entities/{id}/photos", a.ListPhotos)
	mux.HandleFunc("POST /entities/{id}/photos/retry", a.RetryPhotos)
	mux.HandleFunc("DELETE /entities/{id}/photos/{photoID}", a.RemovePhoto)
}

// GetStatus handles GET /status
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	sample := a.monitor.Sample()
	writeJSON(w, map[string]interface{}{
		"status":         string(a.engine.Status().Get()),
		"pending":        a.closeGuard.PendingSyncCount(),
		"can_close":      a.closeGuard.ConfirmClose(),
		"online":         sample.IsOnline,
		"effective_type": string(sample.EffectiveType),
		"slow":           sample.IsSlowConnection(),
	})
}

// ForceSync handles POST /sync
func (a *API) ForceSync(w http.ResponseWriter, r *http.Request) {
	ok := a.engine.ForceSync(r.Context())
	report := a.engine.LastReport()

	response := map[string]interface{}{
		"succeeded": ok,
		"status":    string(a.engine.Status().Get()),
	}
	if report != nil {
		response["synced"] = report.Succeeded
		response["failed"] = report.Failed
	}
	writeJSON(w, response)
}

// SaveDraft handles PUT /entities/{id}/draft — a debounced local save.
// The request's fields are merged into the entity's delta buffer, last
// write wins per field; the deferred save drains the buffer at fire time,
// so a burst of edits touching different fields coalesces losslessly into
// one save of all of them.
func (a *API) SaveDraft(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "Empty draft payload", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	buf := a.deltas[entityID]
	if buf == nil {
		buf = make(map[string]interface{}, len(fields))
		a.deltas[entityID] = buf
	}
	for k, v := range fields {
		buf[k] = v
	}
	a.mu.Unlock()

	a.schedulerFor(entityID).ScheduleSave()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{"entity_id": entityID, "scheduled": true})
}

// FlushDraft handles POST /entities/{id}/draft/flush — save now, skipping
// the debounce window.
func (a *API) FlushDraft(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	scheduler := a.schedulerFor(entityID)
	if err := scheduler.ForceSave(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"entity_id": entityID,
		"pending":   a.closeGuard.PendingSyncCount(),
	})
}

// GetDraft handles GET /entities/{id}/draft
func (a *API) GetDraft(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	entity, err := a.store.GetLocal(entityID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entity == nil {
		http.Error(w, "No local draft", http.StatusNotFound)
		return
	}
	writeJSON(w, entity)
}

// AddPhotos handles POST /entities/{id}/photos — multipart form upload
// under the "photos" field.
func (a *API) AddPhotos(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	if err := r.ParseMultipartForm(maxPhotoUpload); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	parts := r.MultipartForm.File["photos"]
	if len(parts) == 0 {
		http.Error(w, "No photos in request", http.StatusBadRequest)
		return
	}

	files := make([]upload.File, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files = append(files, upload.File{Name: part.Filename, Data: data})
	}

	queue := a.queueFor(entityID)
	created := queue.Add(files)
	a.watchProgress(entityID, queue)

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{"entity_id": entityID, "items": created})
}

// ListPhotos handles GET /entities/{id}/photos
func (a *API) ListPhotos(w http.ResponseWriter, r *http.Request) {
	queue := a.queueFor(r.PathValue("id"))
	writeJSON(w, map[string]interface{}{
		"items": queue.Items(),
		"stats": queue.Stats(),
	})
}

// RetryPhotos handles POST /entities/{id}/photos/retry
func (a *API) RetryPhotos(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	queue := a.queueFor(entityID)

	retried := queue.RetryErrors()
	if retried > 0 {
		a.watchProgress(entityID, queue)
	}
	writeJSON(w, map[string]interface{}{"retried": retried})
}

// RemovePhoto handles DELETE /entities/{id}/photos/{photoID}
func (a *API) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	queue := a.queueFor(r.PathValue("id"))
	if !queue.Remove(r.PathValue("photoID")) {
		http.Error(w, "Upload not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close disposes every upload queue and cancels pending autosaves.
func (a *API) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, q := range a.queues {
		q.Dispose()
	}
	for _, s := range a.schedulers {
		s.CancelSave()
	}
}

// saveFn builds the scheduler's save function for one entity. It drains
// the delta buffer at fire time, so it always persists the latest mutation
// state, then lets the engine re-derive the idle status. On failure the
// drained fields go back into the buffer (without clobbering anything
// newer) so the next save retries them.
func (a *API) saveFn(entityID string) autosave.SaveFunc {
	return func(ctx context.Context) error {
		a.mu.Lock()
		fields := a.deltas[entityID]
		delete(a.deltas, entityID)
		a.mu.Unlock()

		if len(fields) == 0 {
			return nil
		}

		if _, err := a.store.SaveLocal(entityID, fields); err != nil {
			a.mu.Lock()
			buf := a.deltas[entityID]
			if buf == nil {
				a.deltas[entityID] = fields
			} else {
				for k, v := range fields {
					if _, ok := buf[k]; !ok {
						buf[k] = v
					}
				}
			}
			a.mu.Unlock()
			return err
		}

		a.engine.RefreshStatus()
		return nil
	}
}

func (a *API) queueFor(entityID string) *upload.Queue {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.queues[entityID]
	if !ok {
		q = upload.NewQueue(entityID, a.blobs, a.monitor, upload.Config{})
		a.queues[entityID] = q
	}
	return q
}

func (a *API) schedulerFor(entityID string) *autosave.Scheduler {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.schedulers[entityID]
	if !ok {
		s = autosave.New()
		s.Configure(a.autosaveDelay, a.saveFn(entityID), true)
		a.schedulers[entityID] = s
	}
	return s
}

// watchProgress polls the queue and feeds aggregate progress to the
// status websocket until the queue drains. One watcher per entity.
func (a *API) watchProgress(entityID string, queue *upload.Queue) {
	a.mu.Lock()
	if a.reporting[entityID] {
		a.mu.Unlock()
		return
	}
	a.reporting[entityID] = true
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.reporting, entityID)
			a.mu.Unlock()
		}()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			stats := queue.Stats()
			a.hub.Broadcast(EventUploadProgress, map[string]interface{}{
				"entity_id": entityID,
				"total":     stats.Total,
				"pending":   stats.Pending,
				"active":    stats.Active,
				"done":      stats.Done,
				"errors":    stats.Errors,
				"progress":  stats.Progress,
			})
			if stats.Active == 0 && (stats.Pending == 0 || !a.monitor.IsOnline()) {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response",
			map[string]interface{}{"error": err.Error()})
	}
}
