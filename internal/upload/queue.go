package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/models"
	"github.com/mlefevre/brokersync/internal/netmon"
)

// BlobStore is the remote object store photos are uploaded to. Put must
// reject duplicate paths (not silently overwrite) so the queue can
// regenerate a unique name; such rejections carry the path-conflict code.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// File is a raw attachment handed to the queue by the host shell.
type File struct {
	Name string
	Data []byte
}

// Progress milestones reported while an item moves through the pipeline.
const (
	progressCompressing = 10
	progressUploading   = 30
	progressDone        = 100
)

// Config holds per-queue tunables.
type Config struct {
	PreviewDir string // directory preview files live in; temp dir when empty
	PathPrefix string // remote key prefix; "photos" when empty
}

// Queue is the ordered upload pipeline for one target entity's photo set.
// A single worker processes items strictly sequentially: at most one item
// is compressing or uploading at any instant. One item's failure never
// stops the queue.
type Queue struct {
	entityID   string
	blobs      BlobStore
	monitor    *netmon.Monitor
	compressor *Compressor
	cfg        Config

	mu            stdsync.Mutex
	items         []*queueItem
	workerRunning bool
	disposed      bool
	unsubscribe   func()
}

type queueItem struct {
	model models.QueuedUpload
	data  []byte
}

// NewQueue creates a Queue scoped to entityID and subscribes it to the
// network monitor for resume-on-reconnect.
func NewQueue(entityID string, blobs BlobStore, monitor *netmon.Monitor, cfg Config) *Queue {
	if cfg.PreviewDir == "" {
		cfg.PreviewDir = filepath.Join(os.TempDir(), "brokersync-previews", entityID)
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "photos"
	}

	q := &Queue{
		entityID:   entityID,
		blobs:      blobs,
		monitor:    monitor,
		compressor: NewCompressor(),
		cfg:        cfg,
	}

	q.unsubscribe = monitor.Subscribe(func(event netmon.Event) {
		if event == netmon.EventWentOnline {
			q.kick()
		}
	})

	return q
}

// Add creates pending entries (with immediately available local previews)
// for the given files and returns their snapshots. Processing starts
// automatically when the worker is idle and connectivity is available.
func (q *Queue) Add(files []File) []*models.QueuedUpload {
	created := make([]*models.QueuedUpload, 0, len(files))

	q.mu.Lock()
	for _, f := range files {
		id := uuid.New().String()

		item := &queueItem{
			model: models.QueuedUpload{
				ID:           id,
				Name:         f.Name,
				Status:       models.UploadStatusPending,
				OriginalSize: int64(len(f.Data)),
				AddedAt:      time.Now(),
			},
			data: f.Data,
		}

		// Preview failures are non-fatal: the entry still queues, the UI
		// just has no thumbnail.
		if path, err := q.compressor.WritePreview(q.cfg.PreviewDir, id, f.Data); err != nil {
			logging.Warn("Preview generation failed",
				map[string]interface{}{"upload_id": id, "error": err.Error()})
		} else {
			item.model.PreviewPath = path
		}

		q.items = append(q.items, item)
		snapshot := item.model
		created = append(created, &snapshot)
	}
	q.mu.Unlock()

	q.kick()
	return created
}

// Remove removes an item regardless of status and releases its preview.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.model.ID == id {
			releasePreview(item.model.PreviewPath)
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// RetryErrors transitions every errored item back to pending, clears its
// message, and restarts the worker when online. Returns the retried count.
func (q *Queue) RetryErrors() int {
	q.mu.Lock()
	count := 0
	for _, item := range q.items {
		if item.model.Status == models.UploadStatusError {
			item.model.Status = models.UploadStatusPending
			item.model.Error = ""
			item.model.Progress = 0
			count++
		}
	}
	q.mu.Unlock()

	if count > 0 {
		logging.Info("Retrying errored uploads",
			map[string]interface{}{"entity_id": q.entityID, "count": count})
		q.kick()
	}
	return count
}

// Items returns snapshots of every queue entry in order.
func (q *Queue) Items() []*models.QueuedUpload {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.QueuedUpload, 0, len(q.items))
	for _, item := range q.items {
		snapshot := item.model
		out = append(out, &snapshot)
	}
	return out
}

// Stats is the aggregate view of a queue.
type Stats struct {
	Total    int
	Pending  int
	Active   int
	Done     int
	Errors   int
	Progress int // mean progress across items, 0-100
}

// Stats returns aggregate progress and error counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	sum := 0
	for _, item := range q.items {
		s.Total++
		sum += item.model.Progress
		switch {
		case item.model.Status == models.UploadStatusPending:
			s.Pending++
		case item.model.Status.Active():
			s.Active++
		case item.model.Status == models.UploadStatusDone:
			s.Done++
		case item.model.Status == models.UploadStatusError:
			s.Errors++
		}
	}
	if s.Total > 0 {
		s.Progress = sum / s.Total
	}
	return s
}

// Dispose unsubscribes from connectivity events and releases every
// preview resource. The queue must not be used afterwards.
func (q *Queue) Dispose() {
	if q.unsubscribe != nil {
		q.unsubscribe()
		q.unsubscribe = nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.disposed = true
	for _, item := range q.items {
		releasePreview(item.model.PreviewPath)
		item.model.PreviewPath = ""
	}
}

// kick starts the worker when it is idle, connectivity is available and
// at least one pending item exists.
func (q *Queue) kick() {
	if !q.monitor.IsOnline() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.disposed || q.workerRunning || q.nextPendingLocked() == nil {
		return
	}
	q.workerRunning = true
	go q.run()
}

// run is the single worker loop. It drains pending items one at a time
// and exits when none remain, connectivity drops, or the queue is
// disposed.
func (q *Queue) run() {
	for {
		q.mu.Lock()
		if q.disposed || !q.monitor.IsOnline() {
			q.workerRunning = false
			q.mu.Unlock()
			return
		}
		item := q.nextPendingLocked()
		if item == nil {
			q.workerRunning = false
			q.mu.Unlock()
			return
		}
		item.model.Status = models.UploadStatusCompressing
		item.model.Progress = progressCompressing
		data := item.data
		q.mu.Unlock()

		compressed, err := q.compressor.Compress(data)
		if err != nil {
			q.fail(item, err)
			continue
		}

		q.mu.Lock()
		item.model.Status = models.UploadStatusUploading
		item.model.Progress = progressUploading
		item.model.CompressedSize = int64(len(compressed))
		q.mu.Unlock()

		remotePath, err := q.put(item, compressed)
		if err != nil {
			q.fail(item, err)
			continue
		}

		q.mu.Lock()
		item.model.Status = models.UploadStatusDone
		item.model.Progress = progressDone
		item.model.RemotePath = remotePath
		q.mu.Unlock()

		logging.Info("Upload complete",
			map[string]interface{}{
				"entity_id":       q.entityID,
				"upload_id":       item.model.ID,
				"original_size":   item.model.OriginalSize,
				"compressed_size": item.model.CompressedSize,
			})
	}
}

// put uploads the compressed bytes, regenerating a unique path once when
// the object store reports a duplicate-path conflict.
func (q *Queue) put(item *queueItem, data []byte) (string, error) {
	// No hard timeout: a hung upload stalls this queue's worker until the
	// remote call resolves.
	ctx := context.Background()

	path := q.remotePath(item.model.Name)
	err := q.blobs.Put(ctx, path, data, "image/jpeg")
	if err == nil {
		return path, nil
	}
	if !apperrors.HasCode(err, apperrors.ErrPathConflict) {
		return "", err
	}

	path = q.remotePath(item.model.Name)
	if err := q.blobs.Put(ctx, path, data, "image/jpeg"); err != nil {
		return "", err
	}
	return path, nil
}

func (q *Queue) fail(item *queueItem, err error) {
	q.mu.Lock()
	item.model.Status = models.UploadStatusError
	item.model.Error = err.Error()
	item.model.Progress = 0
	q.mu.Unlock()

	logging.Warn("Upload failed",
		map[string]interface{}{
			"entity_id": q.entityID,
			"upload_id": item.model.ID,
			"error":     err.Error(),
		})
}

// nextPendingLocked picks the oldest pending item. Callers hold q.mu.
func (q *Queue) nextPendingLocked() *queueItem {
	for _, item := range q.items {
		if item.model.Status == models.UploadStatusPending {
			return item
		}
	}
	return nil
}

// remotePath builds a unique object key under the queue's entity.
func (q *Queue) remotePath(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	return fmt.Sprintf("%s/%s/%s_%s.jpg", q.cfg.PathPrefix, q.entityID, uuid.New().String()[:8], base)
}

func releasePreview(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to release preview",
			map[string]interface{}{"path": path, "error": err.Error()})
	}
}
