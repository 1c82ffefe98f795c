package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	stdsync "sync"
	"testing"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
	"github.com/mlefevre/brokersync/internal/models"
	"github.com/mlefevre/brokersync/internal/netmon"
)

// fakeBlobStore records uploads and can simulate failures and path
// conflicts. It also tracks how many puts run concurrently.
type fakeBlobStore struct {
	mu           stdsync.Mutex
	objects      map[string][]byte
	failAll      bool
	conflictNext bool
	active       int
	maxActive    int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
	}
}

func (f *fakeBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	failAll := f.failAll
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--

	if failAll {
		return fmt.Errorf("simulated upload failure")
	}
	if f.conflictNext {
		f.conflictNext = false
		return apperrors.New(apperrors.ErrPathConflict,
			fmt.Sprintf("object already exists at %s", path))
	}
	if _, exists := f.objects[path]; exists {
		return apperrors.New(apperrors.ErrPathConflict,
			fmt.Sprintf("object already exists at %s", path))
	}
	f.objects[path] = data
	return nil
}

func (f *fakeBlobStore) PublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

func (f *fakeBlobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// pngBytes renders a small test image.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func testQueue(t *testing.T, blobs BlobStore, monitor *netmon.Monitor) *Queue {
	t.Helper()
	q := NewQueue("est-1", blobs, monitor, Config{PreviewDir: t.TempDir()})
	t.Cleanup(q.Dispose)
	return q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func drained(q *Queue) bool {
	for _, item := range q.Items() {
		if !item.Status.Terminal() {
			return false
		}
	}
	return true
}

// TestUploadSequencing tests that three files drain to done with at most
// one item active at any observed instant.
func TestUploadSequencing(t *testing.T) {
	blobs := newFakeBlobStore()
	q := testQueue(t, blobs, netmon.New())

	img := pngBytes(t, 64, 64)
	created := q.Add([]File{
		{Name: "facade.png", Data: img},
		{Name: "kitchen.png", Data: img},
		{Name: "balcony.png", Data: img},
	})
	if len(created) != 3 {
		t.Fatalf("Expected 3 queue entries, got %d", len(created))
	}

	// Observe the invariant while the worker drains.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !drained(q) {
		active := 0
		for _, item := range q.Items() {
			if item.Status.Active() {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("Observed %d concurrently active items", active)
		}
		time.Sleep(time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return drained(q) })

	for _, item := range q.Items() {
		if item.Status != models.UploadStatusDone {
			t.Errorf("Expected item %s done, got %s (%s)", item.Name, item.Status, item.Error)
		}
		if item.Progress != 100 {
			t.Errorf("Expected progress 100, got %d", item.Progress)
		}
		if item.RemotePath == "" {
			t.Error("Expected remote path on done item")
		}
		if item.CompressedSize == 0 {
			t.Error("Expected compressed size on done item")
		}
	}
	blobs.mu.Lock()
	maxActive := blobs.maxActive
	blobs.mu.Unlock()
	if maxActive > 1 {
		t.Errorf("Expected sequential puts, observed %d concurrent", maxActive)
	}
	if blobs.count() != 3 {
		t.Errorf("Expected 3 uploaded objects, got %d", blobs.count())
	}
}

// TestCompressionErrorIsolated tests that a non-image item errors without
// stopping the rest of the queue.
func TestCompressionErrorIsolated(t *testing.T) {
	blobs := newFakeBlobStore()
	q := testQueue(t, blobs, netmon.New())

	q.Add([]File{
		{Name: "notes.txt", Data: []byte("not an image")},
		{Name: "facade.png", Data: pngBytes(t, 32, 32)},
	})

	waitFor(t, 2*time.Second, func() bool { return drained(q) })

	items := q.Items()
	if items[0].Status != models.UploadStatusError {
		t.Errorf("Expected text payload to error, got %s", items[0].Status)
	}
	if items[0].Error == "" || items[0].Progress != 0 {
		t.Error("Expected captured error message and progress reset")
	}
	if items[1].Status != models.UploadStatusDone {
		t.Errorf("Expected image to upload despite earlier failure, got %s", items[1].Status)
	}
}

// TestRetryErrors tests that retry re-queues exactly the errored items
// and clears their messages.
func TestRetryErrors(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.failAll = true
	q := testQueue(t, blobs, netmon.New())

	q.Add([]File{
		{Name: "a.png", Data: pngBytes(t, 16, 16)},
		{Name: "b.png", Data: pngBytes(t, 16, 16)},
	})

	waitFor(t, 2*time.Second, func() bool { return drained(q) })
	if s := q.Stats(); s.Errors != 2 {
		t.Fatalf("Expected 2 errored items, got %+v", s)
	}

	blobs.mu.Lock()
	blobs.failAll = false
	blobs.mu.Unlock()

	if n := q.RetryErrors(); n != 2 {
		t.Errorf("Expected 2 items retried, got %d", n)
	}

	waitFor(t, 2*time.Second, func() bool { return drained(q) })

	for _, item := range q.Items() {
		if item.Status != models.UploadStatusDone {
			t.Errorf("Expected %s done after retry, got %s (%s)", item.Name, item.Status, item.Error)
		}
		if item.Error != "" {
			t.Error("Expected error message cleared by retry")
		}
	}
}

// TestReconnectResumption tests that items queued while offline drain
// automatically on the went-online event.
func TestReconnectResumption(t *testing.T) {
	blobs := newFakeBlobStore()
	monitor := netmon.New()
	monitor.SetState(models.ConnectivitySample{IsOnline: false, EffectiveType: models.EffectiveTypeUnknown})
	q := testQueue(t, blobs, monitor)

	q.Add([]File{{Name: "a.png", Data: pngBytes(t, 16, 16)}})

	time.Sleep(50 * time.Millisecond)
	if s := q.Stats(); s.Pending != 1 {
		t.Fatalf("Expected item to stay pending while offline, got %+v", s)
	}

	monitor.SetState(models.ConnectivitySample{IsOnline: true, EffectiveType: models.EffectiveType4G})

	waitFor(t, 2*time.Second, func() bool { return drained(q) })
	if q.Items()[0].Status != models.UploadStatusDone {
		t.Errorf("Expected item uploaded after reconnect, got %s", q.Items()[0].Status)
	}
}

// TestRemoveReleasesPreview tests that removal deletes the preview file.
func TestRemoveReleasesPreview(t *testing.T) {
	blobs := newFakeBlobStore()
	monitor := netmon.New()
	monitor.SetState(models.ConnectivitySample{IsOnline: false, EffectiveType: models.EffectiveTypeUnknown})
	q := testQueue(t, blobs, monitor)

	created := q.Add([]File{{Name: "a.png", Data: pngBytes(t, 16, 16)}})
	preview := created[0].PreviewPath
	if preview == "" {
		t.Fatal("Expected preview path on queued item")
	}
	if _, err := os.Stat(preview); err != nil {
		t.Fatalf("Expected preview file to exist: %v", err)
	}

	if !q.Remove(created[0].ID) {
		t.Fatal("Expected Remove to find the item")
	}
	if _, err := os.Stat(preview); !os.IsNotExist(err) {
		t.Error("Expected preview file to be released on removal")
	}
	if len(q.Items()) != 0 {
		t.Error("Expected empty queue after removal")
	}
}

// TestPathConflictRegeneratesName tests that a duplicate-path rejection
// triggers one retry under a fresh unique path.
func TestPathConflictRegeneratesName(t *testing.T) {
	blobs := newFakeBlobStore()
	q := testQueue(t, blobs, netmon.New())

	// Exercise put directly; the first attempt is rejected as a duplicate
	// and the second must land under a regenerated unique path.
	item := &queueItem{model: models.QueuedUpload{ID: "u1", Name: "facade.png"}}
	data := []byte("payload")

	blobs.conflictNext = true

	path, err := q.put(item, data)
	if err != nil {
		t.Fatalf("Expected put to succeed after regeneration, got %v", err)
	}
	if _, ok := blobs.objects[path]; !ok {
		t.Error("Expected payload stored under the regenerated path")
	}
	if blobs.count() != 1 {
		t.Errorf("Expected exactly one stored object, got %d", blobs.count())
	}
}

// TestStats tests the aggregate view.
func TestStats(t *testing.T) {
	blobs := newFakeBlobStore()
	q := testQueue(t, blobs, netmon.New())

	q.Add([]File{
		{Name: "a.png", Data: pngBytes(t, 16, 16)},
		{Name: "b.txt", Data: []byte("nope")},
	})

	waitFor(t, 2*time.Second, func() bool { return drained(q) })

	s := q.Stats()
	if s.Total != 2 || s.Done != 1 || s.Errors != 1 {
		t.Errorf("Expected total=2 done=1 errors=1, got %+v", s)
	}
}
