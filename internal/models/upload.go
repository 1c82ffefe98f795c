package models

import "time"

// UploadStatus represents the lifecycle state of a queued upload.
type UploadStatus string

const (
	UploadStatusPending     UploadStatus = "pending"
	UploadStatusCompressing UploadStatus = "compressing"
	UploadStatusUploading   UploadStatus = "uploading"
	UploadStatusDone        UploadStatus = "done"
	UploadStatusError       UploadStatus = "error"
)

// Active reports whether the status is a non-terminal processing state.
// At most one item per queue may be active at any instant.
func (s UploadStatus) Active() bool {
	return s == UploadStatusCompressing || s == UploadStatusUploading
}

// Terminal reports whether the status is terminal. Error items leave the
// terminal state only through an explicit retry.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusDone || s == UploadStatusError
}

// QueuedUpload is the externally visible state of one photo attachment
// moving through an upload queue.
type QueuedUpload struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Status         UploadStatus `json:"status"`
	Progress       int          `json:"progress"` // 0-100
	Error          string       `json:"error,omitempty"`
	OriginalSize   int64        `json:"original_size"`
	CompressedSize int64        `json:"compressed_size,omitempty"`
	PreviewPath    string       `json:"preview_path,omitempty"`
	RemotePath     string       `json:"remote_path,omitempty"`
	AddedAt        time.Time    `json:"added_at"`
}
