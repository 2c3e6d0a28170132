// Package recordstore provides typed access to the images metadata table.
//
// One row exists per uploaded image, keyed by the unique filename assigned at
// upload time. The upload flow inserts the row with both derivation statuses
// set to pending; the processing pipelines only ever move a status forward
// (pending → processing → completed/failed) and never delete rows.
//
// Every status transition is a single UPDATE keyed by filename — never a
// read-modify-write — so concurrent duplicate jobs triggered by notification
// redelivery converge to the same terminal state without locks.
package recordstore

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by read operations when no row exists for
// the requested filename.
var ErrRecordNotFound = errors.New("image record not found")

// Kind identifies one of the two independent derivations produced per image.
type Kind string

const (
	KindAnnotation Kind = "annotation"
	KindThumbnail  Kind = "thumbnail"
)

// Derivation statuses. Transitions within one processing attempt are
// monotonic: pending → processing → completed or failed. A failed or stale
// job re-enters processing when its notification is redelivered.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Result carries the completion payload for SetCompleted. Annotation is set
// for the annotation kind; ThumbnailKey and ThumbnailSize for the thumbnail
// kind.
type Result struct {
	Annotation    string
	ThumbnailKey  string
	ThumbnailSize int64
}

// ImageRecord is the row inserted by the upload flow.
type ImageRecord struct {
	Filename         string
	OriginalFilename string
	FileSize         int64
	MimeType         string
	S3Key            string
	S3Bucket         string
	ImageWidth       int
	ImageHeight      int
	ImageFormat      string
	CameraMake       string
	CameraModel      string
	TakenAt          time.Time // zero if EXIF has no timestamp
	UploadIP         string
}

// ImageStatus is the per-image view served to pollers.
type ImageStatus struct {
	Filename              string     `json:"filename"`
	AnnotationStatus      string     `json:"annotation_status"`
	ThumbnailStatus       string     `json:"thumbnail_status"`
	Annotation            string     `json:"annotation,omitempty"`
	AnnotationError       string     `json:"annotation_error,omitempty"`
	ThumbnailKey          string     `json:"thumbnail_key,omitempty"`
	ThumbnailSize         int64      `json:"thumbnail_size,omitempty"`
	ThumbnailError        string     `json:"thumbnail_error,omitempty"`
	AnnotationGeneratedAt *time.Time `json:"annotation_generated_at,omitempty"`
	ThumbnailGeneratedAt  *time.Time `json:"thumbnail_generated_at,omitempty"`
}

// ImageSummary is one gallery listing entry.
type ImageSummary struct {
	Filename          string    `json:"filename"`
	OriginalFilename  string    `json:"original_filename"`
	AnnotationStatus  string    `json:"annotation_status"`
	AnnotationPreview string    `json:"annotation_preview,omitempty"`
	ThumbnailStatus   string    `json:"thumbnail_status"`
	UploadedAt        time.Time `json:"uploaded_at"`
	FileSize          int64     `json:"file_size"`
	ImageWidth        int       `json:"image_width"`
	ImageHeight       int       `json:"image_height"`
}

// GalleryStats aggregates derivation progress for the stats dashboard.
type GalleryStats struct {
	TotalImages          int64   `json:"total_images"`
	CompletedAnnotations int64   `json:"completed_annotations"`
	CompletedThumbnails  int64   `json:"completed_thumbnails"`
	FailedProcessing     int64   `json:"failed_processing"`
	AvgFileSize          float64 `json:"avg_file_size"`
	TotalStorageUsed     int64   `json:"total_storage_used"`
}

// StaleJob identifies a (filename, kind) job left in processing past the
// staleness threshold, typically because its worker was torn down mid-job.
type StaleJob struct {
	Filename string
	S3Key    string
	S3Bucket string
	Kind     Kind
}

// Store defines the status-record operations used by the processing
// pipelines and the gallery API. All methods are safe for concurrent use.
type Store interface {
	// InsertImage creates the metadata row with both statuses pending.
	InsertImage(ctx context.Context, rec *ImageRecord) error

	// SetProcessing marks the job processing and clears any prior
	// result/error payload for the kind. Unconditional: redelivered
	// notifications simply re-run the job.
	SetProcessing(ctx context.Context, filename string, kind Kind) error

	// SetCompleted writes status, result payload, and completion timestamp
	// in one update.
	SetCompleted(ctx context.Context, filename string, kind Kind, res Result, at time.Time) error

	// SetFailed writes status=failed and the error message in one update.
	SetFailed(ctx context.Context, filename string, kind Kind, errMsg string) error

	// GetStatus returns the derivation state for one image.
	// Returns ErrRecordNotFound if the row does not exist.
	GetStatus(ctx context.Context, filename string) (*ImageStatus, error)

	// ListImages returns gallery entries, newest first.
	ListImages(ctx context.Context) ([]ImageSummary, error)

	// Stats returns aggregate derivation counts.
	Stats(ctx context.Context) (*GalleryStats, error)

	// ListStaleProcessing returns jobs stuck in processing longer than
	// olderThan, for the reconciliation sweep.
	ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]StaleJob, error)
}
