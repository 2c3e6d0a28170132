package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/photoderive/pipeline/internal/engine"
	"github.com/photoderive/pipeline/internal/recordstore"
)

var testEntry = Entry{Bucket: "media", Key: "uploads/abc.jpg", Filename: "abc.jpg"}

func TestWorkerCaptionCompleted(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("jpeg bytes")
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{caption: "A red bicycle leaning against a wall."}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusCompleted {
		t.Fatalf("Status = %q, want %q (err: %s)", outcome.Status, recordstore.StatusCompleted, outcome.ErrMsg)
	}

	st, err := records.GetStatus(context.Background(), "abc.jpg")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.AnnotationStatus != recordstore.StatusCompleted {
		t.Errorf("AnnotationStatus = %q, want %q", st.AnnotationStatus, recordstore.StatusCompleted)
	}
	if st.Annotation != "A red bicycle leaning against a wall." {
		t.Errorf("Annotation = %q", st.Annotation)
	}
	if st.AnnotationGeneratedAt == nil {
		t.Error("AnnotationGeneratedAt not set")
	}
	if st.AnnotationError != "" {
		t.Errorf("AnnotationError = %q, want empty", st.AnnotationError)
	}

	want := []string{"abc.jpg/annotation:processing", "abc.jpg/annotation:completed"}
	if len(records.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", records.transitions, want)
	}
	for i := range want {
		if records.transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, records.transitions[i], want[i])
		}
	}
}

func TestWorkerThumbnailCompleted(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("original bytes")
	records := newFakeRecordStore()
	eng := &fakeResizeEngine{output: bytes.Repeat([]byte{0xff}, 4200)}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusCompleted {
		t.Fatalf("Status = %q, want %q (err: %s)", outcome.Status, recordstore.StatusCompleted, outcome.ErrMsg)
	}
	if outcome.Bytes != 4200 {
		t.Errorf("Bytes = %d, want 4200", outcome.Bytes)
	}

	put, ok := blobs.puts["thumbnails/abc.jpg"]
	if !ok {
		t.Fatalf("no artifact written under thumbnails/abc.jpg; puts = %v", blobs.puts)
	}
	if put.contentType != "image/jpeg" {
		t.Errorf("contentType = %q, want image/jpeg", put.contentType)
	}
	if put.metadata["original-key"] != "uploads/abc.jpg" {
		t.Errorf("original-key metadata = %q", put.metadata["original-key"])
	}

	st, err := records.GetStatus(context.Background(), "abc.jpg")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.ThumbnailStatus != recordstore.StatusCompleted {
		t.Errorf("ThumbnailStatus = %q, want %q", st.ThumbnailStatus, recordstore.StatusCompleted)
	}
	if st.ThumbnailKey != "thumbnails/abc.jpg" {
		t.Errorf("ThumbnailKey = %q", st.ThumbnailKey)
	}
	if st.ThumbnailSize != 4200 {
		t.Errorf("ThumbnailSize = %d, want 4200", st.ThumbnailSize)
	}
}

func TestWorkerSourceMissing(t *testing.T) {
	blobs := newFakeBlobStore() // uploads/abc.jpg never stored
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{caption: "unused"}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusFailed {
		t.Fatalf("Status = %q, want %q", outcome.Status, recordstore.StatusFailed)
	}
	if !strings.Contains(outcome.ErrMsg, "not found") {
		t.Errorf("ErrMsg = %q, want it to mention the missing object", outcome.ErrMsg)
	}
	if eng.calls != 0 {
		t.Errorf("engine called %d times for a missing source, want 0", eng.calls)
	}

	st, err := records.GetStatus(context.Background(), "abc.jpg")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.AnnotationStatus != recordstore.StatusFailed {
		t.Errorf("AnnotationStatus = %q, want %q", st.AnnotationStatus, recordstore.StatusFailed)
	}
	if st.Annotation != "" {
		t.Errorf("Annotation = %q, want empty on failure", st.Annotation)
	}
	if st.AnnotationError == "" {
		t.Error("AnnotationError not recorded")
	}
}

func TestWorkerEngineTimeout(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("jpeg bytes")
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{err: engine.ErrTimeout}

	w := NewWorker(blobs, records, eng, 5*time.Second)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusFailed {
		t.Fatalf("Status = %q, want %q", outcome.Status, recordstore.StatusFailed)
	}
	if !strings.Contains(outcome.ErrMsg, "timed out after 5s") {
		t.Errorf("ErrMsg = %q, want a timeout message naming the limit", outcome.ErrMsg)
	}
}

func TestWorkerTransformError(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("not an image")
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{err: &engine.TransformError{Reason: "decode image"}}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusFailed {
		t.Fatalf("Status = %q, want %q", outcome.Status, recordstore.StatusFailed)
	}
	if !strings.Contains(outcome.ErrMsg, "decode image") {
		t.Errorf("ErrMsg = %q, want the transform reason", outcome.ErrMsg)
	}
}

func TestWorkerArtifactWriteFailure(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("original bytes")
	blobs.putErr = context.DeadlineExceeded
	records := newFakeRecordStore()
	eng := &fakeResizeEngine{output: []byte("thumb")}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusFailed {
		t.Fatalf("Status = %q, want %q", outcome.Status, recordstore.StatusFailed)
	}
	st, _ := records.GetStatus(context.Background(), "abc.jpg")
	if st.ThumbnailKey != "" {
		t.Errorf("ThumbnailKey = %q, want empty when upload failed", st.ThumbnailKey)
	}
}

func TestWorkerContinuesPastProcessingWriteFailure(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("jpeg bytes")
	records := newFakeRecordStore()
	records.failOnce = true // SetProcessing fails, terminal write succeeds
	eng := &fakeCaptionEngine{caption: "desc"}

	w := NewWorker(blobs, records, eng, 0)
	outcome := w.Process(context.Background(), testEntry)

	if outcome.Status != recordstore.StatusCompleted {
		t.Fatalf("Status = %q, want %q", outcome.Status, recordstore.StatusCompleted)
	}
	st, err := records.GetStatus(context.Background(), "abc.jpg")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.AnnotationStatus != recordstore.StatusCompleted {
		t.Errorf("AnnotationStatus = %q, want %q", st.AnnotationStatus, recordstore.StatusCompleted)
	}
}

// Redelivering a notification re-runs the job and lands on the same terminal
// state with the same payload.
func TestWorkerIdempotentRedelivery(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["uploads/abc.jpg"] = []byte("jpeg bytes")
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{caption: "A quiet harbor at dusk."}

	w := NewWorker(blobs, records, eng, 0)
	first := w.Process(context.Background(), testEntry)
	second := w.Process(context.Background(), testEntry)

	if first.Status != recordstore.StatusCompleted || second.Status != recordstore.StatusCompleted {
		t.Fatalf("statuses = %q, %q, want both completed", first.Status, second.Status)
	}
	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2 (redelivery re-runs the job)", eng.calls)
	}

	st, _ := records.GetStatus(context.Background(), "abc.jpg")
	if st.Annotation != "A quiet harbor at dusk." {
		t.Errorf("Annotation = %q after redelivery", st.Annotation)
	}
	if st.AnnotationStatus != recordstore.StatusCompleted {
		t.Errorf("AnnotationStatus = %q after redelivery", st.AnnotationStatus)
	}
}

// A failed run followed by a successful redelivery clears the recorded error.
func TestWorkerRedeliveryRecoversFromFailure(t *testing.T) {
	blobs := newFakeBlobStore()
	records := newFakeRecordStore()
	eng := &fakeCaptionEngine{caption: "desc"}
	w := NewWorker(blobs, records, eng, 0)

	if out := w.Process(context.Background(), testEntry); out.Status != recordstore.StatusFailed {
		t.Fatalf("first run Status = %q, want failed", out.Status)
	}

	blobs.objects["uploads/abc.jpg"] = []byte("jpeg bytes") // object shows up late
	if out := w.Process(context.Background(), testEntry); out.Status != recordstore.StatusCompleted {
		t.Fatalf("second run Status = %q, want completed", out.Status)
	}

	st, _ := records.GetStatus(context.Background(), "abc.jpg")
	if st.AnnotationError != "" {
		t.Errorf("AnnotationError = %q, want cleared after recovery", st.AnnotationError)
	}
	if st.Annotation != "desc" {
		t.Errorf("Annotation = %q", st.Annotation)
	}
}
