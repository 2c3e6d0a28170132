package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/photoderive/pipeline/internal/audit"
	"github.com/photoderive/pipeline/internal/blobstore"
	"github.com/photoderive/pipeline/internal/engine"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// --- Fake blob store ---

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]putCall
	getErr  map[string]error
	putErr  error
}

type putCall struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		puts:    make(map[string]putCall),
		getErr:  make(map[string]error),
	}
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.getErr[key]; ok {
		return nil, err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, blobstore.ErrNotFound)
	}
	return data, nil
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	f.puts[key] = putCall{data: data, contentType: contentType, metadata: metadata}
	return nil
}

// --- Fake engines ---

type fakeCaptionEngine struct {
	caption string
	err     error
	calls   int
}

func (f *fakeCaptionEngine) Kind() recordstore.Kind { return recordstore.KindAnnotation }

func (f *fakeCaptionEngine) Derive(ctx context.Context, src []byte) (*engine.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Text: f.caption}, nil
}

type fakeResizeEngine struct {
	output []byte
	err    error
}

func (f *fakeResizeEngine) Kind() recordstore.Kind { return recordstore.KindThumbnail }

func (f *fakeResizeEngine) Derive(ctx context.Context, src []byte) (*engine.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Data: f.output, ContentType: "image/jpeg"}, nil
}

// --- Fake record store ---

type kindState struct {
	status      string
	result      recordstore.Result
	errMsg      string
	generatedAt *time.Time
}

type fakeRecordStore struct {
	mu          sync.Mutex
	records     map[string]map[recordstore.Kind]*kindState
	transitions []string // "<filename>/<kind>:<status>" in write order
	failWrites  bool     // make every status write fail
	failOnce    bool     // fail only the first write
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]map[recordstore.Kind]*kindState)}
}

func (f *fakeRecordStore) state(filename string, kind recordstore.Kind) *kindState {
	if f.records[filename] == nil {
		f.records[filename] = make(map[recordstore.Kind]*kindState)
	}
	if f.records[filename][kind] == nil {
		f.records[filename][kind] = &kindState{status: recordstore.StatusPending}
	}
	return f.records[filename][kind]
}

func (f *fakeRecordStore) writeErr() error {
	if f.failWrites {
		return errors.New("metadata store unavailable")
	}
	if f.failOnce {
		f.failOnce = false
		return errors.New("metadata store unavailable")
	}
	return nil
}

func (f *fakeRecordStore) SetProcessing(ctx context.Context, filename string, kind recordstore.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(); err != nil {
		return err
	}
	st := f.state(filename, kind)
	st.status = recordstore.StatusProcessing
	st.result = recordstore.Result{}
	st.errMsg = ""
	st.generatedAt = nil
	f.transitions = append(f.transitions, fmt.Sprintf("%s/%s:%s", filename, kind, st.status))
	return nil
}

func (f *fakeRecordStore) SetCompleted(ctx context.Context, filename string, kind recordstore.Kind, res recordstore.Result, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(); err != nil {
		return err
	}
	st := f.state(filename, kind)
	st.status = recordstore.StatusCompleted
	st.result = res
	st.errMsg = ""
	st.generatedAt = &at
	f.transitions = append(f.transitions, fmt.Sprintf("%s/%s:%s", filename, kind, st.status))
	return nil
}

func (f *fakeRecordStore) SetFailed(ctx context.Context, filename string, kind recordstore.Kind, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(); err != nil {
		return err
	}
	st := f.state(filename, kind)
	st.status = recordstore.StatusFailed
	st.result = recordstore.Result{}
	st.errMsg = errMsg
	st.generatedAt = nil
	f.transitions = append(f.transitions, fmt.Sprintf("%s/%s:%s", filename, kind, st.status))
	return nil
}

func (f *fakeRecordStore) InsertImage(ctx context.Context, rec *recordstore.ImageRecord) error {
	return nil
}

func (f *fakeRecordStore) GetStatus(ctx context.Context, filename string) (*recordstore.ImageStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds, ok := f.records[filename]
	if !ok {
		return nil, recordstore.ErrRecordNotFound
	}
	st := &recordstore.ImageStatus{
		Filename:         filename,
		AnnotationStatus: recordstore.StatusPending,
		ThumbnailStatus:  recordstore.StatusPending,
	}
	if a, ok := kinds[recordstore.KindAnnotation]; ok {
		st.AnnotationStatus = a.status
		st.Annotation = a.result.Annotation
		st.AnnotationError = a.errMsg
		st.AnnotationGeneratedAt = a.generatedAt
	}
	if th, ok := kinds[recordstore.KindThumbnail]; ok {
		st.ThumbnailStatus = th.status
		st.ThumbnailKey = th.result.ThumbnailKey
		st.ThumbnailSize = th.result.ThumbnailSize
		st.ThumbnailError = th.errMsg
		st.ThumbnailGeneratedAt = th.generatedAt
	}
	return st, nil
}

func (f *fakeRecordStore) ListImages(ctx context.Context) ([]recordstore.ImageSummary, error) {
	return nil, nil
}

func (f *fakeRecordStore) Stats(ctx context.Context) (*recordstore.GalleryStats, error) {
	return &recordstore.GalleryStats{}, nil
}

func (f *fakeRecordStore) ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]recordstore.StaleJob, error) {
	return nil, nil
}

// --- Fake audit recorder ---

type fakeAuditor struct {
	mu        sync.Mutex
	summaries []*audit.BatchSummary
	err       error
}

func (f *fakeAuditor) RecordBatch(ctx context.Context, sum *audit.BatchSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.summaries = append(f.summaries, sum)
	return nil
}
