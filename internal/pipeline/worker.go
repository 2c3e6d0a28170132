package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/engine"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// DefaultEngineTimeout bounds one artifact engine call. A configuration
// constant rather than a library default, so a stalled engine cannot hang a
// worker past the batch latency budget.
const DefaultEngineTimeout = 30 * time.Second

// BlobStore is the subset of object-store operations the worker needs.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
}

// Outcome reports how one (filename, kind) job ended. Job failures surface
// here and in the status record; they are never raised as errors.
type Outcome struct {
	Filename string
	Kind     recordstore.Kind
	Status   string // completed or failed
	ErrMsg   string // set when Status is failed
	Bytes    int    // derived artifact size, thumbnail jobs only
	Duration time.Duration
}

// Worker drives the status state machine for one artifact kind:
// processing → completed, or processing → failed. One Process call handles
// one job end to end; the only suspension points are the blob fetch, the
// engine call, and the status writes.
type Worker struct {
	blobs         BlobStore
	records       recordstore.Store
	engine        engine.Engine
	engineTimeout time.Duration
}

// NewWorker creates a Worker. A non-positive engineTimeout falls back to
// DefaultEngineTimeout.
func NewWorker(blobs BlobStore, records recordstore.Store, eng engine.Engine, engineTimeout time.Duration) *Worker {
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}
	return &Worker{
		blobs:         blobs,
		records:       records,
		engine:        eng,
		engineTimeout: engineTimeout,
	}
}

// Process runs one job to a terminal state. Every failure is converted into
// a failed status write; nothing is re-raised to the dispatcher.
func (w *Worker) Process(ctx context.Context, entry Entry) Outcome {
	start := time.Now()
	kind := w.engine.Kind()

	logger := log.With().
		Str("filename", entry.Filename).
		Str("kind", string(kind)).
		Str("key", entry.Key).
		Logger()

	logger.Info().Msg("Processing job")

	// Enter processing unconditionally, clearing any prior result/error.
	// A failed write is logged but does not abort the job: the terminal
	// write below is the one that matters to pollers.
	if err := w.records.SetProcessing(ctx, entry.Filename, kind); err != nil {
		logger.Error().Err(err).Msg("Failed to write processing status — continuing")
	}

	// Fetch source bytes. The adapter's error message is captured verbatim.
	src, err := w.blobs.Get(ctx, entry.Key)
	if err != nil {
		return w.fail(ctx, logger, entry, kind, start, err.Error())
	}
	logger.Debug().Int("bytes", len(src)).Msg("Source downloaded")

	// Transform under a bounded timeout.
	engCtx, cancel := context.WithTimeout(ctx, w.engineTimeout)
	res, err := w.engine.Derive(engCtx, src)
	cancel()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, engine.ErrTimeout) {
			msg = fmt.Sprintf("%s derivation timed out after %s", kind, w.engineTimeout)
		}
		return w.fail(ctx, logger, entry, kind, start, msg)
	}

	result := recordstore.Result{Annotation: res.Text}

	// Persist derived bytes for artifact kinds that produce them, tagged
	// with provenance metadata.
	if len(res.Data) > 0 {
		derivedKey := DerivedKey(entry.Filename)
		metadata := map[string]string{
			"original-key":   entry.Key,
			"thumbnail-size": strconv.Itoa(len(res.Data)),
			"generated-at":   time.Now().UTC().Format(time.RFC3339),
		}
		if err := w.blobs.Put(ctx, derivedKey, res.Data, res.ContentType, metadata); err != nil {
			return w.fail(ctx, logger, entry, kind, start, err.Error())
		}
		logger.Debug().Str("derivedKey", derivedKey).Int("bytes", len(res.Data)).Msg("Artifact uploaded")

		result.ThumbnailKey = derivedKey
		result.ThumbnailSize = int64(len(res.Data))
	}

	// One update carries status, payload, and timestamp together.
	completedAt := time.Now()
	if err := w.records.SetCompleted(ctx, entry.Filename, kind, result, completedAt); err != nil {
		// The job succeeded but its terminal state is only as durable as
		// this write; redelivery is the recovery path.
		logger.Error().Err(err).Msg("Failed to write completed status")
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Job completed")
	return Outcome{
		Filename: entry.Filename,
		Kind:     kind,
		Status:   recordstore.StatusCompleted,
		Bytes:    len(res.Data),
		Duration: time.Since(start),
	}
}

func (w *Worker) fail(ctx context.Context, logger zerolog.Logger, entry Entry, kind recordstore.Kind, start time.Time, msg string) Outcome {
	logger.Warn().Str("error", msg).Msg("Job failed")

	if err := w.records.SetFailed(ctx, entry.Filename, kind, msg); err != nil {
		logger.Error().Err(err).Msg("Failed to write failed status")
	}

	return Outcome{
		Filename: entry.Filename,
		Kind:     kind,
		Status:   recordstore.StatusFailed,
		ErrMsg:   msg,
		Duration: time.Since(start),
	}
}
