package pipeline

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/photoderive/pipeline/internal/audit"
	"github.com/photoderive/pipeline/internal/recordstore"
)

// AuditRecorder persists a batch summary. Nil disables auditing.
type AuditRecorder interface {
	RecordBatch(ctx context.Context, sum *audit.BatchSummary) error
}

// BatchResult aggregates the outcomes of one batch.
type BatchResult struct {
	BatchID   string
	Received  int
	Skipped   int
	Completed int
	Failed    int
	Outcomes  []Outcome
}

// Dispatcher runs the event filter and worker over a notification batch.
// One entry's failure never prevents the remaining entries from being
// processed, and the batch as a whole always completes successfully: with
// at-least-once delivery, failing the batch would only make the scheduler
// redeliver entries that already reached a terminal status.
type Dispatcher struct {
	name    string // pipeline name for logs and audit records
	worker  *Worker
	auditor AuditRecorder
}

// NewDispatcher creates a Dispatcher driving the given worker.
// auditor may be nil.
func NewDispatcher(name string, worker *Worker, auditor AuditRecorder) *Dispatcher {
	return &Dispatcher{name: name, worker: worker, auditor: auditor}
}

// Dispatch filters and processes every entry in the batch sequentially.
// Entries are independent (each touches only its own record), so order
// within the batch carries no meaning.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []Notification) BatchResult {
	start := time.Now()
	result := BatchResult{
		BatchID:  uuid.NewString(),
		Received: len(batch),
	}

	log.Info().
		Str("pipeline", d.name).
		Str("batchId", result.BatchID).
		Int("entries", len(batch)).
		Msg("Dispatching batch")

	var failedKeys []string
	for _, n := range batch {
		n.Key = decodeKey(n.Key)

		entry, ok := Classify(n)
		if !ok {
			log.Debug().Str("key", n.Key).Msg("Skipping entry outside upload prefix")
			result.Skipped++
			continue
		}

		outcome := d.worker.Process(ctx, entry)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status == recordstore.StatusFailed {
			result.Failed++
			failedKeys = append(failedKeys, entry.Key)
		} else {
			result.Completed++
		}
	}

	log.Info().
		Str("pipeline", d.name).
		Str("batchId", result.BatchID).
		Int("skipped", result.Skipped).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	if d.auditor != nil {
		sum := &audit.BatchSummary{
			BatchID:    result.BatchID,
			Pipeline:   d.name,
			Received:   result.Received,
			Skipped:    result.Skipped,
			Completed:  result.Completed,
			Failed:     result.Failed,
			FailedKeys: failedKeys,
			DurationMs: time.Since(start).Milliseconds(),
			StartedAt:  start.UTC().Format(time.RFC3339),
		}
		if err := d.auditor.RecordBatch(ctx, sum); err != nil {
			// Best effort: auditing must not affect batch completion.
			log.Warn().Err(err).Str("batchId", result.BatchID).Msg("Failed to persist batch summary")
		}
	}

	return result
}

// decodeKey reverses the URL encoding S3 applies to object keys in event
// notifications (spaces arrive as '+'). Falls back to the raw key when the
// encoding is invalid.
func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
