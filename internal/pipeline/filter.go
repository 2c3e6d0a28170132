// Package pipeline implements the asynchronous derivation core: filtering
// object-created notifications, driving the per-job status state machine,
// and dispatching batches with per-entry failure isolation.
//
// Delivery is at-least-once. The pipeline relies on idempotent overwrites
// rather than job ownership: a redelivered notification re-runs the job and
// converges to the same terminal state, because every run computes from the
// same immutable source bytes and every status transition is a blind
// single-statement update.
package pipeline

import (
	"path"
	"strings"
)

// Key prefixes. Uploaded originals live under UploadPrefix; derived
// thumbnails are written back into the same bucket under DerivedPrefix.
// The filter skips DerivedPrefix keys so the thumbnail pipeline never
// reprocesses its own output, and the gallery locates a thumbnail purely
// by convention: DerivedPrefix + filename.
const (
	UploadPrefix  = "uploads/"
	DerivedPrefix = "thumbnails/"
)

// Notification is one object-created event entry.
type Notification struct {
	Bucket string
	Key    string
}

// Entry is a validated notification accepted for processing.
type Entry struct {
	Bucket   string
	Key      string
	Filename string // logical identifier: final path segment of Key
}

// Classify validates one notification. It accepts only keys under the
// upload prefix, rejecting derived-artifact keys and anything else in the
// bucket. Returns ok=false for a skip; skipping is not an error.
func Classify(n Notification) (Entry, bool) {
	if strings.HasPrefix(n.Key, DerivedPrefix) {
		return Entry{}, false
	}
	if !strings.HasPrefix(n.Key, UploadPrefix) {
		return Entry{}, false
	}

	filename := path.Base(n.Key)
	if filename == "" || filename == "." || filename == "/" || strings.HasSuffix(n.Key, "/") {
		return Entry{}, false
	}

	return Entry{Bucket: n.Bucket, Key: n.Key, Filename: filename}, true
}

// DerivedKey returns the write key for a derived artifact: the derived
// prefix plus the source's logical identifier.
func DerivedKey(filename string) string {
	return DerivedPrefix + filename
}
