// Package engine defines the artifact derivation contract and its two
// implementations: an AI caption engine backed by Gemini and a pure-Go
// thumbnail resize engine. Both take raw source bytes and return a result
// payload or a typed failure; neither retries, and both respect the bounded
// call timeout imposed by the caller's context.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/photoderive/pipeline/internal/recordstore"
)

// ErrTimeout indicates the engine call exceeded its deadline.
var ErrTimeout = errors.New("engine call timed out")

// TransformError reports an engine-level failure: a malformed source, an
// engine-reported error, or an unusable response.
type TransformError struct {
	Reason string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transform failed: %s", e.Reason)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Result is the derivation output. Text is set by caption engines; Data and
// ContentType by engines that produce derived bytes.
type Result struct {
	Text        string
	Data        []byte
	ContentType string
}

// Engine derives one artifact kind from raw source bytes.
type Engine interface {
	// Kind reports which derivation this engine produces.
	Kind() recordstore.Kind

	// Derive transforms source bytes into the artifact. Implementations
	// return ErrTimeout when ctx expires and *TransformError for engine
	// failures; they perform no retries of their own.
	Derive(ctx context.Context, src []byte) (*Result, error)
}
