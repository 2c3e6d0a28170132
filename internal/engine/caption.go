package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/photoderive/pipeline/internal/recordstore"
)

// captionPrompt asks for a gallery-quality description of the image.
const captionPrompt = "Please provide a detailed description of this image. " +
	"Focus on the main subjects, setting, colors, and overall composition."

// DefaultModel is the Gemini model used for caption generation.
// Can be overridden via the GEMINI_MODEL environment variable.
const DefaultModel = "gemini-2.5-flash"

// ModelName returns the Gemini model to use, resolved from the GEMINI_MODEL
// environment variable with DefaultModel as the fallback.
func ModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModel
}

// NewGeminiClient creates a Gemini API client for the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

// CaptionEngine derives a textual description of an image via Gemini.
type CaptionEngine struct {
	client *genai.Client
	model  string
}

// NewCaptionEngine creates a CaptionEngine using the given client and model.
// An empty model falls back to ModelName().
func NewCaptionEngine(client *genai.Client, model string) *CaptionEngine {
	if model == "" {
		model = ModelName()
	}
	return &CaptionEngine{client: client, model: model}
}

func (e *CaptionEngine) Kind() recordstore.Kind { return recordstore.KindAnnotation }

func (e *CaptionEngine) Derive(ctx context.Context, src []byte) (*Result, error) {
	mimeType := http.DetectContentType(src)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &TransformError{Reason: fmt.Sprintf("source is not an image (%s)", mimeType)}
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: src}},
			{Text: captionPrompt},
		},
	}}

	log.Debug().
		Str("model", e.model).
		Str("mimeType", mimeType).
		Int("imageBytes", len(src)).
		Msg("Starting Gemini API call for caption generation")

	callStart := time.Now()
	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	duration := time.Since(callStart)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("Gemini API call timed out")
			return nil, ErrTimeout
		}
		return nil, &TransformError{Reason: "Gemini API call failed", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &TransformError{Reason: "Gemini API returned no candidates"}
	}

	caption := strings.TrimSpace(resp.Text())
	if caption == "" {
		return nil, &TransformError{Reason: "Gemini API returned an empty description"}
	}

	log.Debug().
		Int("captionLength", len(caption)).
		Dur("duration", duration).
		Msg("Caption generated")

	return &Result{Text: caption}, nil
}
