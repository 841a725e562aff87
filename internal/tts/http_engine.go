package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.Synthesizer = (*HTTPEngine)(nil)

// HTTPEngine synthesises speech by calling a standalone F5-TTS HTTP service.
type HTTPEngine struct {
	client     *HTTPClient
	chunkBytes int
	logger     *logger.Logger
}

// NewHTTPEngine creates an HTTP-based engine for the service at serviceURL.
func NewHTTPEngine(serviceURL string, timeout time.Duration, chunkBytes int, log *logger.Logger) *HTTPEngine {
	return NewHTTPEngineWithClient(NewHTTPClient(serviceURL, timeout), chunkBytes, log)
}

// NewHTTPEngineWithClient creates an HTTP-based engine around an existing client.
func NewHTTPEngineWithClient(client *HTTPClient, chunkBytes int, log *logger.Logger) *HTTPEngine {
	return &HTTPEngine{
		client:     client,
		chunkBytes: chunkSize(chunkBytes),
		logger:     log,
	}
}

// Generate returns the WAV audio for req.
func (e *HTTPEngine) Generate(ctx context.Context, req core.GenerateRequest) ([]byte, error) {
	audioData, err := e.client.GenerateSpeech(ctx, toRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	e.logger.Info("Generated audio via HTTP engine (%d bytes)", len(audioData))

	return audioData, nil
}

// GenerateStream relays the service's chunked response. Cancelling ctx closes
// the response body, which ends the generation on the service side.
func (e *HTTPEngine) GenerateStream(ctx context.Context, req core.GenerateRequest) (<-chan []byte, <-chan error) {
	body, err := e.client.StreamSpeech(ctx, toRequest(req))
	if err != nil {
		return failedStream(fmt.Errorf("failed to start speech stream: %w", err))
	}

	return streamReader(ctx, body, e.chunkBytes)
}

// HealthCheck reports whether the service is reachable.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	return e.client.HealthCheck(ctx)
}

func toRequest(req core.GenerateRequest) Request {
	return Request{
		Text:          req.Text,
		Model:         req.Model,
		RefAudioPath:  req.RefAudio,
		RefText:       req.RefText,
		Style:         req.Style,
		Language:      req.Language,
		Speed:         req.Speed,
		Pitch:         req.Pitch,
		Energy:        req.Energy,
		RemoveSilence: req.RemoveSilence,
	}
}
