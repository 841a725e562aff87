// Package core defines the collaborator interfaces and shared request types
// for the voice service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store
// whose objects can be addressed by a public URL.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, error)
}

// GenerateRequest carries everything a synthesis engine needs for one call.
// The voice-specific fields come from the resolved profile.
type GenerateRequest struct {
	Text          string
	Model         string
	RefAudio      string
	RefText       string
	Style         string
	Language      string
	Speed         float64
	Pitch         float64
	Energy        float64
	RemoveSilence bool
}

// Synthesizer defines the interface for a text-to-speech engine.
type Synthesizer interface {
	// Generate returns a complete WAV file.
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)

	// GenerateStream emits raw audio chunks in production order. The chunk
	// channel is closed when generation ends; at most one error is sent on the
	// error channel before it is closed. Cancelling ctx stops generation.
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan []byte, <-chan error)

	HealthCheck(ctx context.Context) error
}

// Transcriber turns reference audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Authenticator verifies a bearer credential and returns the user it belongs to.
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// CheckoutProvider creates payment checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, priceID string) (string, error)
}
