// Package tts provides the speech synthesis engines used by the dispatcher.
//
// Two engines implement core.Synthesizer: CLIEngine shells out to the
// f5-tts_infer-cli binary, and HTTPEngine talks to a standalone F5-TTS HTTP
// server through HTTPClient.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiGenerateStream = "/v1/generate/stream"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	contentTypeJSON    = "application/json"
	contentTypeWAV     = "audio/wav"
	contentTypeOctet   = "application/octet-stream"
	defaultLanguage    = "en"
	defaultSpeedFactor = 1.0
)

// Static errors.
var (
	ErrTextEmpty              = errors.New("text cannot be empty")
	ErrUnexpectedContentType  = errors.New("unexpected content type")
	ErrReceivedEmptyAudio     = errors.New("received empty audio data")
	ErrServiceNonOK           = errors.New("TTS service returned non-OK status")
	ErrHealthCheckNonOKStatus = errors.New("health check failed")
)

// Error formats.
const (
	errFmtServiceErrorWithCode = "%w (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "%w: %s, body: %s"
)

// HTTPClient represents a client for the standalone F5-TTS HTTP service.
type HTTPClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
}

// Request defines the JSON payload structure for TTS generation requests.
type Request struct {
	Text          string   `json:"text"`
	Model         string   `json:"model,omitempty"`
	RefAudioPath  string   `json:"ref_audio_path,omitempty"`
	RefText       string   `json:"ref_text,omitempty"`
	Style         string   `json:"style,omitempty"`
	Language      string   `json:"language"`
	Speed         float64  `json:"speed"`
	Pitch         float64  `json:"pitch"`
	Energy        float64  `json:"energy"`
	RemoveSilence bool     `json:"remove_silence"`
	StyleTags     []string `json:"style_tags,omitempty"`
}

// ErrorResponse represents a structured error response from the TTS service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates and configures an HTTP client for the TTS service.
// The timeout applies to single-shot requests; streaming requests are bounded
// only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// GenerateSpeech sends a TTS generation request and returns the WAV audio.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.newGenerateRequest(ctx, apiGenerateSpeech, contentTypeWAV, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedContentType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return audioData, nil
}

// StreamSpeech starts a streaming generation and returns the response body.
// The caller must close it; closing it aborts the generation server-side.
func (c *HTTPClient) StreamSpeech(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.newGenerateRequest(ctx, apiGenerateStream, contentTypeOctet, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream to TTS service at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp.Body, nil
}

// HealthCheck verifies that the TTS service is running and operational.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w with status: %s", ErrHealthCheckNonOKStatus, resp.Status)
	}

	return nil
}

func (c *HTTPClient) newGenerateRequest(
	ctx context.Context,
	path, accept string,
	req Request,
) (*http.Request, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	applyRequestDefaults(&req)

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	return httpReq, nil
}

func applyRequestDefaults(req *Request) {
	if req.Language == "" {
		req.Language = defaultLanguage
	}

	if req.Speed == 0 {
		req.Speed = defaultSpeedFactor
	}

	if req.Pitch == 0 {
		req.Pitch = defaultSpeedFactor
	}

	if req.Energy == 0 {
		req.Energy = defaultSpeedFactor
	}
}

// parseErrorResponse attempts to decode a structured JSON error from the
// service, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			ErrServiceNonOK, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, ErrServiceNonOK, resp.Status, string(body))
}
