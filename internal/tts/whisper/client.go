// Package whisper transcribes reference audio through the OpenAI Whisper API.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.Transcriber = (*Client)(nil)

// DefaultBaseURL is the OpenAI transcription endpoint.
const DefaultBaseURL = "https://api.openai.com/v1/audio/transcriptions"

// DefaultModel is used when the client is built without a model.
const DefaultModel = "whisper-1"

const defaultTimeout = 60 * time.Second

// Form field names.
const (
	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"
)

// Static errors.
var (
	ErrAPIKeyEmpty      = errors.New("whisper API key is empty")
	ErrAPIRequestFailed = errors.New("whisper API request failed")
	ErrEmptyTranscript  = errors.New("whisper returned an empty transcript")
)

const (
	errFmtOpenFile      = "failed to open audio file: %w"
	errFmtBuildForm     = "failed to build multipart form: %w"
	errFmtAPIStatus     = "%w with status %d: %s"
	errFmtDecode        = "failed to decode response: %w"
	logFmtCloseFailed   = "Failed to close %s: %v"
	logFmtTranscribed   = "Transcribed %s (%d characters)"
	maxErrorBodyPreview = 512
)

// Client provides Whisper API client functionality.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *logger.Logger
}

// Response represents the response from Whisper API.
type Response struct {
	Text string `json:"text"`
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a new Whisper API client.
func NewClient(apiKey, model string, log *logger.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyEmpty
	}

	if model == "" {
		model = DefaultModel
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      model,
		logger:     log,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Transcribe uploads the file at audioPath and returns the trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	body, contentType, err := c.buildForm(audioPath, language)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}

	defer c.closeQuietly(resp.Body, "response body")

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))

		return "", fmt.Errorf(errFmtAPIStatus, ErrAPIRequestFailed, resp.StatusCode, string(preview))
	}

	var whisperResp Response

	err = json.NewDecoder(resp.Body).Decode(&whisperResp)
	if err != nil {
		return "", fmt.Errorf(errFmtDecode, err)
	}

	transcript := strings.TrimSpace(whisperResp.Text)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}

	c.logger.Info(logFmtTranscribed, filepath.Base(audioPath), len(transcript))

	return transcript, nil
}

func (c *Client) buildForm(audioPath, language string) (io.Reader, string, error) {
	file, err := os.Open(filepath.Clean(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf(errFmtOpenFile, err)
	}

	defer c.closeQuietly(file, audioPath)

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf(errFmtBuildForm, err)
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtBuildForm, err)
	}

	err = writer.WriteField(formFieldModel, c.model)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtBuildForm, err)
	}

	if language != "" {
		err = writer.WriteField(formFieldLanguage, language)
		if err != nil {
			return nil, "", fmt.Errorf(errFmtBuildForm, err)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf(errFmtBuildForm, err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) closeQuietly(closer io.Closer, what string) {
	closeErr := closer.Close()
	if closeErr != nil {
		c.logger.Warn(logFmtCloseFailed, what, closeErr)
	}
}
