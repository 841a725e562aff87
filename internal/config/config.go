// Package config provides the configuration structure for the voice service.
package config

import (
	"errors"
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	StorageSupabase = "supabase"
	StorageNATS     = "nats"
)

// Synthesis engine modes.
const (
	EngineCLI  = "cli"
	EngineHTTP = "http"
)

// Defaults applied by Validate.
const (
	defaultListenAddr         = ":8000"
	defaultVoiceConfigDir     = "voice_configs"
	defaultVoiceDataDir       = "voice_models"
	defaultModel              = "F5-TTS"
	defaultCLIBinary          = "f5-tts_infer-cli"
	defaultTimeoutSeconds     = 300
	defaultStreamChunkBytes   = 16384
	defaultAudioBucket        = "audio"
	defaultEventsSubject      = "voiceai.events"
	defaultMaxInFlight        = 16
	defaultMaxQueued          = 256
	defaultWebhookTimeoutSecs = 10
	defaultRequestsPerMinute  = 60
	defaultBurst              = 10
	defaultWhisperModel       = "whisper-1"
	defaultLogsDir            = "logs"
	defaultAllowedOrigin      = "http://localhost:5173"
)

var (
	// ErrUnknownStorageBackend indicates storage.backend is not supabase or nats.
	ErrUnknownStorageBackend = errors.New("unknown storage backend")
	// ErrUnknownEngine indicates synthesis.engine is not cli or http.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
	// ErrSupabaseURLEmpty indicates the supabase backend or auth lacks a URL.
	ErrSupabaseURLEmpty = errors.New("supabase url cannot be empty")
	// ErrNATSURLEmpty indicates the nats backend is selected without a URL.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty")
	// ErrServiceURLEmpty indicates the http engine is selected without a URL.
	ErrServiceURLEmpty = errors.New("synthesis service url cannot be empty")
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	PublicBaseURL  string   `toml:"public_base_url"`
}

// VoicesConfig describes where voice profiles live and how the default voice
// is built.
type VoicesConfig struct {
	ConfigDir       string   `toml:"config_dir"`
	DataDir         string   `toml:"data_dir"`
	DefaultModel    string   `toml:"default_model"`
	DefaultRefAudio string   `toml:"default_ref_audio"`
	DefaultRefText  string   `toml:"default_ref_text"`
	DefaultLanguage string   `toml:"default_language"`
	DefaultStyles   []string `toml:"default_style_tags"`
}

// SynthesisConfig selects and configures the synthesis engine.
type SynthesisConfig struct {
	Engine           string `toml:"engine"`
	BinaryPath       string `toml:"binary_path"`
	ServiceURL       string `toml:"service_url"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	StreamChunkBytes int    `toml:"stream_chunk_bytes"`
	PreprocessText   bool   `toml:"preprocess_text"`
}

// StorageConfig selects the object store backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Bucket  string `toml:"bucket"`
}

// SupabaseConfig holds the Supabase project settings used by storage and auth.
type SupabaseConfig struct {
	URL        string `toml:"url"         env:"SUPABASE_URL"`
	ServiceKey string `toml:"service_key" env:"SUPABASE_SERVICE_KEY"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                  string `toml:"url"                    env:"NATS_URL"`
	ObjectStoreBucket    string `toml:"object_store_bucket"`
	TextProcessedSubject string `toml:"text_processed_subject"`
	EventsSubject        string `toml:"events_subject"`
}

// StripeConfig holds the payment provider settings.
type StripeConfig struct {
	SecretKey  string `toml:"secret_key"  env:"STRIPE_SECRET_KEY"`
	PriceID    string `toml:"price_id"    env:"STRIPE_PRICE_ID"`
	SuccessURL string `toml:"success_url"`
	CancelURL  string `toml:"cancel_url"`
}

// WebhooksConfig bounds webhook delivery and optionally persists subscriptions.
type WebhooksConfig struct {
	MaxInFlight    int    `toml:"max_in_flight"`
	MaxQueued      int    `toml:"max_queued"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DatabaseURL    string `toml:"database_url" env:"WEBHOOK_DATABASE_URL"`
}

// RateLimitConfig holds per-user request limits for the HTTP API.
type RateLimitConfig struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
	Burst             int  `toml:"burst"`
}

// TranscriptionConfig configures reference-audio transcription.
type TranscriptionConfig struct {
	APIKey string `toml:"api_key" env:"OPENAI_API_KEY"`
	Model  string `toml:"model"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Voices        VoicesConfig        `toml:"voices"`
	Synthesis     SynthesisConfig     `toml:"synthesis"`
	Storage       StorageConfig       `toml:"storage"`
	Supabase      SupabaseConfig      `toml:"supabase"`
	NATS          NATSConfig          `toml:"nats"`
	Stripe        StripeConfig        `toml:"stripe"`
	Webhooks      WebhooksConfig      `toml:"webhooks"`
	RateLimit     RateLimitConfig     `toml:"rate_limit"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load loads the configuration for the voice service, overlays secrets from
// the environment and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = ApplyEnv(&cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overlays environment variables onto the secret-bearing sections.
// Unset variables leave the file values untouched.
func ApplyEnv(cfg *Config) error {
	targets := []any{&cfg.Supabase, &cfg.NATS, &cfg.Stripe, &cfg.Webhooks, &cfg.Transcription}
	for _, target := range targets {
		err := env.Parse(target)
		if err != nil {
			return fmt.Errorf("failed to parse environment overrides: %w", err)
		}
	}

	return nil
}

// Validate fills in defaults and checks that the selected backends are usable.
func (c *Config) Validate() error {
	c.applyDefaults()

	switch c.Storage.Backend {
	case StorageSupabase:
		if c.Supabase.URL == "" {
			return fmt.Errorf("storage: %w", ErrSupabaseURLEmpty)
		}
	case StorageNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("storage: %w", ErrNATSURLEmpty)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageBackend, c.Storage.Backend)
	}

	switch c.Synthesis.Engine {
	case EngineCLI:
	case EngineHTTP:
		if c.Synthesis.ServiceURL == "" {
			return ErrServiceURLEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Synthesis.Engine)
	}

	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.ListenAddr, defaultListenAddr)

	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{defaultAllowedOrigin}
	}

	setDefault(&c.Voices.ConfigDir, defaultVoiceConfigDir)
	setDefault(&c.Voices.DataDir, defaultVoiceDataDir)
	setDefault(&c.Voices.DefaultModel, defaultModel)
	setDefault(&c.Voices.DefaultLanguage, "en")
	setDefault(&c.Synthesis.Engine, EngineCLI)
	setDefault(&c.Synthesis.BinaryPath, defaultCLIBinary)
	setDefault(&c.Storage.Backend, StorageSupabase)
	setDefault(&c.Storage.Bucket, defaultAudioBucket)
	setDefault(&c.NATS.ObjectStoreBucket, c.Storage.Bucket)
	setDefault(&c.NATS.EventsSubject, defaultEventsSubject)
	setDefault(&c.Transcription.Model, defaultWhisperModel)
	setDefault(&c.Paths.BaseLogsDir, defaultLogsDir)

	setDefaultInt(&c.Synthesis.TimeoutSeconds, defaultTimeoutSeconds)
	setDefaultInt(&c.Synthesis.StreamChunkBytes, defaultStreamChunkBytes)
	setDefaultInt(&c.Webhooks.MaxInFlight, defaultMaxInFlight)
	setDefaultInt(&c.Webhooks.MaxQueued, defaultMaxQueued)
	setDefaultInt(&c.Webhooks.TimeoutSeconds, defaultWebhookTimeoutSecs)
	setDefaultInt(&c.RateLimit.RequestsPerMinute, defaultRequestsPerMinute)
	setDefaultInt(&c.RateLimit.Burst, defaultBurst)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDefaultInt(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}
