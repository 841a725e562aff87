// Package config_test tests the configuration loading for the voice service.
package config_test

import (
	"testing"

	"github.com/Reality-Reimagined/voiceai/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
listen_addr = ":9000"
allowed_origins = ["http://localhost:5173"]

[voices]
config_dir = "voice_configs"
default_ref_audio = "refs/basic_ref_en.wav"
default_ref_text = "Some call me nature."

[synthesis]
engine = "http"
service_url = "http://127.0.0.1:8001"
timeout_seconds = 120
preprocess_text = true

[storage]
backend = "nats"
bucket = "AUDIO_FILES"

[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"

[webhooks]
max_in_flight = 4
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "refs/basic_ref_en.wav", cfg.Voices.DefaultRefAudio)
	assert.Equal(t, config.EngineHTTP, cfg.Synthesis.Engine)
	assert.Equal(t, 120, cfg.Synthesis.TimeoutSeconds)
	assert.True(t, cfg.Synthesis.PreprocessText)
	assert.Equal(t, config.StorageNATS, cfg.Storage.Backend)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.ObjectStoreBucket)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, 4, cfg.Webhooks.MaxInFlight)

	// Defaults.
	assert.Equal(t, "F5-TTS", cfg.Voices.DefaultModel)
	assert.Equal(t, "voiceai.events", cfg.NATS.EventsSubject)
	assert.Equal(t, 10, cfg.Webhooks.TimeoutSeconds)
	assert.Equal(t, 256, cfg.Webhooks.MaxQueued)
	assert.Equal(t, 16384, cfg.Synthesis.StreamChunkBytes)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr error
	}{
		{
			name:    "unknown backend",
			cfg:     config.Config{Storage: config.StorageConfig{Backend: "s3"}},
			wantErr: config.ErrUnknownStorageBackend,
		},
		{
			name:    "supabase without url",
			cfg:     config.Config{},
			wantErr: config.ErrSupabaseURLEmpty,
		},
		{
			name:    "nats without url",
			cfg:     config.Config{Storage: config.StorageConfig{Backend: config.StorageNATS}},
			wantErr: config.ErrNATSURLEmpty,
		},
		{
			name: "http engine without url",
			cfg: config.Config{
				Supabase:  config.SupabaseConfig{URL: "https://x.supabase.co"},
				Synthesis: config.SynthesisConfig{Engine: config.EngineHTTP},
			},
			wantErr: config.ErrServiceURLEmpty,
		},
		{
			name: "unknown engine",
			cfg: config.Config{
				Supabase:  config.SupabaseConfig{URL: "https://x.supabase.co"},
				Synthesis: config.SynthesisConfig{Engine: "onnx"},
			},
			wantErr: config.ErrUnknownEngine,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := testCase.cfg
			require.ErrorIs(t, cfg.Validate(), testCase.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("STRIPE_PRICE_ID", "price_123")

	cfg := config.Config{
		Supabase: config.SupabaseConfig{URL: "https://x.supabase.co", ServiceKey: "from-file"},
		Stripe:   config.StripeConfig{PriceID: "from-file"},
	}

	require.NoError(t, config.ApplyEnv(&cfg))

	assert.Equal(t, "https://x.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "service-key", cfg.Supabase.ServiceKey)
	assert.Equal(t, "price_123", cfg.Stripe.PriceID)
}

func TestValidate_DefaultOrigins(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Supabase: config.SupabaseConfig{URL: "https://x.supabase.co"}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, config.EngineCLI, cfg.Synthesis.Engine)
	assert.Equal(t, config.StorageSupabase, cfg.Storage.Backend)
	assert.Equal(t, "en", cfg.Voices.DefaultLanguage)
}
