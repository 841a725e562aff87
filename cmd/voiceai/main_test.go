package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/config"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{"serve", "voices", "speak", "health"})
}

func TestSpeakFlags_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   speakFlags
		wantErr error
	}{
		{name: "text", flags: speakFlags{text: "hello"}},
		{name: "chunks", flags: speakFlags{chunks: "chunks.json"}},
		{name: "neither", flags: speakFlags{}, wantErr: errEitherTextOrChunks},
		{name: "both", flags: speakFlags{text: "hello", chunks: "chunks.json"}, wantErr: errBothTextAndChunks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.flags.validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpeakCommand_RejectsMissingInputBeforeLoadingConfig(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	root.SetArgs([]string{"speak", "--voice", "narrator"})
	root.SetOut(&bytes.Buffer{})

	require.ErrorIs(t, root.Execute(), errEitherTextOrChunks)
}

func TestGenerateTemplate(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "cmd-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	registry, err := voice.NewRegistry(voice.Config{Model: "F5-TTS", Language: "en"}, log)
	require.NoError(t, err)

	profile, err := registry.Register("alice", voice.Config{
		Model:         "E2-TTS",
		RefAudio:      "/voices/alice.wav",
		RefText:       "hi, it's alice",
		Language:      "fr",
		RemoveSilence: true,
	})
	require.NoError(t, err)

	template := generateTemplate(profile)
	assert.Equal(t, "E2-TTS", template.Model)
	assert.Equal(t, "/voices/alice.wav", template.RefAudio)
	assert.Equal(t, "hi, it's alice", template.RefText)
	assert.Equal(t, "fr", template.Language)
	assert.InDelta(t, 1.0, template.Speed, 0)
	assert.True(t, template.RemoveSilence)
	assert.Empty(t, template.Text)

	var out bytes.Buffer
	require.NoError(t, printVoices(&out, registry.List()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "alice"))
	assert.Contains(t, lines[1], "/voices/alice.wav")
	assert.True(t, strings.HasPrefix(lines[2], "default"))
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestPublicBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		server config.ServerConfig
		want   string
	}{
		{name: "explicit", server: config.ServerConfig{PublicBaseURL: "https://voice.example.com"}, want: "https://voice.example.com"},
		{name: "port only", server: config.ServerConfig{ListenAddr: ":8000"}, want: "http://localhost:8000"},
		{name: "host and port", server: config.ServerConfig{ListenAddr: "10.0.0.5:9000"}, want: "http://10.0.0.5:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := &app{cfg: &config.Config{Server: tt.server}}
			assert.Equal(t, tt.want, a.publicBaseURL())
		})
	}
}

func TestObjectStore_NATSBackendNeedsConnection(t *testing.T) {
	t.Parallel()

	a := &app{cfg: &config.Config{Storage: config.StorageConfig{Backend: config.StorageNATS}}}

	_, err := a.objectStore(nil)
	require.ErrorIs(t, err, errNATSRequired)
}
