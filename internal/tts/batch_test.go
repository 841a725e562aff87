package tts_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/tts"
)

var errMockSynth = errors.New("mock synthesis failure")

type mockSynthesizer struct {
	mu        sync.Mutex
	requests  []core.GenerateRequest
	failOn    string
	healthErr error
}

func (m *mockSynthesizer) Generate(_ context.Context, req core.GenerateRequest) ([]byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if req.Text == m.failOn {
		return nil, errMockSynth
	}

	return []byte("WAV:" + req.Text), nil
}

func (m *mockSynthesizer) GenerateStream(
	ctx context.Context,
	req core.GenerateRequest,
) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 1)
	errs := make(chan error, 1)

	data, err := m.Generate(ctx, req)
	if err != nil {
		errs <- err
	} else {
		chunks <- data
	}

	close(chunks)
	close(errs)

	return chunks, errs
}

func (m *mockSynthesizer) HealthCheck(_ context.Context) error {
	return m.healthErr
}

func writeChunksFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestBatchProcessor_ProcessChunks(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{}
	processor := tts.NewBatchProcessor(synth, 2, newTestLogger(t))
	outputDir := filepath.Join(t.TempDir(), "out")

	err := processor.ProcessChunks(
		context.Background(),
		writeChunksFile(t, `["one", "two", "three"]`),
		outputDir,
		core.GenerateRequest{Model: "F5-TTS", RefAudio: "ref.wav"},
	)
	require.NoError(t, err)

	for index, text := range []string{"one", "two", "three"} {
		data, readErr := os.ReadFile(filepath.Join(outputDir, fmt.Sprintf("chunk_%04d.wav", index+1)))
		require.NoError(t, readErr)
		assert.Equal(t, "WAV:"+text, string(data))
	}

	require.Len(t, synth.requests, 3)

	for _, req := range synth.requests {
		assert.Equal(t, "F5-TTS", req.Model)
		assert.Equal(t, "ref.wav", req.RefAudio)
	}
}

func TestBatchProcessor_ProcessChunks_PartialFailure(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{failOn: "two"}
	processor := tts.NewBatchProcessor(synth, 1, newTestLogger(t))
	outputDir := t.TempDir()

	err := processor.ProcessChunks(
		context.Background(),
		writeChunksFile(t, `["one", "two", "three"]`),
		outputDir,
		core.GenerateRequest{},
	)
	require.ErrorIs(t, err, errMockSynth)
	assert.Contains(t, err.Error(), "chunk 2")

	assert.FileExists(t, filepath.Join(outputDir, "chunk_0001.wav"))
	assert.NoFileExists(t, filepath.Join(outputDir, "chunk_0002.wav"))
	assert.FileExists(t, filepath.Join(outputDir, "chunk_0003.wav"))
}

func TestBatchProcessor_ProcessChunks_Errors(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		synth      *mockSynthesizer
		chunksPath string
		outputDir  string
		wantErr    error
	}{
		{
			name:       "empty chunks path",
			synth:      &mockSynthesizer{},
			chunksPath: "",
			outputDir:  t.TempDir(),
			wantErr:    tts.ErrChunksPathEmpty,
		},
		{
			name:       "empty output dir",
			synth:      &mockSynthesizer{},
			chunksPath: writeChunksFile(t, `["a"]`),
			outputDir:  "",
			wantErr:    tts.ErrOutputDirEmpty,
		},
		{
			name:       "no chunks",
			synth:      &mockSynthesizer{},
			chunksPath: writeChunksFile(t, `[]`),
			outputDir:  t.TempDir(),
			wantErr:    tts.ErrNoChunksFound,
		},
		{
			name:       "unhealthy engine",
			synth:      &mockSynthesizer{healthErr: tts.ErrBinaryNotFound},
			chunksPath: writeChunksFile(t, `["a"]`),
			outputDir:  t.TempDir(),
			wantErr:    tts.ErrBinaryNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			processor := tts.NewBatchProcessor(tt.synth, 1, log)
			err := processor.ProcessChunks(ctx, tt.chunksPath, tt.outputDir, core.GenerateRequest{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBatchProcessor_ProcessSingleChunk(t *testing.T) {
	t.Parallel()

	processor := tts.NewBatchProcessor(&mockSynthesizer{}, 0, newTestLogger(t))
	outputPath := filepath.Join(t.TempDir(), "nested", "speech.wav")

	require.NoError(t, processor.ProcessSingleChunk(context.Background(), "hello", outputPath, core.GenerateRequest{}))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "WAV:hello", string(data))

	err = processor.ProcessSingleChunk(context.Background(), "", outputPath, core.GenerateRequest{})
	require.ErrorIs(t, err, tts.ErrTextEmpty)

	err = processor.ProcessSingleChunk(context.Background(), "hello", "", core.GenerateRequest{})
	require.ErrorIs(t, err, tts.ErrOutputPathEmpty)
}
