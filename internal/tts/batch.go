package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

const (
	// HealthCheckTimeout defines the timeout for health check operations.
	HealthCheckTimeout = 10 * time.Second

	// File and directory permissions.
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Static errors.
var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

const (
	errFmtHealthCheckFailed     = "TTS engine health check failed: %w"
	logFmtEngineHealthy         = "TTS engine is healthy, processing %d chunks"
	logFmtGeneratedAudio        = "Generated audio: %s (%d bytes)"
	outputFileFormat            = "chunk_%04d.wav"
	errFmtChunkFailed           = "chunk %d failed: %w"
	logFmtChunkProcessingFailed = "Failed to process chunk %d: %v"
	logFmtChunkProcessed        = "Processed chunk %d/%d"
)

// BatchProcessor turns text into WAV files on disk using any engine. It backs
// the offline `speak` command.
type BatchProcessor struct {
	synth   core.Synthesizer
	workers int
	logger  *logger.Logger
}

// NewBatchProcessor creates a processor running at most workers generations
// at once.
func NewBatchProcessor(synth core.Synthesizer, workers int, log *logger.Logger) *BatchProcessor {
	if workers <= 0 {
		workers = 1
	}

	return &BatchProcessor{synth: synth, workers: workers, logger: log}
}

// ProcessChunks processes a JSON file containing an array of text chunks.
// Output files are named chunk_0001.wav, chunk_0002.wav, and so on. A failing
// chunk does not stop the others; the last failure is returned.
func (b *BatchProcessor) ProcessChunks(
	ctx context.Context,
	chunksPath, outputDir string,
	template core.GenerateRequest,
) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return fmt.Errorf("failed to read chunks: %w", err)
	}

	err = os.MkdirAll(outputDir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err = b.synth.HealthCheck(healthCtx)
	if err != nil {
		return fmt.Errorf(errFmtHealthCheckFailed, err)
	}

	b.logger.Info(logFmtEngineHealthy, len(chunks))

	return b.processChunksParallel(ctx, chunks, outputDir, template)
}

// ProcessSingleChunk generates text and writes the audio to outputPath.
func (b *BatchProcessor) ProcessSingleChunk(
	ctx context.Context,
	text, outputPath string,
	template core.GenerateRequest,
) error {
	if text == "" {
		return ErrTextEmpty
	}

	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	err := os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	req := template
	req.Text = text

	audioData, err := b.synth.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	b.logger.Info(logFmtGeneratedAudio, outputPath, len(audioData))

	return nil
}

func (b *BatchProcessor) processChunksParallel(
	ctx context.Context,
	chunks []string,
	outputDir string,
	template core.GenerateRequest,
) error {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	workerPool := make(chan struct{}, b.workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, text string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			outputPath := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, index+1))

			err := b.ProcessSingleChunk(ctx, text, outputPath, template)
			if err != nil {
				mutex.Lock()
				lastError = fmt.Errorf(errFmtChunkFailed, index+1, err)
				mutex.Unlock()

				b.logger.Error(logFmtChunkProcessingFailed, index+1, err)

				return
			}

			b.logger.Info(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	return lastError
}

// readChunksFile reads a JSON array of strings.
func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}
