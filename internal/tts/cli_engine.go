package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/book-expert/logger"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.Synthesizer = (*CLIEngine)(nil)

const cliOutputFile = "output.wav"

// ErrBinaryNotFound is returned by HealthCheck when the CLI is not on PATH.
var ErrBinaryNotFound = errors.New("synthesis binary not found")

// CLIEngine synthesises speech by running the f5-tts_infer-cli binary.
type CLIEngine struct {
	binaryPath string
	chunkBytes int
	log        *logger.Logger
}

// NewCLIEngine creates a CLIEngine that runs binaryPath.
func NewCLIEngine(binaryPath string, chunkBytes int, log *logger.Logger) *CLIEngine {
	return &CLIEngine{
		binaryPath: binaryPath,
		chunkBytes: chunkSize(chunkBytes),
		log:        log,
	}
}

// Generate runs the CLI once and returns the WAV it wrote. The working
// directory is removed on every exit path.
func (e *CLIEngine) Generate(ctx context.Context, req core.GenerateRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	outputDir, err := os.MkdirTemp("", "tts-output-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for tts output: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(outputDir)
		if removeErr != nil {
			e.log.Warn("Failed to remove temp dir '%s': %v", outputDir, removeErr)
		}
	}()

	args := buildCLIArgs(req, outputDir)

	// #nosec G204 -- binary path comes from configuration; arguments are passed without a shell
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s execution failed: %w - output: %s", e.binaryPath, err, string(output))
	}

	audioData, err := os.ReadFile(filepath.Join(outputDir, cliOutputFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from output dir: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return audioData, nil
}

// GenerateStream runs a full generation and then emits the WAV in chunks; the
// CLI has no incremental output.
func (e *CLIEngine) GenerateStream(ctx context.Context, req core.GenerateRequest) (<-chan []byte, <-chan error) {
	audioData, err := e.Generate(ctx, req)
	if err != nil {
		return failedStream(err)
	}

	return streamBytes(ctx, audioData, e.chunkBytes)
}

// HealthCheck verifies that the binary can be found.
func (e *CLIEngine) HealthCheck(_ context.Context) error {
	_, err := exec.LookPath(e.binaryPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, e.binaryPath, err)
	}

	return nil
}

func buildCLIArgs(req core.GenerateRequest, outputDir string) []string {
	args := []string{
		"--gen_text", req.Text,
		"--output_dir", outputDir,
		"--output_file", cliOutputFile,
	}

	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	if req.RefAudio != "" {
		args = append(args, "--ref_audio", req.RefAudio)
	}

	if req.RefText != "" {
		args = append(args, "--ref_text", req.RefText)
	}

	if req.Speed != 0 && req.Speed != defaultSpeedFactor {
		args = append(args, "--speed", strconv.FormatFloat(req.Speed, 'f', 2, 64))
	}

	if req.RemoveSilence {
		args = append(args, "--remove_silence")
	}

	return args
}
