package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/tts"
	"github.com/Reality-Reimagined/voiceai/internal/tts/text"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const defaultOutputFile = "output.wav"

var (
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	errBothTextAndChunks  = errors.New("cannot specify both --text and --chunks")
)

type speakFlags struct {
	text    string
	chunks  string
	output  string
	voiceID string
	workers int
}

func (f speakFlags) validate() error {
	if f.text == "" && f.chunks == "" {
		return errEitherTextOrChunks
	}

	if f.text != "" && f.chunks != "" {
		return errBothTextAndChunks
	}

	return nil
}

func newSpeakCommand() *cobra.Command {
	var flags speakFlags

	cmd := &cobra.Command{
		Use:   "speak",
		Short: "Render text to WAV files without running the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := flags.validate()
			if err != nil {
				return err
			}

			a, err := loadApp(toolLogFile)
			if err != nil {
				return err
			}

			defer a.close()

			registry, err := a.registry()
			if err != nil {
				return err
			}

			processor := tts.NewBatchProcessor(a.engine(), flags.workers, a.log)
			template := generateTemplate(registry.Resolve(flags.voiceID))

			if flags.chunks != "" {
				outputDir := flags.output
				if outputDir == "" {
					outputDir = "."
				}

				err = processor.ProcessChunks(cmd.Context(), flags.chunks, outputDir, template)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Generated audio files in: %s\n", outputDir)

				return err
			}

			input := flags.text
			if a.cfg.Synthesis.PreprocessText {
				input = text.NewPreprocessor().Normalize(input)
			}

			output := flags.output
			if output == "" || !strings.EqualFold(filepath.Ext(output), ".wav") {
				output = filepath.Join(output, defaultOutputFile)
			}

			err = processor.ProcessSingleChunk(cmd.Context(), input, output, template)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", output)

			return err
		},
	}

	cmd.Flags().StringVarP(&flags.text, "text", "t", "", "Text to convert to speech")
	cmd.Flags().StringVar(&flags.chunks, "chunks", "", "JSON file containing an array of text chunks")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output .wav file, or directory for --chunks")
	cmd.Flags().StringVar(&flags.voiceID, "voice", voice.DefaultID, "Voice profile id")
	cmd.Flags().IntVar(&flags.workers, "workers", 1, "Chunks generated in parallel")

	return cmd
}

// generateTemplate carries the voice-specific engine inputs of profile.
func generateTemplate(profile *voice.Profile) core.GenerateRequest {
	cfg := profile.Config()

	return core.GenerateRequest{
		Model:         cfg.Model,
		RefAudio:      cfg.RefAudio,
		RefText:       cfg.RefText,
		Language:      cfg.Language,
		Speed:         1.0,
		Pitch:         1.0,
		Energy:        1.0,
		RemoveSilence: cfg.RemoveSilence,
	}
}
