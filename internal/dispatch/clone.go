package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/tts/audio"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const (
	// ReferenceFileName names the upload while it sits in scratch.
	ReferenceFileName = "reference.wav"
	// ReferencePrefix starts the name of every installed reference audio file.
	// Each clone gets its own file so a failed re-clone never touches the
	// audio the registered profile points at.
	ReferencePrefix = "reference-"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

var (
	// ErrAudioEmpty is returned when no reference audio was uploaded.
	ErrAudioEmpty = errors.New("reference audio cannot be empty")
	// ErrNotWAVFile is returned when the upload is not named *.wav.
	ErrNotWAVFile = errors.New("reference audio must be a .wav file")
	// ErrNotWAVData is returned when the upload lacks a RIFF/WAVE header.
	ErrNotWAVData = errors.New("reference audio is not a RIFF/WAVE container")
)

// VoiceRegistration is a request to clone a voice from reference audio.
type VoiceRegistration struct {
	Name     string
	Filename string
	Audio    []byte
	RefText  string
	Language string
	UserID   string
}

// Validate checks the name and the audio container without touching disk.
func (r VoiceRegistration) Validate() error {
	err := voice.ValidateID(r.Name)
	if err != nil {
		return err
	}

	if len(r.Audio) == 0 {
		return ErrAudioEmpty
	}

	if !audio.IsWAVFile(r.Filename) {
		return fmt.Errorf("%w: got %q", ErrNotWAVFile, r.Filename)
	}

	if !audio.IsWAV(r.Audio) {
		return ErrNotWAVData
	}

	return nil
}

// RegisterVoice validates the reference audio, persists it under the voice
// data directory, writes the profile file and registers the profile. A
// per-request scratch directory holds the upload while it is transcribed and
// is removed on every return path. Any failure leaves the registry, the
// profile file and the previous reference audio untouched.
func (d *Dispatcher) RegisterVoice(ctx context.Context, reg VoiceRegistration) (profile *voice.Profile, err error) {
	const op = "register voice"

	defer func() {
		if d.metrics != nil {
			d.metrics.RecordVoiceRegistration(ctx, err)
		}

		if err != nil {
			d.log.Warn("Voice registration '%s' failed: %v", reg.Name, err)
			d.events.Notify(ctx, notify.EventVoiceCloneFailed, map[string]any{
				"user_id":  reg.UserID,
				"voice_id": reg.Name,
				"error":    err.Error(),
			})
		}
	}()

	err = reg.Validate()
	if err != nil {
		return nil, core.E(core.ErrValidation, op, reg.Name, err)
	}

	scratch, err := os.MkdirTemp(d.settings.TempDir, "voice-clone-*")
	if err != nil {
		return nil, core.E(core.ErrStorage, op, reg.Name, fmt.Errorf("failed to create scratch directory: %w", err))
	}

	defer func() {
		removeErr := os.RemoveAll(scratch)
		if removeErr != nil {
			d.log.Error("Failed to remove scratch directory %s: %v", scratch, removeErr)
		}
	}()

	uploadPath := filepath.Join(scratch, ReferenceFileName)

	err = os.WriteFile(uploadPath, reg.Audio, filePermissions)
	if err != nil {
		return nil, core.E(core.ErrStorage, op, reg.Name, fmt.Errorf("failed to write reference audio: %w", err))
	}

	refText := strings.TrimSpace(reg.RefText)
	if refText == "" {
		refText = d.transcribe(ctx, uploadPath, reg.Language)
	}

	previous, _ := d.registry.Lookup(reg.Name)

	refAudio, err := d.persistReference(reg.Name, reg.Audio)
	if err != nil {
		return nil, core.E(core.ErrStorage, op, reg.Name, err)
	}

	installed := false

	defer func() {
		if !installed {
			d.discardReference(refAudio)
		}
	}()

	cfg := d.cloneConfig(reg, refAudio, refText)

	_, err = voice.WriteProfileFile(d.settings.ProfileDir, reg.Name, cfg)
	if err != nil {
		return nil, core.E(core.ErrStorage, op, reg.Name, err)
	}

	profile, err = d.registry.Register(reg.Name, cfg)
	if err != nil {
		return nil, err
	}

	installed = true

	if previous != nil {
		d.retireReference(reg.Name, previous.Config().RefAudio, refAudio)
	}

	d.log.Info("Registered cloned voice '%s'", reg.Name)
	d.events.Notify(ctx, notify.EventVoiceCloned, map[string]any{
		"user_id":  reg.UserID,
		"voice_id": reg.Name,
	})

	return profile, nil
}

// transcribe returns the spoken text of the reference, or "" when no
// transcriber is configured or it fails. The engine then transcribes on its
// own.
func (d *Dispatcher) transcribe(ctx context.Context, path, language string) string {
	if d.transcriber == nil {
		return ""
	}

	transcript, err := d.transcriber.Transcribe(ctx, path, language)
	if err != nil {
		d.log.Warn("Reference transcription failed, continuing without text: %v", err)

		return ""
	}

	return transcript
}

// persistReference writes the reference audio to a new
// <data>/<name>/reference-<uuid>.wav and returns its path.
func (d *Dispatcher) persistReference(name string, data []byte) (string, error) {
	dir := filepath.Join(d.settings.VoiceDataDir, name)

	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return "", fmt.Errorf("failed to create voice data directory: %w", err)
	}

	path := filepath.Join(dir, ReferencePrefix+uuid.NewString()+".wav")

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		_ = os.Remove(path)

		return "", fmt.Errorf("failed to write reference audio: %w", err)
	}

	return path, nil
}

func (d *Dispatcher) discardReference(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Error("Failed to remove staged reference audio %s: %v", path, err)
	}
}

// retireReference removes the reference audio a replaced clone used. Files
// outside the voice's data directory were not written by RegisterVoice and
// are left alone.
func (d *Dispatcher) retireReference(name, oldPath, newPath string) {
	dir := filepath.Join(d.settings.VoiceDataDir, name)
	if oldPath == "" || oldPath == newPath || filepath.Dir(oldPath) != dir {
		return
	}

	if !strings.HasPrefix(filepath.Base(oldPath), ReferencePrefix) {
		return
	}

	d.discardReference(oldPath)
}

func (d *Dispatcher) cloneConfig(reg VoiceRegistration, refAudio, refText string) voice.Config {
	defaults := d.registry.Defaults()

	language := reg.Language
	if language == "" {
		language = defaults.Language
	}

	return voice.Config{
		Model:         defaults.Model,
		RefAudio:      refAudio,
		RefText:       refText,
		Language:      language,
		RemoveSilence: true,
		OutputDir:     filepath.Join(d.settings.VoiceDataDir, reg.Name),
		Name:          reg.Name,
	}
}
