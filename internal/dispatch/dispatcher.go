// Package dispatch routes synthesis, streaming, cloning and editing requests
// to the resolved voice profile and the external collaborators, and emits the
// lifecycle events webhook subscribers listen for.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/observe"
	"github.com/Reality-Reimagined/voiceai/internal/tts/text"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

// Request defaults.
const (
	DefaultLanguage = "en"
	DefaultFactor   = 1.0
)

// Key prefixes in the object store.
const (
	SynthesisPrefix = "tts_output"
	EditPrefix      = "edited"
	anonymousUser   = "anonymous"
)

// Synthesis modes recorded in metrics.
const (
	modeSingle = "single"
	modeStream = "stream"
)

var (
	// ErrTextEmpty is returned when a request has no text to speak.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrNegativeFactor is returned for a negative speed, pitch or energy.
	ErrNegativeFactor = errors.New("speed, pitch and energy must not be negative")
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dispatcher dependency")
)

// EventNotifier receives lifecycle events. Implementations must not block.
type EventNotifier interface {
	Notify(ctx context.Context, name string, data map[string]any)
}

// SynthesisRequest is one text-to-speech call. Zero values select defaults.
type SynthesisRequest struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Style    string  `json:"style,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	Energy   float64 `json:"energy,omitempty"`

	// UserID scopes the storage key and event payloads. Set by the caller
	// from the verified credential, never from the request body.
	UserID string `json:"-"`
}

// Artifact is a stored audio result.
type Artifact struct {
	URL     string `json:"audio_url"`
	Key     string `json:"key"`
	VoiceID string `json:"voice_id,omitempty"`
	Size    int    `json:"size"`
}

// Deps are the collaborators of a Dispatcher. Transcriber and Metrics are
// optional.
type Deps struct {
	Registry      *voice.Registry
	Synthesizer   core.Synthesizer
	Store         core.ObjectStore
	Events        EventNotifier
	Subscriptions notify.Store
	Transcriber   core.Transcriber
	Metrics       *observe.Metrics
	Log           *logger.Logger
}

// Settings are the filesystem locations and switches of a Dispatcher.
type Settings struct {
	// ProfileDir receives <name>.toml for every cloned voice.
	ProfileDir string
	// VoiceDataDir receives <name>/reference-<uuid>.wav for every cloned voice.
	VoiceDataDir string
	// TempDir is the parent of per-request scratch directories. Empty means
	// os.TempDir().
	TempDir string
	// SynthesisTimeout bounds one single-shot synthesis. Zero means no bound.
	SynthesisTimeout time.Duration
	// Preprocess normalises text before synthesis.
	Preprocess bool
}

// Dispatcher serves every request mode against one registry.
type Dispatcher struct {
	registry      *voice.Registry
	synth         core.Synthesizer
	store         core.ObjectStore
	events        EventNotifier
	subscriptions notify.Store
	transcriber   core.Transcriber
	metrics       *observe.Metrics
	preprocessor  *text.Preprocessor
	settings      Settings
	log           *logger.Logger
}

// New validates deps and builds a Dispatcher.
func New(deps Deps, settings Settings) (*Dispatcher, error) {
	required := map[string]bool{
		"registry":      deps.Registry != nil,
		"synthesizer":   deps.Synthesizer != nil,
		"store":         deps.Store != nil,
		"events":        deps.Events != nil,
		"subscriptions": deps.Subscriptions != nil,
		"logger":        deps.Log != nil,
	}

	for name, present := range required {
		if !present {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, name)
		}
	}

	if settings.TempDir == "" {
		settings.TempDir = os.TempDir()
	}

	d := &Dispatcher{
		registry:      deps.Registry,
		synth:         deps.Synthesizer,
		store:         deps.Store,
		events:        deps.Events,
		subscriptions: deps.Subscriptions,
		transcriber:   deps.Transcriber,
		metrics:       deps.Metrics,
		settings:      settings,
		log:           deps.Log,
	}

	if settings.Preprocess {
		d.preprocessor = text.NewPreprocessor()
	}

	return d, nil
}

// Registry returns the registry the dispatcher resolves voices against.
func (d *Dispatcher) Registry() *voice.Registry {
	return d.registry
}

// Synthesize generates speech for req, stores it and returns where it lives.
// The call is not cancelled when ctx is; only SynthesisTimeout bounds it.
func (d *Dispatcher) Synthesize(ctx context.Context, req SynthesisRequest) (*Artifact, error) {
	const op = "synthesize"

	profile := d.registry.Resolve(req.VoiceID)

	genReq, err := d.buildGenerateRequest(req, profile)
	if err != nil {
		return nil, core.E(core.ErrValidation, op, profile.ID(), err)
	}

	workCtx := context.WithoutCancel(ctx)

	if d.settings.SynthesisTimeout > 0 {
		var cancel context.CancelFunc

		workCtx, cancel = context.WithTimeout(workCtx, d.settings.SynthesisTimeout)
		defer cancel()
	}

	start := time.Now()
	audioData, err := d.synth.Generate(workCtx, genReq)
	d.recordSynthesis(ctx, profile.ID(), modeSingle, time.Since(start), err)

	if err != nil {
		d.log.Error("Synthesis with voice '%s' failed: %v", profile.ID(), err)

		return nil, d.fail(ctx, notify.EventTTSFailed, req.UserID,
			core.E(core.ErrSynthesis, op, profile.ID(), err))
	}

	artifact, err := d.put(workCtx, SynthesisPrefix, req.UserID, audioData)
	if err != nil {
		return nil, d.fail(ctx, notify.EventTTSFailed, req.UserID,
			core.E(core.ErrStorage, op, profile.ID(), err))
	}

	artifact.VoiceID = profile.ID()

	d.log.Info("Synthesized %d bytes with voice '%s' to %s", artifact.Size, profile.ID(), artifact.Key)
	d.events.Notify(ctx, notify.EventTTSCompleted, map[string]any{
		"user_id":   req.UserID,
		"voice_id":  artifact.VoiceID,
		"audio_url": artifact.URL,
	})

	return artifact, nil
}

// buildGenerateRequest merges req over the profile and applies defaults.
func (d *Dispatcher) buildGenerateRequest(req SynthesisRequest, profile *voice.Profile) (core.GenerateRequest, error) {
	input := req.Text
	if d.preprocessor != nil {
		input = d.preprocessor.Normalize(input)
	}

	if strings.TrimSpace(input) == "" {
		return core.GenerateRequest{}, ErrTextEmpty
	}

	if req.Speed < 0 || req.Pitch < 0 || req.Energy < 0 {
		return core.GenerateRequest{}, ErrNegativeFactor
	}

	cfg := profile.Config()

	language := req.Language
	if language == "" {
		language = cfg.Language
	}

	if language == "" {
		language = DefaultLanguage
	}

	return core.GenerateRequest{
		Text:          input,
		Model:         cfg.Model,
		RefAudio:      cfg.RefAudio,
		RefText:       cfg.RefText,
		Style:         req.Style,
		Language:      language,
		Speed:         orDefault(req.Speed),
		Pitch:         orDefault(req.Pitch),
		Energy:        orDefault(req.Energy),
		RemoveSilence: cfg.RemoveSilence,
	}, nil
}

// put uploads data under prefix/user/<uuid>.wav.
func (d *Dispatcher) put(ctx context.Context, prefix, userID string, data []byte) (*Artifact, error) {
	if userID == "" {
		userID = anonymousUser
	}

	key := prefix + "/" + userID + "/" + uuid.NewString() + ".wav"

	err := d.store.Upload(ctx, key, data)
	if err != nil {
		d.log.Error("Failed to upload %s: %v", key, err)

		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	return &Artifact{URL: d.store.PublicURL(key), Key: key, Size: len(data)}, nil
}

// fail emits a failure event carrying err's message and returns err.
func (d *Dispatcher) fail(ctx context.Context, event, userID string, err error) error {
	d.events.Notify(ctx, event, map[string]any{
		"user_id": userID,
		"error":   err.Error(),
	})

	return err
}

func (d *Dispatcher) recordSynthesis(ctx context.Context, voiceID, mode string, elapsed time.Duration, err error) {
	if d.metrics != nil {
		d.metrics.RecordSynthesis(ctx, voiceID, mode, elapsed, err)
	}
}

func orDefault(v float64) float64 {
	if v == 0 {
		return DefaultFactor
	}

	return v
}
