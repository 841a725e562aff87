package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const publicPrefix = "https://cdn.test/audio/"

var (
	errEngineDown  = errors.New("engine down")
	errBucketFull  = errors.New("bucket full")
	errNoWhisper   = errors.New("whisper unavailable")
	errMidStream   = errors.New("decoder crashed")
	errForeignLink = errors.New("foreign url")
)

// fakeSynth records requests. Stream behaviour is scripted per test.
type fakeSynth struct {
	mu        sync.Mutex
	requests  []core.GenerateRequest
	ctxErrs   []error
	audio     []byte
	err       error
	chunks    [][]byte
	streamErr error
	block     bool
	released  chan struct{}
}

func (f *fakeSynth) Generate(ctx context.Context, req core.GenerateRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return f.audio, nil
}

func (f *fakeSynth) GenerateStream(ctx context.Context, req core.GenerateRequest) (<-chan []byte, <-chan error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	chunks := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer func() {
			if f.released != nil {
				close(f.released)
			}
		}()
		defer close(errs)
		defer close(chunks)

		for _, chunk := range f.chunks {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}

		if f.block {
			<-ctx.Done()
			errs <- ctx.Err()

			return
		}

		if f.streamErr != nil {
			errs <- f.streamErr
		}
	}()

	return chunks, errs
}

func (f *fakeSynth) HealthCheck(context.Context) error {
	return nil
}

func (f *fakeSynth) lastRequest(t *testing.T) core.GenerateRequest {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.requests)

	return f.requests[len(f.requests)-1]
}

// fakeStore keeps objects in memory and serves them under publicPrefix.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, key string, data []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = data

	return nil
}

func (s *fakeStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, core.ErrNotFound)
	}

	return data, nil
}

func (s *fakeStore) PublicURL(key string) string {
	return publicPrefix + key
}

func (s *fakeStore) KeyFromURL(rawURL string) (string, error) {
	key, ok := strings.CutPrefix(rawURL, publicPrefix)
	if !ok {
		return "", errForeignLink
	}

	return key, nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}

	return keys
}

type sentEvent struct {
	name string
	data map[string]any
}

// recordingEvents captures notifications synchronously.
type recordingEvents struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingEvents) Notify(_ context.Context, name string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, sentEvent{name: name, data: data})
}

func (r *recordingEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.events))
	for _, event := range r.events {
		names = append(names, event.name)
	}

	return names
}

func (r *recordingEvents) only(t *testing.T) sentEvent {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.Len(t, r.events, 1)

	return r.events[0]
}

type fakeTranscriber struct {
	text  string
	err   error
	paths []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string) (string, error) {
	f.paths = append(f.paths, audioPath)

	return f.text, f.err
}

type harness struct {
	dispatcher *dispatch.Dispatcher
	registry   *voice.Registry
	synth      *fakeSynth
	store      *fakeStore
	events     *recordingEvents
	subs       *notify.MemoryStore
	settings   dispatch.Settings
}

type harnessOption func(*dispatch.Deps, *dispatch.Settings)

func withTranscriber(tr core.Transcriber) harnessOption {
	return func(deps *dispatch.Deps, _ *dispatch.Settings) { deps.Transcriber = tr }
}

func withPreprocessing() harnessOption {
	return func(_ *dispatch.Deps, settings *dispatch.Settings) { settings.Preprocess = true }
}

func newHarness(t *testing.T, synth *fakeSynth, opts ...harnessOption) *harness {
	t.Helper()

	log, err := logger.New(t.TempDir(), "dispatch-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	registry, err := voice.NewRegistry(voice.Config{Model: "F5-TTS", RefAudio: "default.wav", Language: "en"}, log)
	require.NoError(t, err)

	h := &harness{
		registry: registry,
		synth:    synth,
		store:    newFakeStore(),
		events:   &recordingEvents{},
		subs:     notify.NewMemoryStore(),
	}

	root := t.TempDir()
	deps := dispatch.Deps{
		Registry:      registry,
		Synthesizer:   synth,
		Store:         h.store,
		Events:        h.events,
		Subscriptions: h.subs,
		Log:           log,
	}
	h.settings = dispatch.Settings{
		ProfileDir:   root + "/voice_configs",
		VoiceDataDir: root + "/voice_models",
		TempDir:      t.TempDir(),
	}

	for _, opt := range opts {
		opt(&deps, &h.settings)
	}

	h.dispatcher, err = dispatch.New(deps, h.settings)
	require.NoError(t, err)

	return h
}
