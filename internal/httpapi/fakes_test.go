package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
	"github.com/Reality-Reimagined/voiceai/internal/health"
	"github.com/Reality-Reimagined/voiceai/internal/httpapi"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/objectstore"
	"github.com/Reality-Reimagined/voiceai/internal/tts/audio"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const (
	validToken = "good-token"
	testUser   = "user-1"
	failText   = "please fail"
)

var (
	errEngineDown  = errors.New("engine down")
	errStripeDown  = errors.New("stripe unavailable")
)

// testWAV is a tiny valid mono recording.
func testWAV() []byte {
	pcm := audio.PCM{SampleRate: 8000, Channels: 1, Samples: []int16{10, 20, 30, 40, 50, 60}}

	return pcm.Encode()
}

// scriptedSynth returns testWAV, streams it in three chunks, and fails for
// failText.
type scriptedSynth struct{}

func (scriptedSynth) Generate(_ context.Context, req core.GenerateRequest) ([]byte, error) {
	if strings.Contains(req.Text, failText) {
		return nil, errEngineDown
	}

	return testWAV(), nil
}

func (scriptedSynth) GenerateStream(ctx context.Context, req core.GenerateRequest) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)

		for _, part := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
			select {
			case chunks <- part:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}

		if strings.Contains(req.Text, failText) {
			errs <- errEngineDown
		}
	}()

	return chunks, errs
}

func (scriptedSynth) HealthCheck(context.Context) error {
	return nil
}

type tokenAuth struct{}

func (tokenAuth) VerifyToken(_ context.Context, token string) (string, error) {
	if token != validToken {
		return "", core.E(core.ErrAuth, "verify token", "", errors.New("bad token"))
	}

	return testUser, nil
}

type fakeCheckout struct {
	mu      sync.Mutex
	priceID string
	err     error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, priceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.priceID = priceID
	if f.err != nil {
		return "", f.err
	}

	return "cs_test_123", nil
}

type capturedEvents struct {
	mu    sync.Mutex
	names []string
}

func (c *capturedEvents) Notify(_ context.Context, name string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.names = append(c.names, name)
}

func (c *capturedEvents) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.names...)
}

type testEnv struct {
	server   *httptest.Server
	store    *objectstore.NatsObjectStore
	registry *voice.Registry
	events   *capturedEvents
	checkout *fakeCheckout
	dataDir  string
}

type envOption func(*httpapi.Deps, *httpapi.Options)

func withoutCheckout() envOption {
	return func(deps *httpapi.Deps, _ *httpapi.Options) { deps.Checkout = nil }
}

func withRateLimit(burst int) envOption {
	return func(_ *httpapi.Deps, opts *httpapi.Options) {
		opts.RateLimitEnabled = true
		opts.RequestsPerMinute = 1
		opts.Burst = burst
	}
}

func withOrigins(origins ...string) envOption {
	return func(_ *httpapi.Deps, opts *httpapi.Options) { opts.AllowedOrigins = origins }
}

func withHealth(handler *health.Handler) envOption {
	return func(deps *httpapi.Deps, _ *httpapi.Options) { deps.Health = handler }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	log, err := logger.New(t.TempDir(), "httpapi-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	natsOpts := test.DefaultTestOptions
	natsOpts.Port = -1
	natsOpts.JetStream = true
	natsOpts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&natsOpts)

	conn, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		natsServer.Shutdown()
	})

	js, err := conn.JetStream()
	require.NoError(t, err)

	// The listener exists before the handler, so public URLs can point at it.
	server := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + server.Listener.Addr().String()

	store, err := objectstore.NewNatsObjectStore(js, "audio", baseURL)
	require.NoError(t, err)

	registry, err := voice.NewRegistry(voice.Config{Model: "F5-TTS", Language: "en"}, log)
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		registry: registry,
		events:   &capturedEvents{},
		checkout: &fakeCheckout{},
		dataDir:  t.TempDir(),
	}

	dispatcher, err := dispatch.New(dispatch.Deps{
		Registry:      registry,
		Synthesizer:   scriptedSynth{},
		Store:         store,
		Events:        env.events,
		Subscriptions: notify.NewMemoryStore(),
		Log:           log,
	}, dispatch.Settings{
		ProfileDir:   env.dataDir + "/voice_configs",
		VoiceDataDir: env.dataDir + "/voice_models",
		TempDir:      t.TempDir(),
	})
	require.NoError(t, err)

	deps := httpapi.Deps{
		Dispatcher: dispatcher,
		Store:      store,
		Auth:       tokenAuth{},
		Checkout:   env.checkout,
		Log:        log,
	}
	options := httpapi.Options{
		PriceID:        "price_basic",
		AllowedOrigins: []string{"http://localhost:5173"},
	}

	for _, opt := range opts {
		opt(&deps, &options)
	}

	server.Config.Handler = httpapi.New(deps, options).Handler()
	server.Start()
	t.Cleanup(server.Close)

	env.server = server

	return env
}

// do sends an authenticated request unless token is empty.
func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body *strings.Reader) *http.Response {
	t.Helper()

	var reader *strings.Reader
	if body == nil {
		reader = strings.NewReader("")
	} else {
		reader = body
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, reader)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()

	return e.do(t, http.MethodPost, path, validToken, "application/json", strings.NewReader(body))
}
