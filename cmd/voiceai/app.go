package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/Reality-Reimagined/voiceai/internal/config"
	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/health"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/objectstore"
	"github.com/Reality-Reimagined/voiceai/internal/tts"
	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const (
	bootstrapLogFile = "voiceai-bootstrap.log"
	natsClientName   = "voiceai"
)

var errNATSRequired = errors.New("nats connection required for the nats storage backend")

// store is an object store that can report its own reachability.
type store interface {
	core.ObjectStore
	Ping(ctx context.Context) error
}

// app carries the configuration and logger every command starts from.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

func setupLogger(dir, file string) (*logger.Logger, error) {
	log, err := logger.New(dir, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// loadApp loads configuration with a temporary bootstrap logger and then
// opens logFile in the configured logs directory.
func loadApp(logFile string) (*app, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, err
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, err
	}

	return &app{cfg: cfg, log: finalLog}, nil
}

func (a *app) close() {
	err := a.log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
	}
}

func (a *app) registry() (*voice.Registry, error) {
	voices := a.cfg.Voices

	return voice.Initialize(voice.Config{
		Model:     voices.DefaultModel,
		RefAudio:  voices.DefaultRefAudio,
		RefText:   voices.DefaultRefText,
		Language:  voices.DefaultLanguage,
		StyleTags: voices.DefaultStyles,
	}, voices.ConfigDir, a.log)
}

// engine builds the configured synthesis engine.
func (a *app) engine() core.Synthesizer {
	synthesis := a.cfg.Synthesis

	if synthesis.Engine == config.EngineHTTP {
		timeout := time.Duration(synthesis.TimeoutSeconds) * time.Second

		return tts.NewHTTPEngine(synthesis.ServiceURL, timeout, synthesis.StreamChunkBytes, a.log)
	}

	return tts.NewCLIEngine(synthesis.BinaryPath, synthesis.StreamChunkBytes, a.log)
}

// connectNATS returns nil without error when no NATS URL is configured.
func (a *app) connectNATS() (*nats.Conn, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(a.cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", a.cfg.NATS.URL, err)
	}

	a.log.Info("Connected to NATS at %s", conn.ConnectedUrl())

	return conn, nil
}

// objectStore builds the configured storage backend. conn is required for the
// nats backend.
func (a *app) objectStore(conn *nats.Conn) (store, error) {
	if a.cfg.Storage.Backend != config.StorageNATS {
		return objectstore.NewSupabaseStore(a.cfg.Supabase.URL, a.cfg.Supabase.ServiceKey, a.cfg.Storage.Bucket), nil
	}

	if conn == nil {
		return nil, errNATSRequired
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	natsStore, err := objectstore.NewNatsObjectStore(js, a.cfg.NATS.ObjectStoreBucket, a.publicBaseURL())
	if err != nil {
		return nil, err
	}

	return natsStore, nil
}

// publicBaseURL is where this process is reachable for /audio links.
func (a *app) publicBaseURL() string {
	if a.cfg.Server.PublicBaseURL != "" {
		return a.cfg.Server.PublicBaseURL
	}

	addr := a.cfg.Server.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	return "http://" + addr
}

// subscriptions returns the webhook store and a function releasing it.
// Subscriptions live in PostgreSQL when a database URL is configured and in
// memory otherwise.
func (a *app) subscriptions(ctx context.Context) (notify.Store, func(), error) {
	dsn := a.cfg.Webhooks.DatabaseURL
	if dsn == "" {
		return notify.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open webhook database: %w", err)
	}

	subs := notify.NewPostgresStore(pool)

	err = subs.Migrate(ctx)
	if err != nil {
		pool.Close()

		return nil, nil, err
	}

	a.log.Info("Webhook subscriptions persisted in PostgreSQL")

	return subs, pool.Close, nil
}

// checks are the readiness probes shared by `serve` and `health`.
func checks(engine core.Synthesizer, objects store) *health.Handler {
	return health.New(
		health.Checker{Name: "engine", Check: engine.HealthCheck},
		health.Checker{Name: "storage", Check: objects.Ping},
	)
}
