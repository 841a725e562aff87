package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Reality-Reimagined/voiceai/internal/auth"
	"github.com/Reality-Reimagined/voiceai/internal/billing"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
	"github.com/Reality-Reimagined/voiceai/internal/httpapi"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/observe"
	"github.com/Reality-Reimagined/voiceai/internal/tts/whisper"
	"github.com/Reality-Reimagined/voiceai/internal/worker"
)

const (
	serveLogFile      = "voiceai.log"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(serveLogFile)
			if err != nil {
				return err
			}

			defer a.close()

			return a.serve(ctx)
		},
	}
}

// serve wires every component and runs until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	meterProvider, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("failed to initialise metrics: %w", err)
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = shutdownMetrics(flushCtx)
	}()

	metrics, err := observe.NewMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	conn, err := a.connectNATS()
	if err != nil {
		return err
	}

	if conn != nil {
		defer conn.Close()
	}

	objects, err := a.objectStore(conn)
	if err != nil {
		return err
	}

	registry, err := a.registry()
	if err != nil {
		return err
	}

	engine := a.engine()

	subs, closeSubs, err := a.subscriptions(ctx)
	if err != nil {
		return err
	}

	defer closeSubs()

	notifierOpts := []notify.Option{
		notify.WithMaxInFlight(cfg.Webhooks.MaxInFlight),
		notify.WithMaxQueued(cfg.Webhooks.MaxQueued),
		notify.WithTimeout(time.Duration(cfg.Webhooks.TimeoutSeconds) * time.Second),
		notify.WithRecorder(metrics),
	}
	if conn != nil {
		notifierOpts = append(notifierOpts, notify.WithMirror(notify.NewNatsMirror(conn, cfg.NATS.EventsSubject)))
	}

	notifier := notify.NewNotifier(subs, a.log, notifierOpts...)
	defer notifier.Wait()

	deps := dispatch.Deps{
		Registry:      registry,
		Synthesizer:   engine,
		Store:         objects,
		Events:        notifier,
		Subscriptions: subs,
		Metrics:       metrics,
		Log:           a.log,
	}

	if cfg.Transcription.APIKey != "" {
		transcriber, whisperErr := whisper.NewClient(cfg.Transcription.APIKey, cfg.Transcription.Model, a.log)
		if whisperErr != nil {
			return whisperErr
		}

		deps.Transcriber = transcriber
	}

	dispatcher, err := dispatch.New(deps, dispatch.Settings{
		ProfileDir:       cfg.Voices.ConfigDir,
		VoiceDataDir:     cfg.Voices.DataDir,
		SynthesisTimeout: time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
		Preprocess:       cfg.Synthesis.PreprocessText,
	})
	if err != nil {
		return err
	}

	apiDeps, err := a.apiDeps(dispatcher, objects)
	if err != nil {
		return err
	}

	apiDeps.Health = checks(engine, objects)
	apiDeps.Metrics = metrics
	apiDeps.MetricsHandler = promhttp.Handler()

	server := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: httpapi.New(apiDeps, httpapi.Options{
			PriceID:           cfg.Stripe.PriceID,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			RateLimitEnabled:  cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.log.Info("Listening on %s (%d voices loaded)", server.Addr, len(registry.List()))

		serveErr := server.ListenAndServe()
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}

		return serveErr
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()

		a.log.Info("Shutting down HTTP server")

		return server.Shutdown(shutdownCtx)
	})

	if conn != nil && cfg.NATS.TextProcessedSubject != "" {
		jobs, workerErr := worker.NewNatsWorker(conn, cfg.NATS.TextProcessedSubject, objects, dispatcher, a.log)
		if workerErr != nil {
			return workerErr
		}

		group.Go(func() error { return jobs.Run(groupCtx) })
	}

	return group.Wait()
}

// apiDeps attaches the optional auth and checkout providers. Either stays nil
// when its credentials are not configured.
func (a *app) apiDeps(dispatcher *dispatch.Dispatcher, objects store) (httpapi.Deps, error) {
	deps := httpapi.Deps{Dispatcher: dispatcher, Store: objects, Log: a.log}

	if a.cfg.Supabase.URL != "" && a.cfg.Supabase.ServiceKey != "" {
		deps.Auth = auth.NewSupabaseAuthenticator(a.cfg.Supabase.URL, a.cfg.Supabase.ServiceKey)
	} else {
		a.log.Warn("No Supabase credentials configured; API requests are served anonymously")
	}

	if a.cfg.Stripe.SecretKey != "" {
		checkout, err := billing.NewStripeCheckout(a.cfg.Stripe.SecretKey, a.cfg.Stripe.SuccessURL, a.cfg.Stripe.CancelURL)
		if err != nil {
			return httpapi.Deps{}, err
		}

		deps.Checkout = checkout
	}

	return deps, nil
}
