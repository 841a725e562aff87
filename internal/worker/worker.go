// Package worker turns text-processed pipeline events arriving on NATS into
// synthesized audio artifacts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
)

const (
	handleMessageTimeout = 5 * time.Minute

	// QueueGroup load-balances jobs across service replicas.
	QueueGroup = "voiceai-workers"
)

var (
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("worker subject cannot be empty")
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("event text key cannot be empty")
)

// Synthesizer is the part of the dispatcher the worker drives.
type Synthesizer interface {
	Synthesize(ctx context.Context, req dispatch.SynthesisRequest) (*dispatch.Artifact, error)
}

// NatsWorker listens for TextProcessedEvent jobs on a NATS subject and replies
// with an AudioChunkCreatedEvent for each synthesized page.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	synthesizer    Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. The store holds the
// text objects the events point at.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx is cancelled, then drains in-flight jobs.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, QueueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Worker listening on '%s'", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	artifact, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   artifact.Key,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the page text and synthesizes it with the event's voice.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (*dispatch.Artifact, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	artifact, err := w.synthesizer.Synthesize(ctx, dispatch.SynthesisRequest{
		Text:    strings.TrimSpace(string(textData)),
		VoiceID: event.Voice,
		UserID:  event.Header.UserID,
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("Page %d/%d of workflow %s synthesized to %s",
		event.PageNumber, event.TotalPages, event.Header.WorkflowID, artifact.Key)

	return artifact, nil
}

func publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
