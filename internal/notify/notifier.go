package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Defaults applied when options are omitted or non-positive.
const (
	DefaultMaxInFlight = 16
	DefaultMaxQueued   = 256
	DefaultTimeout     = 10 * time.Second
)

// Delivery outcomes passed to a DeliveryRecorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

const (
	logFmtMirrorFailed    = "Failed to mirror event %s (%s): %v"
	logFmtListFailed      = "Failed to list webhook subscriptions for %s: %v"
	logFmtDeliveryFailed  = "Webhook delivery of %s to %s failed: %v"
	logFmtMarshalFailed   = "Failed to marshal event %s: %v"
	logFmtEventDropped    = "Notifier saturated, dropping event %s (%s)"
	logFmtDeliveryDropped = "Notifier saturated, dropping delivery of %s to %s"
	contentTypeJSONHeader = "application/json"
)

// ErrDeliveryRejected reports a non-2xx answer from a subscriber.
var ErrDeliveryRejected = errors.New("webhook endpoint rejected delivery")

// Event is one notification. Header carries ids and the emission time.
type Event struct {
	Header events.EventHeader
	Name   string
	Data   map[string]any
}

// NewEvent stamps a fresh event id and UTC timestamp. A string "user_id" in
// data is copied into the header.
func NewEvent(name string, data map[string]any) Event {
	header := events.EventHeader{
		Timestamp: time.Now().UTC(),
		EventID:   uuid.NewString(),
	}

	if userID, ok := data["user_id"].(string); ok {
		header.UserID = userID
	}

	return Event{Header: header, Name: name, Data: data}
}

type webhookBody struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// WebhookPayload is the JSON body POSTed to subscribers.
func (e Event) WebhookPayload() ([]byte, error) {
	return json.Marshal(webhookBody{
		Event:     e.Name,
		Timestamp: e.Header.Timestamp.Format(time.RFC3339Nano),
		Data:      e.Data,
	})
}

// Publisher receives a copy of every event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DeliveryRecorder counts webhook deliveries by outcome.
type DeliveryRecorder interface {
	RecordWebhookDelivery(ctx context.Context, event, outcome string)
}

// Notifier fans events out to matching subscriptions without blocking the
// caller. At most maxInFlight HTTP deliveries run at once. Events being fanned
// out and deliveries waiting for a slot are each capped at
// maxInFlight+maxQueued; work arriving beyond that is dropped and recorded as
// OutcomeDropped.
type Notifier struct {
	store      Store
	httpClient *http.Client
	slots      *semaphore.Weighted
	pending    *semaphore.Weighted
	fanout     *semaphore.Weighted
	inFlight   sync.WaitGroup
	mirror     Publisher
	recorder   DeliveryRecorder
	log        *logger.Logger
}

// Option customises a Notifier.
type Option func(*notifierOptions)

type notifierOptions struct {
	maxInFlight int64
	maxQueued   int64
	timeout     time.Duration
	httpClient  *http.Client
	mirror      Publisher
	recorder    DeliveryRecorder
}

// WithMaxInFlight bounds concurrent deliveries.
func WithMaxInFlight(n int) Option {
	return func(o *notifierOptions) { o.maxInFlight = int64(n) }
}

// WithMaxQueued bounds the work waiting for a delivery slot.
func WithMaxQueued(n int) Option {
	return func(o *notifierOptions) { o.maxQueued = int64(n) }
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(o *notifierOptions) { o.timeout = d }
}

// WithHTTPClient replaces the delivery client; its Timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(o *notifierOptions) { o.httpClient = client }
}

// WithMirror publishes every event to p as well.
func WithMirror(p Publisher) Option {
	return func(o *notifierOptions) { o.mirror = p }
}

// WithRecorder reports delivery outcomes to r.
func WithRecorder(r DeliveryRecorder) Option {
	return func(o *notifierOptions) { o.recorder = r }
}

// NewNotifier creates a Notifier reading subscriptions from store.
func NewNotifier(store Store, log *logger.Logger, opts ...Option) *Notifier {
	options := notifierOptions{maxInFlight: DefaultMaxInFlight, maxQueued: DefaultMaxQueued, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	if options.maxInFlight <= 0 {
		options.maxInFlight = DefaultMaxInFlight
	}

	if options.maxQueued < 0 {
		options.maxQueued = DefaultMaxQueued
	}

	if options.timeout <= 0 {
		options.timeout = DefaultTimeout
	}

	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: options.timeout}
	}

	return &Notifier{
		store:      store,
		httpClient: options.httpClient,
		slots:      semaphore.NewWeighted(options.maxInFlight),
		pending:    semaphore.NewWeighted(options.maxInFlight + options.maxQueued),
		fanout:     semaphore.NewWeighted(options.maxInFlight + options.maxQueued),
		mirror:     options.mirror,
		recorder:   options.recorder,
		log:        log,
	}
}

// Notify emits event name with data and returns immediately. Cancelling ctx
// after Notify returns does not cancel delivery.
func (n *Notifier) Notify(ctx context.Context, name string, data map[string]any) {
	event := NewEvent(name, data)
	detached := context.WithoutCancel(ctx)

	if !n.fanout.TryAcquire(1) {
		n.log.Warn(logFmtEventDropped, event.Name, event.Header.EventID)
		n.record(detached, event.Name, OutcomeDropped)

		return
	}

	n.inFlight.Add(1)

	go func() {
		defer n.inFlight.Done()
		defer n.fanout.Release(1)

		n.dispatch(detached, event)
	}()
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	n.inFlight.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, event Event) {
	if n.mirror != nil {
		err := n.mirror.Publish(ctx, event)
		if err != nil {
			n.log.Warn(logFmtMirrorFailed, event.Name, event.Header.EventID, err)
		}
	}

	subs, err := n.store.Active(ctx)
	if err != nil {
		n.log.Error(logFmtListFailed, event.Name, err)

		return
	}

	body, err := event.WebhookPayload()
	if err != nil {
		n.log.Error(logFmtMarshalFailed, event.Name, err)

		return
	}

	for _, sub := range subs {
		if !sub.Wants(event.Name) {
			continue
		}

		if !n.pending.TryAcquire(1) {
			n.log.Warn(logFmtDeliveryDropped, event.Name, sub.URL)
			n.record(ctx, event.Name, OutcomeDropped)

			continue
		}

		n.inFlight.Add(1)

		go func(target string) {
			defer n.inFlight.Done()
			defer n.pending.Release(1)

			n.deliver(ctx, event.Name, target, body)
		}(sub.URL)
	}
}

func (n *Notifier) deliver(ctx context.Context, event, target string, body []byte) {
	err := n.slots.Acquire(ctx, 1)
	if err != nil {
		n.log.Warn(logFmtDeliveryFailed, event, target, err)
		n.record(ctx, event, OutcomeFailed)

		return
	}
	defer n.slots.Release(1)

	outcome, err := n.post(ctx, target, body)
	if err != nil {
		n.log.Warn(logFmtDeliveryFailed, event, target, err)
	}

	n.record(ctx, event, outcome)
}

func (n *Notifier) post(ctx context.Context, target string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSONHeader)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return OutcomeRejected, fmt.Errorf("%w: %s", ErrDeliveryRejected, resp.Status)
	}

	return OutcomeDelivered, nil
}

func (n *Notifier) record(ctx context.Context, event, outcome string) {
	if n.recorder != nil {
		n.recorder.RecordWebhookDelivery(ctx, event, outcome)
	}
}
