// Package observe provides the service's OpenTelemetry metrics, the
// Prometheus exporter bridge and the HTTP middleware that records request
// latency.
//
// Tests should build their own [Metrics] with [NewMetrics] and a
// ManualReader-backed provider instead of using the global one.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Reality-Reimagined/voiceai"

// Request statuses recorded on SynthesisRequests.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all metric instruments of the service. The OTel instruments
// are safe for concurrent use.
type Metrics struct {
	// SynthesisDuration tracks engine latency. Attributes: voice, mode.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRequests counts synthesis calls. Attributes: mode, status.
	SynthesisRequests metric.Int64Counter

	// StreamChunks counts audio chunks delivered to streaming clients.
	StreamChunks metric.Int64Counter

	// ActiveStreams tracks open streaming sessions.
	ActiveStreams metric.Int64UpDownCounter

	// WebhookDeliveries counts webhook attempts. Attributes: event, outcome.
	WebhookDeliveries metric.Int64Counter

	// VoiceRegistrations counts clone attempts. Attribute: status.
	VoiceRegistrations metric.Int64Counter

	// HTTPRequestDuration tracks handler latency. Attributes: method, route, code.
	HTTPRequestDuration metric.Float64Histogram
}

// synthesisBuckets are histogram boundaries in seconds. Synthesis of a long
// paragraph on CPU takes tens of seconds.
var synthesisBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	if met.SynthesisDuration, err = m.Float64Histogram("voiceai.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(synthesisBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SynthesisRequests, err = m.Int64Counter("voiceai.synthesis.requests",
		metric.WithDescription("Synthesis requests by mode and status."),
	); err != nil {
		return nil, err
	}

	if met.StreamChunks, err = m.Int64Counter("voiceai.stream.chunks",
		metric.WithDescription("Audio chunks sent to streaming clients."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("voiceai.stream.active",
		metric.WithDescription("Number of open synthesis streams."),
	); err != nil {
		return nil, err
	}

	if met.WebhookDeliveries, err = m.Int64Counter("voiceai.webhook.deliveries",
		metric.WithDescription("Webhook delivery attempts by event and outcome."),
	); err != nil {
		return nil, err
	}

	if met.VoiceRegistrations, err = m.Int64Counter("voiceai.voice.registrations",
		metric.WithDescription("Voice clone requests by status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceai.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status code."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordSynthesis records one finished synthesis call.
func (m *Metrics) RecordSynthesis(ctx context.Context, voiceID, mode string, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}

	m.SynthesisRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))

	if err == nil {
		m.SynthesisDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("voice", voiceID),
			attribute.String("mode", mode),
		))
	}
}

// RecordStreamChunk counts one delivered chunk.
func (m *Metrics) RecordStreamChunk(ctx context.Context) {
	m.StreamChunks.Add(ctx, 1)
}

// StreamOpened and StreamClosed bracket a streaming session.
func (m *Metrics) StreamOpened(ctx context.Context) {
	m.ActiveStreams.Add(ctx, 1)
}

func (m *Metrics) StreamClosed(ctx context.Context) {
	m.ActiveStreams.Add(ctx, -1)
}

// RecordWebhookDelivery counts one webhook attempt.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, event, outcome string) {
	m.WebhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// RecordVoiceRegistration counts one clone attempt.
func (m *Metrics) RecordVoiceRegistration(ctx context.Context, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}

	m.VoiceRegistrations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
