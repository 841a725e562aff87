package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

// ErrStreamFinished is returned by Next after the end-of-stream chunk.
var ErrStreamFinished = errors.New("stream already finished")

// Chunk is one element of a synthesis stream. Exactly one chunk per stream
// has Final set; it carries no data and follows every data chunk. Err is the
// producer failure, if any, that ended the stream.
type Chunk struct {
	Data  []byte
	Final bool
	Err   error
}

// Stream is a lazily consumed sequence of audio chunks. It is not safe for
// concurrent Next calls.
type Stream struct {
	VoiceID string

	chunks  <-chan []byte
	errs    <-chan error
	cancel  context.CancelFunc
	onChunk func()
	onEnd   func(err error)
	endOnce sync.Once
	done    bool
}

// SynthesizeStream starts a streaming generation. Generation runs under a
// context derived from ctx; cancelling ctx or calling Close stops it.
func (d *Dispatcher) SynthesizeStream(ctx context.Context, req SynthesisRequest) (*Stream, error) {
	const op = "synthesize stream"

	profile := d.registry.Resolve(req.VoiceID)

	genReq, err := d.buildGenerateRequest(req, profile)
	if err != nil {
		return nil, core.E(core.ErrValidation, op, profile.ID(), err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	start := time.Now()
	chunks, errs := d.synth.GenerateStream(streamCtx, genReq)

	if d.metrics != nil {
		d.metrics.StreamOpened(ctx)
	}

	d.log.Info("Started stream with voice '%s'", profile.ID())

	stream := &Stream{
		VoiceID: profile.ID(),
		chunks:  chunks,
		errs:    errs,
		cancel:  cancel,
	}

	stream.onEnd = func(streamErr error) {
		d.recordSynthesis(ctx, profile.ID(), modeStream, time.Since(start), streamErr)

		if d.metrics != nil {
			d.metrics.StreamClosed(ctx)
		}

		if streamErr != nil {
			d.log.Warn("Stream with voice '%s' ended with error: %v", profile.ID(), streamErr)
		}
	}

	if d.metrics != nil {
		metrics := d.metrics
		stream.onChunk = func() { metrics.RecordStreamChunk(ctx) }
	}

	return stream, nil
}

// Next returns the next chunk. After the Final chunk it returns
// ErrStreamFinished. If ctx is cancelled first the stream is closed and
// ctx.Err() returned.
func (s *Stream) Next(ctx context.Context) (Chunk, error) {
	if s.done {
		return Chunk{}, ErrStreamFinished
	}

	select {
	case data, ok := <-s.chunks:
		if ok {
			if s.onChunk != nil {
				s.onChunk()
			}

			return Chunk{Data: data}, nil
		}
	case <-ctx.Done():
		s.Close()

		return Chunk{}, ctx.Err()
	}

	// The producer closes chunks before errs, so at most one error is
	// pending here.
	var streamErr error
	for err := range s.errs {
		if streamErr == nil && err != nil {
			streamErr = core.E(core.ErrSynthesis, "synthesize stream", s.VoiceID, err)
		}
	}

	s.done = true
	s.finish(streamErr)

	return Chunk{Final: true, Err: streamErr}, nil
}

// Close stops generation and releases the producer. It is idempotent and
// safe to call after the Final chunk.
func (s *Stream) Close() {
	s.done = true
	s.finish(context.Canceled)
}

func (s *Stream) finish(err error) {
	s.endOnce.Do(func() {
		s.cancel()

		if s.onEnd != nil {
			s.onEnd(err)
		}
	})
}
