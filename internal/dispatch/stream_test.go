package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
)

// collectStream reads until the Final chunk, checks nothing follows it and
// returns the data chunks and the marker.
func collectStream(t *testing.T, stream *dispatch.Stream) ([][]byte, dispatch.Chunk) {
	t.Helper()

	var data [][]byte

	for {
		chunk, err := stream.Next(context.Background())
		require.NoError(t, err)

		if chunk.Final {
			assert.Nil(t, chunk.Data)

			_, err = stream.Next(context.Background())
			require.ErrorIs(t, err, dispatch.ErrStreamFinished)

			return data, chunk
		}

		data = append(data, chunk.Data)
	}
}

func TestSynthesizeStream_OrderAndSingleMarker(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{chunks: [][]byte{[]byte("a"), {}, []byte("c")}}
	h := newHarness(t, synth)

	stream, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{Text: "hi", VoiceID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, "default", stream.VoiceID)

	data, final := collectStream(t, stream)
	require.Len(t, data, 3)
	assert.Equal(t, "a", string(data[0]))
	assert.Empty(t, data[1])
	assert.Equal(t, "c", string(data[2]))
	assert.NoError(t, final.Err)

	stream.Close()
	assert.Equal(t, "en", synth.lastRequest(t).Language)
}

func TestSynthesizeStream_MidStreamFailureStillEnds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeSynth{chunks: [][]byte{[]byte("a"), []byte("b")}, streamErr: errMidStream})

	stream, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{Text: "hi"})
	require.NoError(t, err)

	data, final := collectStream(t, stream)
	assert.Len(t, data, 2)
	require.ErrorIs(t, final.Err, core.ErrSynthesis)
	require.ErrorIs(t, final.Err, errMidStream)
}

func TestSynthesizeStream_FailsBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeSynth{streamErr: errEngineDown})

	stream, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{Text: "hi"})
	require.NoError(t, err)

	data, final := collectStream(t, stream)
	assert.Empty(t, data)
	require.ErrorIs(t, final.Err, errEngineDown)
}

func TestSynthesizeStream_CloseReleasesProducer(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{chunks: [][]byte{[]byte("a")}, block: true, released: make(chan struct{})}
	h := newHarness(t, synth)

	stream, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{Text: "hi"})
	require.NoError(t, err)

	chunk, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", string(chunk.Data))

	stream.Close()
	stream.Close()

	select {
	case <-synth.released:
	case <-time.After(time.Second):
		t.Fatal("producer was not released after Close")
	}

	_, err = stream.Next(context.Background())
	require.ErrorIs(t, err, dispatch.ErrStreamFinished)
}

func TestSynthesizeStream_ConsumerContextCancelled(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{block: true, released: make(chan struct{})}
	h := newHarness(t, synth)

	stream, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{Text: "hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = stream.Next(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	select {
	case <-synth.released:
	case <-time.After(time.Second):
		t.Fatal("producer was not released after the consumer went away")
	}
}

func TestSynthesizeStream_ParentCancelEndsWithMarker(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{block: true, released: make(chan struct{})}
	h := newHarness(t, synth)

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := h.dispatcher.SynthesizeStream(ctx, dispatch.SynthesisRequest{Text: "hi"})
	require.NoError(t, err)

	cancel()
	<-synth.released

	_, final := collectStream(t, stream)
	require.ErrorIs(t, final.Err, context.Canceled)
}

func TestSynthesizeStream_Validation(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	h := newHarness(t, synth)

	_, err := h.dispatcher.SynthesizeStream(context.Background(), dispatch.SynthesisRequest{})
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, synth.requests)
}
