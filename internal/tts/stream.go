package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultStreamChunkBytes is the chunk size used when an engine is built
// without an explicit one.
const DefaultStreamChunkBytes = 16384

// streamReader pumps body into a chunk channel until EOF, an error, or ctx is
// cancelled. body is always closed before the channels are.
func streamReader(
	ctx context.Context,
	body io.ReadCloser,
	chunkBytes int,
) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)
		defer body.Close()

		for {
			buf := make([]byte, chunkBytes)

			n, readErr := io.ReadFull(body, buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					errs <- ctx.Err()

					return
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
					return
				}

				if ctx.Err() != nil {
					errs <- ctx.Err()

					return
				}

				errs <- fmt.Errorf("failed to read audio stream: %w", readErr)

				return
			}
		}
	}()

	return chunks, errs
}

// streamBytes emits data in chunkBytes pieces.
func streamBytes(ctx context.Context, data []byte, chunkBytes int) (<-chan []byte, <-chan error) {
	return streamReader(ctx, io.NopCloser(bytes.NewReader(data)), chunkBytes)
}

// failedStream returns a stream that yields no chunks and a single error.
func failedStream(err error) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errs := make(chan error, 1)

	errs <- err

	close(chunks)
	close(errs)

	return chunks, errs
}

func chunkSize(n int) int {
	if n <= 0 {
		return DefaultStreamChunkBytes
	}

	return n
}
