package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
)

// EndOfAudio is the text frame that follows the last audio frame of every
// request on /ws/tts, including failed ones.
const EndOfAudio = "END_OF_AUDIO"

var errWriteFrame = errors.New("failed to write websocket frame")

type wsError struct {
	Error string `json:"error"`
}

// handleStream upgrades to a WebSocket and serves synthesis requests sent as
// JSON text frames, one at a time. Audio goes out as binary frames followed
// by EndOfAudio. A client disconnect cancels the current generation.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed: %v", err)

		return
	}

	defer func() { _ = conn.Close() }()

	userID := UserID(r.Context())

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	requests := make(chan []byte)

	go func() {
		defer cancel()
		defer close(requests)

		for {
			messageType, data, readErr := conn.ReadMessage()
			if readErr != nil {
				if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warn("WebSocket read failed: %v", readErr)
				}

				return
			}

			if messageType != websocket.TextMessage {
				continue
			}

			select {
			case requests <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-requests:
			if !ok {
				return
			}

			err = s.streamOne(ctx, conn, userID, data)
			if err != nil {
				s.log.Warn("WebSocket stream ended: %v", err)

				return
			}
		}
	}
}

// streamOne serves one request. A returned error means the connection is no
// longer usable; synthesis failures are reported to the client instead.
func (s *Server) streamOne(ctx context.Context, conn *websocket.Conn, userID string, data []byte) error {
	if s.limiter != nil && !s.limiter.allow(userID) {
		return s.sendFailure(conn, ErrRateLimited)
	}

	var req dispatch.SynthesisRequest

	err := json.Unmarshal(data, &req)
	if err != nil {
		return s.sendFailure(conn, core.E(core.ErrValidation, "synthesize stream", "", err))
	}

	req.UserID = userID

	stream, err := s.dispatcher.SynthesizeStream(ctx, req)
	if err != nil {
		return s.sendFailure(conn, err)
	}

	defer stream.Close()

	for {
		chunk, nextErr := stream.Next(ctx)
		if nextErr != nil {
			return nextErr
		}

		if chunk.Final {
			if chunk.Err != nil {
				return s.sendFailure(conn, chunk.Err)
			}

			return writeFrame(conn, websocket.TextMessage, []byte(EndOfAudio))
		}

		if len(chunk.Data) == 0 {
			continue
		}

		err = writeFrame(conn, websocket.BinaryMessage, chunk.Data)
		if err != nil {
			return err
		}
	}
}

// sendFailure reports err to the client and closes the request with
// EndOfAudio.
func (s *Server) sendFailure(conn *websocket.Conn, failure error) error {
	payload, err := json.Marshal(wsError{Error: failure.Error()})
	if err != nil {
		return err
	}

	err = writeFrame(conn, websocket.TextMessage, payload)
	if err != nil {
		return err
	}

	return writeFrame(conn, websocket.TextMessage, []byte(EndOfAudio))
}

func writeFrame(conn *websocket.Conn, messageType int, payload []byte) error {
	err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err != nil {
		return err
	}

	err = conn.WriteMessage(messageType, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", errWriteFrame, err)
	}

	return nil
}

