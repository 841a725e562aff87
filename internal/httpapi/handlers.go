package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
)

const (
	statusSuccess = "success"

	formName          = "name"
	formReferenceText = "reference_text"
	formLanguage      = "language"
	formAudioFile     = "audio_file"
)

var (
	errBodyTooLarge         = errors.New("request body too large")
	errCheckoutDisabled     = errors.New("payments are not configured")
	errMissingAudioFile     = errors.New("multipart field audio_file is required")
	errMalformedMultipart   = errors.New("malformed multipart form")
	errMissingObjectKeyPath = errors.New("object key is required")
)

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SynthesisRequest

	err := decodeJSON(w, r, "synthesize", &req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	req.UserID = UserID(r.Context())

	artifact, err := s.dispatcher.Synthesize(r.Context(), req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	const op = "clone voice"

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil {
		s.writeError(w, core.E(core.ErrValidation, op, "", fmt.Errorf("%w: %w", errMalformedMultipart, err)))

		return
	}

	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(formAudioFile)
	if err != nil {
		s.writeError(w, core.E(core.ErrValidation, op, "", errMissingAudioFile))

		return
	}

	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, core.E(core.ErrValidation, op, "", err))

		return
	}

	name := strings.TrimSpace(r.FormValue(formName))

	profile, err := s.dispatcher.RegisterVoice(r.Context(), dispatch.VoiceRegistration{
		Name:     name,
		Filename: header.Filename,
		Audio:    data,
		RefText:  r.FormValue(formReferenceText),
		Language: r.FormValue(formLanguage),
		UserID:   UserID(r.Context()),
	})
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statusBody{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Voice '%s' created successfully", profile.ID()),
		VoiceID: profile.ID(),
	})
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.ListVoices())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub := notify.Subscription{IsActive: true}

	err := decodeJSON(w, r, "subscribe webhook", &sub)
	if err != nil {
		s.writeError(w, err)

		return
	}

	id, err := s.dispatcher.SubscribeWebhook(r.Context(), s.owner(r), sub)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statusBody{Status: statusSuccess, WebhookID: id})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	err := s.dispatcher.UnsubscribeWebhook(r.Context(), s.owner(r))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, statusBody{Status: statusSuccess})
}

func (s *Server) handleEditSpeech(w http.ResponseWriter, r *http.Request) {
	var req dispatch.EditRequest

	err := decodeJSON(w, r, "edit speech", &req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	req.UserID = UserID(r.Context())

	artifact, err := s.dispatcher.EditSpeech(r.Context(), req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.checkout == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: errCheckoutDisabled.Error()})

		return
	}

	sessionID, err := s.checkout.CreateCheckoutSession(r.Context(), s.options.PriceID)
	if err != nil {
		s.log.Error("Checkout session creation failed: %v", err)
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: sessionID})
}

// handleAudio serves stored objects behind the NATS backend's public URLs.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		s.writeError(w, core.E(core.ErrValidation, "serve audio", "", errMissingObjectKeyPath))

		return
	}

	data, err := s.store.Download(r.Context(), key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			err = core.E(core.ErrStorage, "serve audio", "", err)
		}

		s.writeError(w, err)

		return
	}

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// owner identifies the webhook owner. Anonymous deployments share one
// subscription slot.
func (s *Server) owner(r *http.Request) string {
	userID := UserID(r.Context())
	if userID == "" {
		return anonymousOwner
	}

	return userID
}

const anonymousOwner = "anonymous"

func contentTypeFor(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".wav") {
		return "audio/wav"
	}

	return "application/octet-stream"
}
