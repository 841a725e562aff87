package dispatch

import (
	"context"
	"errors"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
	"github.com/Reality-Reimagined/voiceai/internal/tts/audio"
)

// EditRequest applies an edit to previously stored audio.
type EditRequest struct {
	AudioURL string `json:"audio_url"`
	audio.Edit

	UserID string `json:"-"`
}

// EditSpeech downloads the audio behind req.AudioURL, applies the edit and
// stores the result under edited/<user>/.
func (d *Dispatcher) EditSpeech(ctx context.Context, req EditRequest) (*Artifact, error) {
	const op = "edit speech"

	err := req.Validate()
	if err != nil {
		return nil, core.E(core.ErrValidation, op, "", err)
	}

	key, err := d.store.KeyFromURL(req.AudioURL)
	if err != nil {
		return nil, core.E(core.ErrValidation, op, "", err)
	}

	original, err := d.store.Download(ctx, key)
	if err != nil {
		kind := core.ErrStorage
		if errors.Is(err, core.ErrNotFound) {
			kind = core.ErrNotFound
		}

		return nil, d.fail(ctx, notify.EventSpeechEditFailed, req.UserID, core.E(kind, op, "", err))
	}

	edited, err := req.Apply(original)
	if err != nil {
		return nil, d.fail(ctx, notify.EventSpeechEditFailed, req.UserID, core.E(core.ErrValidation, op, "", err))
	}

	artifact, err := d.put(ctx, EditPrefix, req.UserID, edited)
	if err != nil {
		return nil, d.fail(ctx, notify.EventSpeechEditFailed, req.UserID, core.E(core.ErrStorage, op, "", err))
	}

	d.log.Info("Applied %s edit to %s -> %s", req.Type, key, artifact.Key)
	d.events.Notify(ctx, notify.EventSpeechEdited, map[string]any{
		"user_id":   req.UserID,
		"audio_url": artifact.URL,
	})

	return artifact, nil
}
