package dispatch

import (
	"context"
	"errors"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
)

// VoiceInfo is the public description of a registered voice.
type VoiceInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Gender      string   `json:"gender,omitempty"`
	Accent      string   `json:"accent,omitempty"`
	StyleTags   []string `json:"style_tags"`
	Description string   `json:"description,omitempty"`
}

// ListVoices describes every registered voice, sorted by id.
func (d *Dispatcher) ListVoices() []VoiceInfo {
	profiles := d.registry.List()
	infos := make([]VoiceInfo, 0, len(profiles))

	for _, profile := range profiles {
		cfg := profile.Config()

		name := cfg.Name
		if name == "" {
			name = profile.ID()
		}

		tags := cfg.StyleTags
		if tags == nil {
			tags = []string{}
		}

		infos = append(infos, VoiceInfo{
			ID:          profile.ID(),
			Name:        name,
			Language:    cfg.Language,
			Gender:      cfg.Gender,
			Accent:      cfg.Accent,
			StyleTags:   tags,
			Description: cfg.Description,
		})
	}

	return infos
}

// SubscribeWebhook creates or replaces owner's subscription and returns its id.
func (d *Dispatcher) SubscribeWebhook(ctx context.Context, owner string, sub notify.Subscription) (string, error) {
	const op = "subscribe webhook"

	if owner == "" {
		return "", core.E(core.ErrValidation, op, "", notify.ErrOwnerEmpty)
	}

	err := sub.Validate()
	if err != nil {
		return "", core.E(core.ErrValidation, op, "", err)
	}

	id := notify.SubscriptionID(owner)

	err = d.subscriptions.Put(ctx, id, sub)
	if err != nil {
		return "", core.E(core.ErrStorage, op, "", err)
	}

	d.log.Info("Webhook %s now receives %v at %s", id, sub.Events, sub.URL)

	return id, nil
}

// UnsubscribeWebhook removes owner's subscription.
func (d *Dispatcher) UnsubscribeWebhook(ctx context.Context, owner string) error {
	const op = "unsubscribe webhook"

	if owner == "" {
		return core.E(core.ErrValidation, op, "", notify.ErrOwnerEmpty)
	}

	id := notify.SubscriptionID(owner)

	err := d.subscriptions.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.E(core.ErrNotFound, op, "", err)
		}

		return core.E(core.ErrStorage, op, "", err)
	}

	d.log.Info("Removed webhook %s", id)

	return nil
}
