// Package notify delivers best-effort webhook notifications for service events
// and mirrors every event onto NATS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"sync"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

// Event names.
const (
	EventTTSCompleted     = "tts.completed"
	EventTTSFailed        = "tts.failed"
	EventSpeechEdited     = "speech.edited"
	EventSpeechEditFailed = "speech.edit_failed"
	EventVoiceCloned      = "voice.cloned"
	EventVoiceCloneFailed = "voice.clone_failed"
)

// KnownEvents lists every event a subscription may ask for.
var KnownEvents = []string{
	EventTTSCompleted,
	EventTTSFailed,
	EventSpeechEdited,
	EventSpeechEditFailed,
	EventVoiceCloned,
	EventVoiceCloneFailed,
}

// Static errors.
var (
	ErrInvalidWebhookURL = errors.New("webhook URL must be an absolute http(s) URL")
	ErrNoEvents          = errors.New("subscription must name at least one event")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrOwnerEmpty        = errors.New("subscription owner is empty")
)

// Subscription is a webhook endpoint and the events it wants.
type Subscription struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	IsActive bool     `json:"is_active"`
}

// SubscriptionID returns the id under which owner's subscription is stored.
// One owner has at most one subscription.
func SubscriptionID(owner string) string {
	return "webhook_" + owner
}

// Validate checks the URL and event names.
func (s Subscription) Validate() error {
	parsed, err := url.Parse(s.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidWebhookURL, s.URL)
	}

	if len(s.Events) == 0 {
		return ErrNoEvents
	}

	for _, event := range s.Events {
		if !slices.Contains(KnownEvents, event) {
			return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
		}
	}

	return nil
}

// Wants reports whether the subscription is active and includes event.
func (s Subscription) Wants(event string) bool {
	return s.IsActive && slices.Contains(s.Events, event)
}

func (s Subscription) clone() Subscription {
	s.Events = slices.Clone(s.Events)

	return s
}

// Store persists subscriptions keyed by subscription id.
type Store interface {
	// Put creates or replaces the subscription stored under id.
	Put(ctx context.Context, id string, sub Subscription) error
	// Delete removes id; an unknown id wraps core.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Active returns every active subscription.
	Active(ctx context.Context) ([]Subscription, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

// Put creates or replaces id.
func (m *MemoryStore) Put(_ context.Context, id string, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[id] = sub.clone()

	return nil
}

// Delete removes id.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[id]; !ok {
		return fmt.Errorf("subscription %q: %w", id, core.ErrNotFound)
	}

	delete(m.subs, id)

	return nil
}

// Active returns active subscriptions ordered by id.
func (m *MemoryStore) Active(_ context.Context) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.subs))
	for id, sub := range m.subs {
		if sub.IsActive {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	active := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		active = append(active, m.subs[id].clone())
	}

	return active, nil
}
