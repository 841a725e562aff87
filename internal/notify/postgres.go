package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

// Schema creates the webhook_subscriptions table. Run it via
// PostgresStore.Migrate or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS webhook_subscriptions (
    id         TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    events     JSONB NOT NULL DEFAULT '[]',
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_active ON webhook_subscriptions(is_active);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn used by PostgresStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a Store backed by PostgreSQL; events are kept as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db. Call Migrate before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("failed to migrate webhook schema: %w", err)
	}

	return nil
}

// Put upserts id.
func (s *PostgresStore) Put(ctx context.Context, id string, sub Subscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	const query = `
		INSERT INTO webhook_subscriptions (id, url, events, is_active, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET url = EXCLUDED.url, events = EXCLUDED.events,
		    is_active = EXCLUDED.is_active, updated_at = now()`

	_, err = s.db.Exec(ctx, query, id, sub.URL, eventsJSON, sub.IsActive)
	if err != nil {
		return fmt.Errorf("failed to store subscription %q: %w", id, err)
	}

	return nil
}

// Delete removes id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %q: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %q: %w", id, core.ErrNotFound)
	}

	return nil
}

// Active returns active subscriptions ordered by id.
func (s *PostgresStore) Active(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT url, events, is_active FROM webhook_subscriptions WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var active []Subscription

	for rows.Next() {
		var (
			sub        Subscription
			eventsJSON []byte
		)

		err = rows.Scan(&sub.URL, &eventsJSON, &sub.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		err = json.Unmarshal(eventsJSON, &sub.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}

		active = append(active, sub)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return active, nil
}
