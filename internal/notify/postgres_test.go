package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/notify"
)

// mockRows implements pgx.Rows over url, events, is_active tuples.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}

	r.idx++

	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}

	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *bool:
			*d = v.(bool)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}

	return nil
}

type execCall struct {
	sql  string
	args []any
}

// mockDB implements notify.DB.
type mockDB struct {
	rows      *mockRows
	queryErr  error
	execTag   pgconn.CommandTag
	execErr   error
	execCalls []execCall
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	if m.rows == nil {
		return &mockRows{}, nil
	}

	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, execCall{sql: sql, args: args})

	return m.execTag, m.execErr
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	require.NoError(t, notify.NewPostgresStore(db).Migrate(context.Background()))
	require.Len(t, db.execCalls, 1)
	assert.Contains(t, db.execCalls[0].sql, "CREATE TABLE IF NOT EXISTS webhook_subscriptions")
}

func TestPostgresStore_Put(t *testing.T) {
	t.Parallel()

	db := &mockDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := notify.NewPostgresStore(db)

	err := store.Put(context.Background(), "webhook_u1", notify.Subscription{
		URL: "https://hooks.example.com", Events: []string{notify.EventTTSCompleted}, IsActive: true,
	})
	require.NoError(t, err)
	require.Len(t, db.execCalls, 1)

	call := db.execCalls[0]
	assert.Contains(t, call.sql, "ON CONFLICT (id) DO UPDATE")
	assert.Equal(t, "webhook_u1", call.args[0])
	assert.Equal(t, "https://hooks.example.com", call.args[1])
	assert.JSONEq(t, `["tts.completed"]`, string(call.args[2].([]byte)))
	assert.Equal(t, true, call.args[3])
}

func TestPostgresStore_Delete(t *testing.T) {
	t.Parallel()

	db := &mockDB{execTag: pgconn.NewCommandTag("DELETE 1")}
	require.NoError(t, notify.NewPostgresStore(db).Delete(context.Background(), "webhook_u1"))

	db = &mockDB{execTag: pgconn.NewCommandTag("DELETE 0")}
	err := notify.NewPostgresStore(db).Delete(context.Background(), "webhook_u1")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresStore_Active(t *testing.T) {
	t.Parallel()

	eventsJSON, err := json.Marshal([]string{notify.EventTTSCompleted, notify.EventTTSFailed})
	require.NoError(t, err)

	rows := &mockRows{data: [][]any{
		{"https://a.example.com", eventsJSON, true},
		{"https://b.example.com", []byte(`["speech.edited"]`), true},
	}}
	store := notify.NewPostgresStore(&mockDB{rows: rows})

	active, err := store.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "https://a.example.com", active[0].URL)
	assert.Equal(t, []string{notify.EventTTSCompleted, notify.EventTTSFailed}, active[0].Events)
	assert.True(t, active[1].Wants(notify.EventSpeechEdited))
	assert.True(t, rows.closed)
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Parallel()

	errDB := errors.New("connection reset")
	ctx := context.Background()

	_, err := notify.NewPostgresStore(&mockDB{queryErr: errDB}).Active(ctx)
	require.ErrorIs(t, err, errDB)

	_, err = notify.NewPostgresStore(&mockDB{rows: &mockRows{err: errDB}}).Active(ctx)
	require.ErrorIs(t, err, errDB)

	bad := &mockRows{data: [][]any{{"https://a", []byte("not json"), true}}}
	_, err = notify.NewPostgresStore(&mockDB{rows: bad}).Active(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unmarshal events"))

	err = notify.NewPostgresStore(&mockDB{execErr: errDB}).Put(ctx, "id", notify.Subscription{})
	require.ErrorIs(t, err, errDB)
}
