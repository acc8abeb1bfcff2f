package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicum-hub/practicum/internal/registration"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *[]byte:
			*ptr = r.values[i].([]byte)
		case *bool:
			*ptr = r.values[i].(bool)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type draftRow struct {
	payload []byte
	expires *time.Time
}

// fakeDB emulates the registration_drafts table.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string]draftRow
	queries []string
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string]draftRow)}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, sql)
	if db.err != nil {
		return pgconn.CommandTag{}, db.err
	}
	switch {
	case strings.HasPrefix(sql, "CREATE TABLE"):
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case strings.HasPrefix(sql, "INSERT"):
		db.rows[args[0].(string)] = draftRow{payload: args[1].([]byte), expires: args[3].(*time.Time)}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(sql, "DELETE"):
		delete(db.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement")
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, sql)
	if db.err != nil {
		return fakeRow{err: db.err}
	}
	row, ok := db.rows[args[0].(string)]
	if ok && row.expires != nil && !row.expires.After(args[1].(time.Time)) {
		ok = false
	}
	if strings.HasPrefix(sql, "SELECT EXISTS") {
		return fakeRow{values: []any{ok}}
	}
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: []any{row.payload}}
}

func TestPostgres(t *testing.T) {
	exerciseStorage(t, NewPostgres(newFakeDB(), 0))
}

func TestPostgresEnsureSchema(t *testing.T) {
	db := newFakeDB()
	require.NoError(t, NewPostgres(db, 0).EnsureSchema(context.Background()))
	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "registration_drafts")
}

func TestPostgresExpiry(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := NewPostgres(db, time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "draft", []byte(`{}`)))
	require.NotNil(t, db.rows["draft"].expires)
	assert.Equal(t, now.Add(time.Hour), *db.rows["draft"].expires)

	now = now.Add(2 * time.Hour)
	_, err := s.Get(ctx, "draft")
	assert.ErrorIs(t, err, registration.ErrStorageMiss)
	ok, err := s.Exists(ctx, "draft")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresErrorsAreWrapped(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	s := NewPostgres(db, 0)
	_, err := s.Get(context.Background(), "draft")
	require.Error(t, err)
	assert.NotErrorIs(t, err, registration.ErrStorageMiss)
	assert.ErrorIs(t, s.Set(context.Background(), "draft", nil), db.err)
}
