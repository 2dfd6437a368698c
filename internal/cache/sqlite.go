package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores cache entries in a local SQLite file. Timestamps
// are unix milliseconds so expiry comparisons stay in integer space.
type SQLiteBackend struct {
	db *sql.DB
}

// sqlitePragmas apply to every pooled connection. busy_timeout in
// particular is per connection, so it has to ride on the DSN.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(FULL)",
}

// NewSQLite opens a SQLite database at the given path in WAL mode with a
// busy timeout on every connection.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteBackend{db: db}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS signal_cache (
	provider   TEXT    NOT NULL,
	field      TEXT    NOT NULL,
	cache_key  TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (provider, field, cache_key),
	CHECK (field <> 'coordinates' OR expires_at - created_at <= 2592000000)
);

CREATE INDEX IF NOT EXISTS idx_signal_cache_expires_at ON signal_cache(expires_at);
`

func (s *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Load(ctx context.Context, provider string, field Field, key string) (*Entry, error) {
	var (
		raw                  string
		createdMs, expiresMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at, expires_at FROM signal_cache
		 WHERE provider = ? AND field = ? AND cache_key = ?`,
		provider, string(field), key,
	).Scan(&raw, &createdMs, &expiresMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: load cache entry")
	}

	e := &Entry{
		Provider:  provider,
		Field:     field,
		Key:       key,
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}
	if err := json.Unmarshal([]byte(raw), &e.Value); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache value")
	}
	return e, nil
}

func (s *SQLiteBackend) Upsert(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache value")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signal_cache (provider, field, cache_key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, field, cache_key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		e.Provider, string(e.Field), e.Key, string(raw), e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: upsert cache entry")
}

func (s *SQLiteBackend) Evict(ctx context.Context, provider string, field Field, key string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM signal_cache
		 WHERE provider = ? AND field = ? AND cache_key = ? AND expires_at <= ?`,
		provider, string(field), key, now.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: evict cache entry")
}

func (s *SQLiteBackend) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signal_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteBackend) Stats(ctx context.Context, now time.Time) ([]ProviderStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, field,
			SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END)
		 FROM signal_cache GROUP BY provider, field ORDER BY provider, field`,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	defer rows.Close() //nolint:errcheck

	var out []ProviderStats
	for rows.Next() {
		var st ProviderStats
		var field string
		if err := rows.Scan(&st.Provider, &field, &st.Live, &st.Expired); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cache stats")
		}
		st.Field = Field(field)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cache stats")
}
