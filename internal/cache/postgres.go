package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the backend uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresBackend stores cache entries in PostgreSQL.
type PostgresBackend struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresBackend with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS signal_cache (
	provider   TEXT        NOT NULL,
	field      TEXT        NOT NULL,
	cache_key  TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, field, cache_key),
	CONSTRAINT signal_cache_coordinate_ttl
		CHECK (field <> 'coordinates' OR expires_at <= created_at + interval '30 days')
);

CREATE INDEX IF NOT EXISTS idx_signal_cache_expires_at ON signal_cache(expires_at);
`

func (s *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresBackend) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresBackend) Load(ctx context.Context, provider string, field Field, key string) (*Entry, error) {
	e := Entry{Provider: provider, Field: field, Key: key}
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value, created_at, expires_at FROM signal_cache
		 WHERE provider = $1 AND field = $2 AND cache_key = $3`,
		provider, string(field), key,
	).Scan(&raw, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: load cache entry")
	}
	if err := json.Unmarshal(raw, &e.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache value")
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	return &e, nil
}

func (s *PostgresBackend) Upsert(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache value")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO signal_cache (provider, field, cache_key, value, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider, field, cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		e.Provider, string(e.Field), e.Key, raw, e.CreatedAt, e.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: upsert cache entry")
}

func (s *PostgresBackend) Evict(ctx context.Context, provider string, field Field, key string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM signal_cache
		 WHERE provider = $1 AND field = $2 AND cache_key = $3 AND expires_at <= $4`,
		provider, string(field), key, now,
	)
	return eris.Wrap(err, "postgres: evict cache entry")
}

func (s *PostgresBackend) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signal_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresBackend) Stats(ctx context.Context, now time.Time) ([]ProviderStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, field,
			COUNT(*) FILTER (WHERE expires_at > $1),
			COUNT(*) FILTER (WHERE expires_at <= $1)
		 FROM signal_cache GROUP BY provider, field ORDER BY provider, field`,
		now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	defer rows.Close()

	var out []ProviderStats
	for rows.Next() {
		var st ProviderStats
		var field string
		var live, expired int64
		if err := rows.Scan(&st.Provider, &field, &live, &expired); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cache stats")
		}
		st.Field = Field(field)
		st.Live = int(live)
		st.Expired = int(expired)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cache stats")
}
