package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/resilience"
)

// newMockPostgres creates a PostgresBackend backed by pgxmock for unit testing.
func newMockPostgres(t *testing.T) (*PostgresBackend, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresBackend{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	b, mock := newMockPostgres(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS signal_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, b.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load_NotFound(t *testing.T) {
	b, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT value, created_at, expires_at FROM signal_cache`).
		WithArgs(resilience.ProviderGeocoding, "coordinates", "rec-1").
		WillReturnError(pgx.ErrNoRows)

	e, err := b.Load(context.Background(), resilience.ProviderGeocoding, FieldCoordinates, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLiveEntry(t *testing.T) {
	b, mock := newMockPostgres(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(b, WithClock(func() time.Time { return now }))

	rows := pgxmock.NewRows([]string{"value", "created_at", "expires_at"}).
		AddRow([]byte(`{"coordinate":{"lat":1.5,"lng":2.5}}`), now.Add(-time.Hour), now.Add(time.Hour))
	mock.ExpectQuery(`SELECT value, created_at, expires_at FROM signal_cache`).
		WithArgs(resilience.ProviderGeocoding, "coordinates", "rec-1").
		WillReturnRows(rows)

	v, ok, err := c.Get(context.Background(), resilience.ProviderGeocoding, FieldCoordinates, "rec-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.5, v.Coordinate.Lat, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetExpiredEvicts(t *testing.T) {
	b, mock := newMockPostgres(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(b, WithClock(func() time.Time { return now }))

	rows := pgxmock.NewRows([]string{"value", "created_at", "expires_at"}).
		AddRow([]byte(`{"id":"ChIJ"}`), now.Add(-48*time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT value, created_at, expires_at FROM signal_cache`).
		WithArgs(resilience.ProviderGeocoding, "place_id", "rec-1").
		WillReturnRows(rows)
	mock.ExpectExec(`DELETE FROM signal_cache`).
		WithArgs(resilience.ProviderGeocoding, "place_id", "rec-1", now).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	_, ok, err := c.Get(context.Background(), resilience.ProviderGeocoding, FieldPlaceID, "rec-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutUpserts(t *testing.T) {
	b, mock := newMockPostgres(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(b, WithClock(func() time.Time { return now }))

	mock.ExpectExec(`INSERT INTO signal_cache .* ON CONFLICT \(provider, field, cache_key\) DO UPDATE`).
		WithArgs(resilience.ProviderGeocoding, "coordinates", "rec-1", pgxmock.AnyArg(), now, now.Add(30*24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, c.Put(context.Background(), resilience.ProviderGeocoding, FieldCoordinates, "rec-1", coord(1, 2), 30))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutRejectedNeverTouchesDB(t *testing.T) {
	b, mock := newMockPostgres(t)
	c := New(b)

	err := c.Put(context.Background(), resilience.ProviderGeocoding, FieldCoordinates, "rec-1", coord(1, 2), 31)
	assert.ErrorIs(t, err, ErrPolicyViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PurgeExpired(t *testing.T) {
	b, mock := newMockPostgres(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM signal_cache WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := b.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Stats(t *testing.T) {
	b, mock := newMockPostgres(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"provider", "field", "live", "expired"}).
		AddRow("geocoding", "coordinates", int64(4), int64(1)).
		AddRow("geocoding", "place_id", int64(2), int64(0))
	mock.ExpectQuery(`SELECT provider, field`).WithArgs(now).WillReturnRows(rows)

	stats, err := b.Stats(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, ProviderStats{Provider: "geocoding", Field: FieldCoordinates, Live: 4, Expired: 1}, stats[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
