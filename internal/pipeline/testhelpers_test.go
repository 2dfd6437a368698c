package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/cache"
	"github.com/sells-group/addrverify/internal/footprint"
	"github.com/sells-group/addrverify/internal/ingest"
	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

var anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func fastAdapter(provider string) *resilience.Adapter {
	return resilience.NewAdapter(provider,
		resilience.WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		}),
		resilience.WithTimeout(time.Second),
	)
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	b, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, b.Migrate(context.Background()))
	c := cache.New(b)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c
}

func rec(addr string) model.Record {
	return ingest.NewRecord(0, addr)
}

func coordPtr(lat, lng float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lng: lng}
}

func indexWith(points ...model.Coordinate) *footprint.Index {
	ix := footprint.NewIndex()
	for _, p := range points {
		ix.Add(p)
	}
	return ix
}
