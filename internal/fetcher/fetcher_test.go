package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.geojson"))
	assert.True(t, IsRemote("http://example.com/a.zip"))
	assert.False(t, IsRemote("data/footprints"))
	assert.False(t, IsRemote("/abs/path.csv"))
}

func TestSync_DownloadsThenNotModified(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("lat,lng\n40.7,-74.0\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Options{RequestsPerSecond: 100})

	local, changed, err := f.Sync(context.Background(), srv.URL+"/data/footprints.csv", dir)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, filepath.Join(dir, "footprints.csv"), local)
	body, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Contains(t, string(body), "40.7,-74.0")

	local2, changed, err := f.Sync(context.Background(), srv.URL+"/data/footprints.csv", dir)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, local, local2)
	assert.Equal(t, int32(2), gets.Load())
}

func TestSync_ExtractsZip(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"buildings/a.geojson": `{"type":"FeatureCollection","features":[]}`,
		"buildings/b.csv":     "lat,lng\n1,2\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	local, changed, err := New(Options{RequestsPerSecond: 100}).Sync(context.Background(), srv.URL+"/fp.zip", dir)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, filepath.Join(dir, "fp"), local)
	assert.FileExists(t, filepath.Join(local, "buildings", "a.geojson"))
	assert.FileExists(t, filepath.Join(local, "buildings", "b.csv"))
}

func TestSync_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("lat,lng\n"))
	}))
	defer srv.Close()

	_, changed, err := New(Options{RequestsPerSecond: 100}).Sync(context.Background(), srv.URL+"/x.csv", t.TempDir())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSync_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := New(Options{RequestsPerSecond: 100}).Sync(context.Background(), srv.URL+"/missing.csv", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSync_RejectsNamelessURL(t *testing.T) {
	_, _, err := New(Options{}).Sync(context.Background(), "https://example.com/", t.TempDir())
	assert.Error(t, err)
}

func TestExtractZIP_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, map[string]string{"../escape.txt": "x"}), 0o644))

	_, err := ExtractZIP(zipPath, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal path")
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}
