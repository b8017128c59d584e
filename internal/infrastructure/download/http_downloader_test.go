package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

var payload = bytes.Repeat([]byte("0123456789abcdef"), 4096)

func contentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "movie.mkv", time.Unix(0, 0), bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// rangeRecorder serves body but aborts the first response after cut bytes.
type rangeRecorder struct {
	mu     sync.Mutex
	ranges []string
}

func (rr *rangeRecorder) seen() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return append([]string(nil), rr.ranges...)
}

func droppingServer(t *testing.T, body []byte, cut int) (*httptest.Server, *rangeRecorder) {
	t.Helper()
	rr := &rangeRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr.mu.Lock()
		rr.ranges = append(rr.ranges, r.Header.Get("Range"))
		first := len(rr.ranges) == 1
		rr.mu.Unlock()

		if first {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body[:cut])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
		http.ServeContent(w, r, "movie.mkv", time.Unix(0, 0), bytes.NewReader(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rr
}

func TestHTTPDownloaderDownload(t *testing.T) {
	srv := contentServer(t)
	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))

	dest := filepath.Join(t.TempDir(), "movie.mkv")
	progress := make(chan download.Progress, 64)

	size, err := d.Download(context.Background(), srv.URL+"/Items/1/Download", dest, progress)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NoFileExists(t, dest+partialSuffix)

	close(progress)
	var last download.Progress
	for p := range progress {
		last = p
	}
	assert.Equal(t, int64(len(payload)), last.BytesDownloaded)
	assert.Equal(t, float64(100), last.Percent)
}

func TestHTTPDownloaderResumes(t *testing.T) {
	var rangeHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader = r.Header.Get("Range")
		http.ServeContent(w, r, "movie.mkv", time.Unix(0, 0), bytes.NewReader(payload))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))
	dest := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(dest+partialSuffix, payload[:1000], 0o644))

	size, err := d.Download(context.Background(), srv.URL, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, "bytes=1000-", rangeHeader)
	assert.Equal(t, int64(len(payload)), size)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestHTTPDownloaderResumesAfterDroppedConnection(t *testing.T) {
	srv, rr := droppingServer(t, payload, 400)

	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))
	d.retryDelay = time.Millisecond
	dest := filepath.Join(t.TempDir(), "movie.mkv")

	size, err := d.Download(context.Background(), srv.URL, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
	assert.Equal(t, []string{"", "bytes=400-"}, rr.seen())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NoFileExists(t, dest+partialSuffix)
}

func TestHTTPDownloaderGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))
	d.retryDelay = time.Millisecond
	d.maxAttempts = 3

	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "movie.mkv"), nil)
	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestHTTPDownloaderRestartsWhenRangeIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))
	dest := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(dest+partialSuffix, []byte("garbage"), 0o644))

	_, err := d.Download(context.Background(), srv.URL, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestHTTPDownloaderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))
	dest := filepath.Join(t.TempDir(), "movie.mkv")

	_, err := d.Download(context.Background(), srv.URL, dest, nil)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestHTTPDownloaderCancelled(t *testing.T) {
	srv := contentServer(t)
	d := NewHTTPDownloader(srv.Client(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Download(ctx, srv.URL, filepath.Join(t.TempDir(), "movie.mkv"), nil)
	assert.ErrorIs(t, err, download.ErrCancelled)
}

func TestParseContentRange(t *testing.T) {
	assert.Equal(t, int64(1024), parseContentRange("bytes 200-1023/1024"))
	assert.Equal(t, int64(1024), parseContentRange("bytes */1024"))
	assert.Zero(t, parseContentRange("bytes 0-1/*"))
	assert.Zero(t, parseContentRange(""))
}

func TestContainerExt(t *testing.T) {
	assert.Equal(t, ".mkv", containerExt("mkv"))
	assert.Equal(t, ".mov", containerExt("mov,mp4,m4a,3gp,3g2,mj2"))
	assert.Equal(t, ".ts", containerExt("mpegts"))
	assert.Equal(t, ".bin", containerExt(""))
	assert.Equal(t, "a_b", safeName("a/b"))
}
