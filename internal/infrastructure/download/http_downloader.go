package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

// partialSuffix marks an unfinished raw download
const partialSuffix = ".part"

const (
	defaultMaxAttempts = 4
	defaultRetryDelay  = 500 * time.Millisecond
)

// HTTPDownloader implements HTTP download with resume support
type HTTPDownloader struct {
	client *http.Client
	logger *zap.Logger

	reportInterval time.Duration
	// maxAttempts bounds transfers per Download call; each retry resumes
	// from the partial file
	maxAttempts int
	retryDelay  time.Duration
}

// transientError marks a transfer failure worth resuming
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(format string, args ...interface{}) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// NewHTTPDownloader creates a new HTTP downloader. The client should carry
// server authentication and no overall timeout.
func NewHTTPDownloader(client *http.Client, logger *zap.Logger) *HTTPDownloader {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &HTTPDownloader{
		client:         client,
		logger:         logger.Named("http-downloader"),
		reportInterval: time.Second,
		maxAttempts:    defaultMaxAttempts,
		retryDelay:     defaultRetryDelay,
	}
}

// Download fetches source into destination. Bytes land in a sibling
// ".part" file first; an existing partial file is resumed with a Range
// request and renamed into place once the body is complete. A transfer
// that breaks off is resumed from the partial file up to maxAttempts
// times.
func (d *HTTPDownloader) Download(ctx context.Context, source string, destination string, progress chan<- download.Progress) (int64, error) {
	partial := destination + partialSuffix

	var size int64
	for attempt := 1; ; attempt++ {
		var offset int64
		if info, err := os.Stat(partial); err == nil {
			offset = info.Size()
		}

		n, err := d.downloadWithRange(ctx, source, partial, offset, progress)
		if err == nil {
			size = n
			break
		}
		if ctx.Err() != nil {
			return 0, download.ErrCancelled
		}

		var te *transientError
		if !errors.As(err, &te) || attempt >= d.maxAttempts {
			return 0, err
		}

		d.logger.Warn("Download interrupted, resuming",
			zap.String("destination", destination),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(d.retryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, download.ErrCancelled
		case <-timer.C:
		}
	}

	if err := os.Rename(partial, destination); err != nil {
		return 0, fmt.Errorf("failed to finalize download: %w", err)
	}
	return size, nil
}

// downloadWithRange performs the actual download with optional range support
func (d *HTTPDownloader) downloadWithRange(ctx context.Context, source, partial string, offset int64, progress chan<- download.Progress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, transient("failed to start download: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusOK:
		// server ignored the range, start over
		if offset > 0 {
			d.logger.Debug("server does not support resume, restarting",
				zap.String("destination", partial),
				zap.Int64("offset", offset))
		}
		offset = 0
		flags |= os.O_TRUNC
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// partial file already holds the whole body
		if total := parseContentRange(resp.Header.Get("Content-Range")); total == offset {
			return offset, nil
		}
		return 0, fmt.Errorf("partial file does not match remote size")
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, transient("unexpected status code: %d", resp.StatusCode)
	default:
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	totalSize := int64(0)
	if contentRange := resp.Header.Get("Content-Range"); contentRange != "" {
		totalSize = parseContentRange(contentRange)
	}
	if totalSize == 0 && resp.ContentLength > 0 {
		totalSize = resp.ContentLength + offset
	}

	file, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open destination: %w", err)
	}
	defer file.Close()

	pw := &progressWriter{
		writer:         file,
		progress:       progress,
		offset:         offset,
		totalSize:      totalSize,
		lastReport:     time.Now(),
		reportInterval: d.reportInterval,
	}

	written, err := io.CopyBuffer(pw, resp.Body, make([]byte, 32*1024))
	if err != nil {
		return 0, transient("download failed after %d bytes: %w", offset+written, err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync download: %w", err)
	}

	size := offset + written
	if totalSize > 0 && size != totalSize {
		return 0, transient("download incomplete: %d of %d bytes", size, totalSize)
	}
	pw.report(true)
	return size, nil
}

// progressWriter wraps an io.Writer to report progress
type progressWriter struct {
	writer         io.Writer
	progress       chan<- download.Progress
	offset         int64
	totalSize      int64
	bytesWritten   int64
	lastReport     time.Time
	lastBytes      int64
	reportInterval time.Duration
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.bytesWritten += int64(n)
	if err != nil {
		return n, err
	}

	if time.Since(pw.lastReport) >= pw.reportInterval {
		pw.report(false)
	}
	return n, nil
}

func (pw *progressWriter) report(final bool) {
	if pw.progress == nil {
		return
	}

	var speed float64
	if elapsed := time.Since(pw.lastReport).Seconds(); elapsed > 0 && !final {
		speed = float64(pw.bytesWritten-pw.lastBytes) / elapsed
	}

	prog := download.Progress{
		BytesDownloaded: pw.offset + pw.bytesWritten,
		TotalBytes:      pw.totalSize,
		Speed:           speed,
	}
	prog.Percent = prog.BytePercent()

	// never block the copy loop on a slow reader
	select {
	case pw.progress <- prog:
	default:
	}

	pw.lastReport = time.Now()
	pw.lastBytes = pw.bytesWritten
}

// parseContentRange parses "bytes 200-1023/1024" or "bytes */1024" and
// returns the total size
func parseContentRange(contentRange string) int64 {
	idx := strings.LastIndex(contentRange, "/")
	if idx == -1 {
		return 0
	}
	size, err := strconv.ParseInt(contentRange[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return size
}

// removePartial deletes the partial file of a destination, if any
func removePartial(destination string) error {
	if err := os.Remove(destination + partialSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
