// Package remux wraps the external stream-copy process and the storage
// targets completed files are mirrored to.
package remux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

// stderrTailLines is how much process output a RemuxProcessError carries
const stderrTailLines = 20

// FFmpegRemuxer stream-copies a local HLS playlist into one file
type FFmpegRemuxer struct {
	ffmpeg    string
	waitDelay time.Duration
	logger    *zap.Logger
}

// NewFFmpegRemuxer locates the ffmpeg binary. An empty path looks it up
// in PATH.
func NewFFmpegRemuxer(path string, logger *zap.Logger) (*FFmpegRemuxer, error) {
	if path == "" {
		path = "ffmpeg"
	}
	ffmpeg, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	return &FFmpegRemuxer{
		ffmpeg:    ffmpeg,
		waitDelay: 5 * time.Second,
		logger:    logger.Named("ffmpeg-remuxer"),
	}, nil
}

func remuxArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-allowed_extensions", "ALL",
		"-i", input,
		"-map", "0:v?",
		"-map", "0:a?",
		"-c", "copy",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
}

// Remux implements download.Remuxer. Cancelling ctx interrupts the process
// and escalates to a kill if it does not exit in time. The partial output
// is removed on any failure.
func (r *FFmpegRemuxer) Remux(ctx context.Context, input, output string, stats chan<- download.RemuxStats) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg, remuxArgs(input, output)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newTailBuffer(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.monitorProgress(ctx, stdout, stats)
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			tail.add(scanner.Text())
		}
	}()
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		return nil
	}

	_ = os.Remove(output)
	if ctx.Err() != nil {
		return download.ErrCancelled
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	procErr := &download.RemuxProcessError{ExitCode: exitCode, LogTail: tail.snapshot(), Err: err}
	r.logger.Error("ffmpeg failed",
		zap.String("input", input),
		zap.Int("exit_code", exitCode),
		zap.Strings("stderr_tail", procErr.LogTail))
	return procErr
}

func (r *FFmpegRemuxer) monitorProgress(ctx context.Context, stdout io.Reader, stats chan<- download.RemuxStats) {
	err := parseProgress(stdout, func(s download.RemuxStats) {
		if stats == nil {
			return
		}
		select {
		case stats <- s:
		case <-ctx.Done():
		}
	})
	if err != nil {
		r.logger.Debug("progress stream ended", zap.Error(err))
	}
	// keep the pipe drained until the process exits
	_, _ = io.Copy(io.Discard, stdout)
}
