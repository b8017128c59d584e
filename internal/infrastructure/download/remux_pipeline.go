package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/metrics"
)

// localManifestName is the playlist handed to the remux process
const localManifestName = "local.m3u8"

// Fetcher performs an authenticated GET against the media server
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*http.Response, error)
}

// PipelineConfig configures the segmented remux pipeline
type PipelineConfig struct {
	SegmentConcurrency int
	SegmentTimeout     time.Duration
}

// RemuxRequest describes one remux run
type RemuxRequest struct {
	Item        media.Item
	Source      media.Source
	ManifestURL string
	WorkDir     string
	OutputPath  string
}

// Update is a progress sample emitted by the pipeline
type Update struct {
	Status   download.Status
	Progress download.Progress
}

// RemuxPipeline turns a server HLS transcode into one local file by
// fetching every segment and stream-copying them with the remux process.
type RemuxPipeline struct {
	fetcher Fetcher
	remuxer download.Remuxer
	cfg     PipelineConfig
	logger  *zap.Logger
}

// NewRemuxPipeline creates a new remux pipeline
func NewRemuxPipeline(fetcher Fetcher, remuxer download.Remuxer, cfg PipelineConfig, logger *zap.Logger) *RemuxPipeline {
	if cfg.SegmentConcurrency <= 0 {
		cfg.SegmentConcurrency = 4
	}
	if cfg.SegmentTimeout <= 0 {
		cfg.SegmentTimeout = 30 * time.Second
	}
	return &RemuxPipeline{
		fetcher: fetcher,
		remuxer: remuxer,
		cfg:     cfg,
		logger:  logger.Named("remux-pipeline"),
	}
}

// Run executes the pipeline. Updates are sent while segments are fetched
// (status downloading) and while the remux process runs (status
// remuxing). It returns download.ErrCancelled when ctx is cancelled.
func (p *RemuxPipeline) Run(ctx context.Context, req RemuxRequest, updates chan<- Update) error {
	err := p.run(ctx, req, updates)
	if err != nil && ctx.Err() != nil {
		return download.ErrCancelled
	}
	return err
}

func (p *RemuxPipeline) run(ctx context.Context, req RemuxRequest, updates chan<- Update) error {
	playlist, err := p.loadMediaPlaylist(ctx, req.ManifestURL)
	if err != nil {
		return err
	}
	if len(playlist.Segments) == 0 {
		return &download.EmptyManifestError{URL: req.ManifestURL}
	}

	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	if err := p.fetchSegments(ctx, req, playlist, updates); err != nil {
		return err
	}

	manifest := filepath.Join(req.WorkDir, localManifestName)
	if err := renameio.WriteFile(manifest, playlist.LocalManifest(), 0o644); err != nil {
		return fmt.Errorf("failed to write local manifest: %w", err)
	}

	total := len(playlist.Segments)
	send(ctx, updates, Update{
		Status:   download.StatusRemuxing,
		Progress: download.Progress{SegmentsFetched: total, SegmentsTotal: total},
	})

	p.logger.Info("Starting remux",
		zap.String("item_id", req.Item.ID),
		zap.Int("segments", total),
		zap.String("output", req.OutputPath))

	return p.remux(ctx, req, manifest, total, updates)
}

// loadMediaPlaylist fetches the manifest and follows a master playlist to
// its first variant
func (p *RemuxPipeline) loadMediaPlaylist(ctx context.Context, manifestURL string) (*Playlist, error) {
	playlist, err := p.fetchPlaylist(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	if !playlist.IsMaster() {
		return playlist, nil
	}

	variant := playlist.Variants[0].String()
	p.logger.Debug("following master playlist",
		zap.String("master", manifestURL),
		zap.String("variant", variant))

	variantPlaylist, err := p.fetchPlaylist(ctx, variant)
	if err != nil {
		return nil, err
	}
	if variantPlaylist.IsMaster() {
		return nil, fmt.Errorf("variant %s is itself a master playlist", variant)
	}
	return variantPlaylist, nil
}

func (p *RemuxPipeline) fetchPlaylist(ctx context.Context, ref string) (*Playlist, error) {
	base, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.SegmentTimeout)
	defer cancel()

	resp, err := p.fetcher.Fetch(fetchCtx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	playlist, err := ParsePlaylist(resp.Body, base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", ref, err)
	}
	return playlist, nil
}

func (p *RemuxPipeline) fetchSegments(ctx context.Context, req RemuxRequest, playlist *Playlist, updates chan<- Update) error {
	total := len(playlist.Segments)

	if playlist.Map != nil {
		dest := filepath.Join(req.WorkDir, playlist.InitName())
		if _, err := p.fetchToFile(ctx, playlist.Map.String(), dest); err != nil {
			return &download.SegmentFetchError{Index: -1, URL: playlist.Map.String(), Err: err}
		}
	}

	var fetched, bytes atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SegmentConcurrency)
	for _, seg := range playlist.Segments {
		g.Go(func() error {
			dest := filepath.Join(req.WorkDir, playlist.SegmentName(seg.Index))
			segStart := time.Now()
			n, err := p.fetchToFile(gctx, seg.URI.String(), dest)
			if err != nil {
				return &download.SegmentFetchError{Index: seg.Index, URL: seg.URI.String(), Err: err}
			}
			metrics.ObserveSegmentFetch(time.Since(segStart).Seconds())

			done := fetched.Add(1)
			got := bytes.Add(n)
			var speed float64
			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				speed = float64(got) / elapsed
			}
			send(gctx, updates, Update{
				Status: download.StatusDownloading,
				Progress: download.Progress{
					BytesDownloaded: got,
					SegmentsFetched: int(done),
					SegmentsTotal:   total,
					Speed:           speed,
				},
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return download.ErrCancelled
		}
		return err
	}

	p.logger.Debug("segments fetched",
		zap.String("item_id", req.Item.ID),
		zap.Int("segments", total),
		zap.Int64("bytes", bytes.Load()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// fetchToFile downloads ref into dest atomically
func (p *RemuxPipeline) fetchToFile(ctx context.Context, ref, dest string) (int64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.SegmentTimeout)
	defer cancel()

	resp, err := p.fetcher.Fetch(fetchCtx, ref)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("failed to create segment file: %w", err)
	}
	defer pending.Cleanup()

	n, err := io.Copy(pending, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to write segment: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("failed to finalize segment: %w", err)
	}
	return n, nil
}

func (p *RemuxPipeline) remux(ctx context.Context, req RemuxRequest, manifest string, segments int, updates chan<- Update) error {
	tracker := newProgressTracker(req.Item, req.Source)
	stats := make(chan download.RemuxStats, 16)

	errc := make(chan error, 1)
	go func() {
		defer close(stats)
		errc <- p.remuxer.Remux(ctx, manifest, req.OutputPath, stats)
	}()

	for s := range stats {
		send(ctx, updates, Update{
			Status: download.StatusRemuxing,
			Progress: download.Progress{
				Percent:         tracker.percent(s),
				SegmentsFetched: segments,
				SegmentsTotal:   segments,
				Speed:           s.Speed,
			},
		})
	}

	if err := <-errc; err != nil {
		if errors.Is(err, download.ErrCancelled) {
			return download.ErrCancelled
		}
		return err
	}
	return nil
}

// progressTracker converts remux telemetry into a monotonic percentage
type progressTracker struct {
	totalFrames float64
	runTime     time.Duration
	last        float64
}

func newProgressTracker(item media.Item, source media.Source) *progressTracker {
	runTime := source.RunTime()
	if runTime <= 0 {
		runTime = item.RunTime()
	}
	var frames float64
	if fps := source.RealFrameRate(); fps > 0 && runTime > 0 {
		frames = runTime.Seconds() * fps
	}
	return &progressTracker{totalFrames: frames, runTime: runTime}
}

func (t *progressTracker) percent(s download.RemuxStats) float64 {
	var pct float64
	switch {
	case s.Done:
		pct = 100
	case t.totalFrames > 0 && s.Frame > 0:
		pct = float64(s.Frame) / t.totalFrames * 100
	case t.runTime > 0 && s.OutTime > 0:
		pct = float64(s.OutTime) / float64(t.runTime) * 100
	}

	switch {
	case pct != pct || pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	if pct < t.last {
		pct = t.last
	}
	t.last = pct
	return pct
}

// send delivers an update unless ctx is done
func send(ctx context.Context, updates chan<- Update, u Update) {
	if updates == nil {
		return
	}
	select {
	case updates <- u:
	case <-ctx.Done():
	}
}
