// Package download runs offline downloads: raw file transfers and
// segmented remuxes of server transcodes.
package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	"github.com/narwhalmedia/narwhal-player/internal/metrics"
	playbackapp "github.com/narwhalmedia/narwhal-player/internal/playback"
)

const (
	subscriberBuffer = 64
	outboxBuffer     = 256
	workerBuffer     = 64
	publishTimeout   = 5 * time.Second
)

// StreamResolver picks the stream a remux job copies from
type StreamResolver interface {
	Resolve(ctx context.Context, req playbackapp.ResolveRequest) (*playback.Resolution, error)
}

// SourceURLs builds original-file download URLs
type SourceURLs interface {
	DownloadURL(itemID, mediaSourceID string) string
}

// Pipeline runs one segmented remux
type Pipeline interface {
	Run(ctx context.Context, req RemuxRequest, updates chan<- Update) error
}

// Config configures the download manager
type Config struct {
	// Dir holds finished offline files, one sub-directory per item
	Dir string
	// WorkDir holds per-job scratch space; it is wiped at startup
	WorkDir string
	// CancelGrace is how long a cancelled worker may take to stop before
	// the job is forced to cancelled
	CancelGrace time.Duration
	// Profile, UserID and MaxBitrate are used to resolve remux streams
	Profile    playback.CapabilityProfile
	UserID     string
	MaxBitrate int
}

// Manager owns every download job. All job state lives on one loop
// goroutine; public methods hand it commands and workers hand it events.
// At most one job is active at a time and queued jobs start in FIFO order.
type Manager struct {
	cfg        Config
	repo       download.CatalogRepository
	downloader download.Downloader
	pipeline   Pipeline
	resolver   StreamResolver
	urls       SourceURLs
	mirror     download.Mirror
	publisher  domainevents.EventPublisher
	validator  *FileValidator
	logger     *zap.Logger
	now        func() time.Time

	cmds    chan func()
	events  chan workerEvent
	outbox  chan domainevents.Event
	done    chan struct{}
	started atomic.Bool
	running atomic.Bool
	wg      sync.WaitGroup

	// owned by the loop goroutine
	ctx         context.Context
	jobs        map[uuid.UUID]*download.Job
	order       []uuid.UUID
	queue       []uuid.UUID
	active      *run
	subscribers map[chan download.JobSnapshot]struct{}
}

// run is one execution of the active job
type run struct {
	jobID        uuid.UUID
	cancel       context.CancelFunc
	cancelling   bool
	grace        *time.Timer
	lastProgress time.Time
}

// task is the worker's copy of what it needs from the job
type task struct {
	item       media.Item
	kind       download.Kind
	outputBase string
	workDir    string
}

// workerEvent is sent from a worker to the loop. Exactly one of source,
// progress or done is set.
type workerEvent struct {
	run *run

	source     *media.Source
	outputPath string

	status   download.Status
	progress *download.Progress

	done bool
	size int64
	err  error
}

// NewManager creates a new download manager. mirror may be nil.
func NewManager(
	cfg Config,
	repo download.CatalogRepository,
	downloader download.Downloader,
	pipeline Pipeline,
	resolver StreamResolver,
	urls SourceURLs,
	mirror download.Mirror,
	publisher domainevents.EventPublisher,
	logger *zap.Logger,
) *Manager {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.Dir, ".work")
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 10 * time.Second
	}
	if publisher == nil {
		publisher = domainevents.NoopPublisher{}
	}

	return &Manager{
		cfg:         cfg,
		repo:        repo,
		downloader:  downloader,
		pipeline:    pipeline,
		resolver:    resolver,
		urls:        urls,
		mirror:      mirror,
		publisher:   publisher,
		validator:   NewFileValidator(),
		logger:      logger.Named("download-manager"),
		now:         time.Now,
		cmds:        make(chan func()),
		events:      make(chan workerEvent, workerBuffer),
		outbox:      make(chan domainevents.Event, outboxBuffer),
		done:        make(chan struct{}),
		jobs:        make(map[uuid.UUID]*download.Job),
		subscribers: make(map[chan download.JobSnapshot]struct{}),
	}
}

// Start recovers the offline catalog and starts the manager loop. The
// loop stops when ctx is cancelled; Wait blocks until every goroutine the
// manager started has exited.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("download manager already started")
	}
	m.ctx = ctx
	m.running.Store(true)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.publishLoop()
	}()

	if err := m.recover(ctx); err != nil {
		m.running.Store(false)
		close(m.outbox)
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()

	m.logger.Info("Download manager started",
		zap.String("dir", m.cfg.Dir),
		zap.String("work_dir", m.cfg.WorkDir))
	return nil
}

// Wait blocks until the loop, its workers and the event publisher exit
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Enqueue queues a download of the item
func (m *Manager) Enqueue(ctx context.Context, item media.Item, kind download.Kind) (uuid.UUID, error) {
	job, err := download.NewJob(item, kind)
	if err != nil {
		return uuid.Nil, err
	}

	var cmdErr error
	if err := m.do(ctx, func() { cmdErr = m.enqueue(job) }); err != nil {
		return uuid.Nil, err
	}
	if cmdErr != nil {
		return uuid.Nil, cmdErr
	}
	return job.ID(), nil
}

// Cancel stops a job. A queued job is cancelled at once; the active job
// is cancelled when its worker acknowledges or the grace period ends.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	var cmdErr error
	if err := m.do(ctx, func() { cmdErr = m.cancel(id) }); err != nil {
		return err
	}
	return cmdErr
}

// List returns every known job in enqueue order
func (m *Manager) List(ctx context.Context) ([]download.JobSnapshot, error) {
	var out []download.JobSnapshot
	err := m.do(ctx, func() {
		out = make([]download.JobSnapshot, 0, len(m.order))
		for _, id := range m.order {
			out = append(out, m.jobs[id].Snapshot())
		}
	})
	return out, err
}

// Remove forgets a finished job
func (m *Manager) Remove(ctx context.Context, id uuid.UUID) error {
	var cmdErr error
	err := m.do(ctx, func() {
		job, ok := m.jobs[id]
		switch {
		case !ok:
			cmdErr = download.ErrJobNotFound
		case !job.Status().IsTerminal():
			cmdErr = download.ErrJobActive
		default:
			m.forget(id)
		}
	})
	if err != nil {
		return err
	}
	return cmdErr
}

// Subscribe streams job snapshots until ctx is done. The current state of
// every job is delivered first. A subscriber that falls behind misses
// snapshots rather than stalling the manager.
func (m *Manager) Subscribe(ctx context.Context) (<-chan download.JobSnapshot, error) {
	ch := make(chan download.JobSnapshot, subscriberBuffer)
	err := m.do(ctx, func() {
		m.subscribers[ch] = struct{}{}
		for _, id := range m.order {
			select {
			case ch <- m.jobs[id].Snapshot():
			default:
			}
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			select {
			case <-ctx.Done():
				_ = m.do(context.Background(), func() {
					if _, ok := m.subscribers[ch]; ok {
						delete(m.subscribers, ch)
						close(ch)
					}
				})
			case <-m.done:
			}
		}()
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ListOffline lists the offline catalog
func (m *Manager) ListOffline(ctx context.Context) ([]*download.OfflineEntry, error) {
	var (
		entries []*download.OfflineEntry
		cmdErr  error
	)
	err := m.do(ctx, func() {
		entries, _, cmdErr = m.repo.LoadAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	if cmdErr != nil {
		return nil, fmt.Errorf("failed to load offline catalog: %w", cmdErr)
	}
	return entries, nil
}

// DeleteOffline removes an item from the offline catalog and deletes its file
func (m *Manager) DeleteOffline(ctx context.Context, itemID string) error {
	var cmdErr error
	if err := m.do(ctx, func() { cmdErr = m.deleteOffline(ctx, itemID) }); err != nil {
		return err
	}
	return cmdErr
}

// do runs fn on the loop goroutine and waits for it
func (m *Manager) do(ctx context.Context, fn func()) error {
	if !m.running.Load() {
		return download.ErrManagerStopped
	}

	finished := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(finished) }:
	case <-m.done:
		return download.ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.cmds:
			fn()
		case ev := <-m.events:
			m.handleEvent(ev)
		case <-m.graceC():
			m.forceCancel()
		}
	}
}

func (m *Manager) shutdown() {
	m.running.Store(false)
	if m.active != nil {
		m.active.cancel()
		if m.active.grace != nil {
			m.active.grace.Stop()
		}
	}
	close(m.done)
	for ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	close(m.outbox)
	m.logger.Info("Download manager stopped")
}

func (m *Manager) graceC() <-chan time.Time {
	if m.active == nil || m.active.grace == nil {
		return nil
	}
	return m.active.grace.C
}

func (m *Manager) enqueue(job *download.Job) error {
	if existing, ok := m.jobs[job.ID()]; ok {
		if !existing.Status().IsTerminal() {
			return fmt.Errorf("%w: %s", download.ErrJobExists, job.ItemID())
		}
		m.forget(job.ID())
	}

	m.jobs[job.ID()] = job
	m.order = append(m.order, job.ID())
	m.queue = append(m.queue, job.ID())
	m.transitioned(job, download.NewDownloadQueued(job))

	m.logger.Info("Download queued",
		zap.String("job_id", job.ID().String()),
		zap.String("item_id", job.ItemID()),
		zap.String("kind", string(job.Kind())))

	m.promote()
	return nil
}

func (m *Manager) cancel(id uuid.UUID) error {
	job, ok := m.jobs[id]
	if !ok {
		return download.ErrJobNotFound
	}

	switch {
	case job.Status() == download.StatusQueued:
		m.queue = without(m.queue, id)
		if err := job.Cancel(); err != nil {
			return err
		}
		m.transitioned(job, download.NewDownloadCancelled(job, false))
		return nil

	case m.active != nil && m.active.jobID == id:
		if m.active.cancelling {
			return nil
		}
		m.active.cancelling = true
		m.active.cancel()
		m.active.grace = time.NewTimer(m.cfg.CancelGrace)
		m.logger.Info("Cancelling active download",
			zap.String("job_id", id.String()),
			zap.Duration("grace", m.cfg.CancelGrace))
		return nil

	default:
		return job.Cancel()
	}
}

// promote starts the next queued job if the active slot is free
func (m *Manager) promote() {
	for m.active == nil && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		job := m.jobs[id]

		// run-stamped names keep an abandoned worker of the same item off this run's files
		name := safeName(job.ItemID())
		runName := fmt.Sprintf("%s-%d", name, m.now().UnixNano())
		dir := filepath.Join(m.cfg.Dir, name)
		workDir := filepath.Join(m.cfg.WorkDir, runName)
		base := filepath.Join(dir, runName)

		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = job.Fail(fmt.Sprintf("failed to create output directory: %v", err))
			m.transitioned(job, download.NewDownloadFailed(job))
			continue
		}
		if err := job.Start(base+defaultExt(job), workDir); err != nil {
			m.logger.Error("failed to start job", zap.String("job_id", id.String()), zap.Error(err))
			if job.Fail(fmt.Sprintf("failed to start job: %v", err)) == nil {
				m.transitioned(job, download.NewDownloadFailed(job))
			}
			continue
		}

		runCtx, cancel := context.WithCancel(m.ctx)
		r := &run{jobID: id, cancel: cancel}
		m.active = r
		m.transitioned(job, download.NewDownloadStarted(job))

		t := task{
			item:       job.Item(),
			kind:       job.Kind(),
			outputBase: base,
			workDir:    workDir,
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer cancel()
			m.work(runCtx, r, t)
		}()
	}
}

func (m *Manager) handleEvent(ev workerEvent) {
	// events of a run that was force-cancelled are stale
	if ev.run != m.active {
		return
	}
	job := m.jobs[ev.run.jobID]

	if ev.done {
		m.finish(job, ev)
		return
	}
	if ev.run.cancelling {
		return
	}

	switch {
	case ev.source != nil:
		job.SetSource(*ev.source)
		if ev.outputPath != "" {
			job.SetOutputPath(ev.outputPath)
		}
		m.notify(job.Snapshot())

	case ev.progress != nil:
		if ev.status == download.StatusRemuxing && job.Status() == download.StatusDownloading {
			if err := job.StartRemuxing(); err == nil {
				job.UpdateProgress(*ev.progress)
				m.transitioned(job, download.NewDownloadRemuxing(job))
				return
			}
		}
		job.UpdateProgress(*ev.progress)
		m.notify(job.Snapshot())

		if now := m.now(); now.Sub(ev.run.lastProgress) >= time.Second {
			ev.run.lastProgress = now
			m.publish(download.NewDownloadProgress(job))
		}
	}
}

func (m *Manager) finish(job *download.Job, ev workerEvent) {
	r := m.active
	m.active = nil
	if r.grace != nil {
		r.grace.Stop()
	}

	switch {
	case r.cancelling || errors.Is(ev.err, download.ErrCancelled):
		m.discard(job)
		_ = job.Cancel()
		m.transitioned(job, download.NewDownloadCancelled(job, false))
		m.logger.Info("Download cancelled", zap.String("job_id", job.ID().String()))

	case ev.err != nil:
		m.discard(job)
		_ = job.Fail(ev.err.Error())
		m.transitioned(job, download.NewDownloadFailed(job))
		m.logger.Error("Download failed",
			zap.String("job_id", job.ID().String()),
			zap.String("item_id", job.ItemID()),
			zap.Error(ev.err))

	default:
		m.complete(job, ev.size)
	}

	m.promote()
}

func (m *Manager) complete(job *download.Job, size int64) {
	entry := download.NewOfflineEntry(job, size)

	previous, err := m.repo.FindByItemID(m.ctx, job.ItemID())
	if err != nil && !errors.Is(err, download.ErrEntryNotFound) {
		m.logger.Warn("failed to look up previous offline entry",
			zap.String("item_id", job.ItemID()),
			zap.Error(err))
	}

	if err := m.repo.Save(m.ctx, entry); err != nil {
		m.discard(job)
		_ = job.Fail(fmt.Sprintf("failed to record offline entry: %v", err))
		m.transitioned(job, download.NewDownloadFailed(job))
		return
	}

	_ = job.Complete()
	_ = os.RemoveAll(job.WorkDir())

	if previous != nil && previous.Path != entry.Path {
		if err := removeFile(previous.Path); err != nil {
			m.logger.Warn("failed to delete replaced offline file",
				zap.String("path", previous.Path),
				zap.Error(err))
		}
	} else {
		previous = nil
	}

	m.transitioned(job, download.NewDownloadCompleted(job, size))
	m.logger.Info("Download completed",
		zap.String("job_id", job.ID().String()),
		zap.String("item_id", job.ItemID()),
		zap.String("path", entry.Path),
		zap.Int64("size", size))

	m.mirrorAsync(entry, previous)
}

func (m *Manager) forceCancel() {
	r := m.active
	if r == nil {
		return
	}
	m.active = nil
	job := m.jobs[r.jobID]

	m.logger.Warn("Worker did not stop within grace period, forcing cancel",
		zap.String("job_id", r.jobID.String()),
		zap.Duration("grace", m.cfg.CancelGrace))

	m.discard(job)
	_ = job.Cancel()
	m.transitioned(job, download.NewDownloadCancelled(job, true))
	m.promote()
}

func (m *Manager) deleteOffline(ctx context.Context, itemID string) error {
	entry, err := m.repo.FindByItemID(ctx, itemID)
	if err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to delete offline entry: %w", err)
	}

	if err := removeFile(entry.Path); err != nil {
		m.logger.Warn("failed to delete offline file",
			zap.String("path", entry.Path),
			zap.Error(err))
	}
	// only succeeds once the item directory is empty
	_ = os.Remove(filepath.Dir(entry.Path))

	m.publish(download.NewOfflineEntryRemoved(entry, "deleted"))
	m.mirrorAsync(nil, entry)
	return nil
}

// recover prepares the directories and drops unusable catalog entries.
// It runs before the loop starts.
func (m *Manager) recover(ctx context.Context) error {
	for _, dir := range []string{m.cfg.Dir, m.cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	stale, err := os.ReadDir(m.cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to read work dir: %w", err)
	}
	for _, e := range stale {
		if err := os.RemoveAll(filepath.Join(m.cfg.WorkDir, e.Name())); err != nil {
			m.logger.Warn("failed to remove stale work dir", zap.String("name", e.Name()), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		m.logger.Info("Removed stale work directories", zap.Int("count", len(stale)))
	}

	_ = filepath.WalkDir(m.cfg.Dir, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(p, partialSuffix) {
			_ = os.Remove(p)
		}
		return nil
	})

	entries, corrupt, err := m.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load offline catalog: %w", err)
	}
	for _, itemID := range corrupt {
		m.logger.Warn("Dropping undecodable offline entry", zap.String("item_id", itemID))
		if err := m.repo.Delete(ctx, itemID); err != nil {
			m.logger.Error("failed to delete offline entry", zap.String("item_id", itemID), zap.Error(err))
		}
	}
	for _, entry := range entries {
		verr := entry.Validate()
		if verr == nil {
			_, verr = m.validator.ValidateFile(entry.Path)
		}
		if verr == nil {
			continue
		}

		m.logger.Warn("Dropping unusable offline entry",
			zap.String("item_id", entry.ItemID),
			zap.String("path", entry.Path),
			zap.Error(verr))
		if err := m.repo.Delete(ctx, entry.ItemID); err != nil {
			m.logger.Error("failed to delete offline entry", zap.String("item_id", entry.ItemID), zap.Error(err))
			continue
		}
		m.publish(download.NewOfflineEntryRemoved(entry, "unusable"))
	}
	return nil
}

// work executes one job on its own goroutine
func (m *Manager) work(ctx context.Context, r *run, t task) {
	size, err := m.execute(ctx, r, t)
	if err != nil && ctx.Err() != nil {
		err = download.ErrCancelled
	}
	m.emit(workerEvent{run: r, done: true, size: size, err: err})
}

func (m *Manager) execute(ctx context.Context, r *run, t task) (int64, error) {
	var source *media.Source

	if t.kind == download.KindRemux {
		res, err := m.resolver.Resolve(ctx, playbackapp.ResolveRequest{
			Item:       t.item,
			UserID:     m.cfg.UserID,
			Profile:    m.cfg.Profile,
			MaxBitrate: m.cfg.MaxBitrate,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to resolve stream: %w", err)
		}
		if res.Kind == playback.KindTranscode && res.MediaSource != nil {
			return m.remux(ctx, r, t, *res.MediaSource, res.URL)
		}

		m.logger.Info("No transcode offered, downloading original file",
			zap.String("item_id", t.item.ID),
			zap.String("resolution", string(res.Kind)))
		source = res.MediaSource
	}

	return m.downloadRaw(ctx, r, t, source)
}

func (m *Manager) remux(ctx context.Context, r *run, t task, source media.Source, manifestURL string) (int64, error) {
	output := t.outputBase + ".mp4"
	m.emit(workerEvent{run: r, source: &source, outputPath: output})

	updates := make(chan Update, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(updates)
		errc <- m.pipeline.Run(ctx, RemuxRequest{
			Item:        t.item,
			Source:      source,
			ManifestURL: manifestURL,
			WorkDir:     t.workDir,
			OutputPath:  output,
		}, updates)
	}()

	for u := range updates {
		p := u.Progress
		m.emit(workerEvent{run: r, status: u.Status, progress: &p})
	}
	if err := <-errc; err != nil {
		return 0, err
	}
	return m.validator.ValidateFile(output)
}

func (m *Manager) downloadRaw(ctx context.Context, r *run, t task, source *media.Source) (int64, error) {
	if source == nil {
		if len(t.item.MediaSources) == 0 {
			return 0, fmt.Errorf("%w: item %s", media.ErrSourceNotFound, t.item.ID)
		}
		source = &t.item.MediaSources[0]
	}

	output := t.outputBase + containerExt(source.Container)
	m.emit(workerEvent{run: r, source: source, outputPath: output})

	progress := make(chan download.Progress, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range progress {
			m.emit(workerEvent{run: r, status: download.StatusDownloading, progress: &p})
		}
	}()

	size, err := m.downloader.Download(ctx, m.urls.DownloadURL(t.item.ID, source.ID), output, progress)
	close(progress)
	<-forwarded
	if err != nil {
		return 0, err
	}
	if _, err := m.validator.ValidateFile(output); err != nil {
		return 0, err
	}
	return size, nil
}

// emit hands an event to the loop unless the loop has stopped
func (m *Manager) emit(ev workerEvent) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// transitioned records a job state change
func (m *Manager) transitioned(job *download.Job, event domainevents.Event) {
	metrics.RecordDownloadTransition(string(job.Status()), string(job.Kind()))
	if m.active != nil {
		metrics.DownloadActiveJobs.Set(1)
	} else {
		metrics.DownloadActiveJobs.Set(0)
	}
	metrics.DownloadQueuedJobs.Set(float64(len(m.queue)))

	m.publish(event)
	m.notify(job.Snapshot())
}

func (m *Manager) notify(snap download.JobSnapshot) {
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			m.logger.Debug("subscriber is behind, dropping snapshot",
				zap.String("job_id", snap.ID.String()))
		}
	}
}

func (m *Manager) publish(event domainevents.Event) {
	select {
	case m.outbox <- event:
	default:
		m.logger.Warn("event outbox full, dropping event", zap.String("event_type", event.EventType()))
	}
}

func (m *Manager) publishLoop() {
	for event := range m.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := m.publisher.PublishEvent(ctx, event); err != nil {
			m.logger.Warn("failed to publish event",
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
		cancel()
	}
}

// mirrorAsync uploads entry and removes the mirror copy of previous
func (m *Manager) mirrorAsync(entry, previous *download.OfflineEntry) {
	if m.mirror == nil {
		return
	}
	ctx := m.ctx

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if previous != nil {
			if err := m.mirror.Remove(ctx, mirrorKey(previous)); err != nil {
				m.logger.Warn("failed to remove mirrored file", zap.String("item_id", previous.ItemID), zap.Error(err))
			}
		}
		if entry != nil {
			if err := m.mirror.Mirror(ctx, entry.Path, mirrorKey(entry)); err != nil {
				m.logger.Warn("failed to mirror offline file", zap.String("item_id", entry.ItemID), zap.Error(err))
			}
		}
	}()
}

// discard deletes everything a job run wrote
func (m *Manager) discard(job *download.Job) {
	if p := job.OutputPath(); p != "" {
		_ = removeFile(p)
		_ = removePartial(p)
	}
	if d := job.WorkDir(); d != "" {
		_ = os.RemoveAll(d)
	}
}

func (m *Manager) forget(id uuid.UUID) {
	delete(m.jobs, id)
	m.order = without(m.order, id)
	m.queue = without(m.queue, id)
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func removeFile(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func mirrorKey(entry *download.OfflineEntry) string {
	return path.Join(safeName(entry.ItemID), filepath.Base(entry.Path))
}

// safeName maps an item id onto a single path element
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func defaultExt(job *download.Job) string {
	if job.Kind() == download.KindRemux {
		return ".mp4"
	}
	item := job.Item()
	if len(item.MediaSources) > 0 {
		return containerExt(item.MediaSources[0].Container)
	}
	return containerExt("")
}

// containerExt maps a server container list such as "mov,mp4,m4a" to a
// file extension
func containerExt(container string) string {
	first, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(container)), ",")
	switch first {
	case "":
		return ".bin"
	case "mpegts":
		return ".ts"
	case "matroska":
		return ".mkv"
	default:
		return "." + safeName(first)
	}
}
