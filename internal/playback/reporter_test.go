package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

type sentReport struct {
	kind   string
	report playback.SessionReport
}

// fakeSessionAPI records reports and optionally fails them
type fakeSessionAPI struct {
	mu      sync.Mutex
	reports []sentReport
	err     error
}

func (f *fakeSessionAPI) record(kind string, r playback.SessionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, sentReport{kind: kind, report: r})
	return f.err
}

func (f *fakeSessionAPI) ReportStart(_ context.Context, r playback.SessionReport) error {
	return f.record("start", r)
}

func (f *fakeSessionAPI) ReportProgress(_ context.Context, r playback.SessionReport) error {
	return f.record("progress", r)
}

func (f *fakeSessionAPI) ReportStopped(_ context.Context, r playback.SessionReport) error {
	return f.record("stopped", r)
}

func (f *fakeSessionAPI) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.reports))
	for _, r := range f.reports {
		out = append(out, r.kind)
	}
	return out
}

func (f *fakeSessionAPI) last() playback.SessionReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[len(f.reports)-1].report
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testResolution() *playback.Resolution {
	return &playback.Resolution{
		Kind:             playback.KindTranscode,
		ItemID:           "item-1",
		SessionID:        "play-1",
		MediaSource:      &media.Source{ID: "src-1"},
		AudioStreamIndex: intPtr(1),
	}
}

func newTestReporter(t *testing.T, api playback.SessionAPI, offline bool) (*Reporter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r := NewReporter(api, ReporterConfig{Interval: 10 * time.Second, Offline: offline}, zaptest.NewLogger(t))
	r.now = clock.now
	return r, clock
}

func TestReporterLifecycle(t *testing.T) {
	api := &fakeSessionAPI{}
	r, clock := newTestReporter(t, api, false)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, testResolution(), 0))
	assert.Equal(t, playback.PhaseStarted, r.State().Phase)
	first := api.last()
	assert.Equal(t, "play-1", first.PlaySessionID)
	assert.Equal(t, "src-1", first.MediaSourceID)
	assert.Equal(t, playback.PlayMethodTranscode, first.PlayMethod)
	require.NotNil(t, first.AudioStreamIndex)

	// Throttled: inside the interval nothing is sent.
	clock.advance(2 * time.Second)
	require.NoError(t, r.ReportProgress(ctx, 20_000_000, false))
	assert.Equal(t, []string{"start"}, api.kinds())
	assert.Equal(t, playback.PhaseProgressing, r.State().Phase)

	clock.advance(10 * time.Second)
	require.NoError(t, r.ReportProgress(ctx, 120_000_000, false))
	assert.Equal(t, []string{"start", "progress"}, api.kinds())
	assert.Equal(t, int64(120_000_000), api.last().PositionTicks)

	// Pause is reported immediately.
	clock.advance(time.Second)
	require.NoError(t, r.ReportProgress(ctx, 130_000_000, true))
	assert.Equal(t, []string{"start", "progress", "progress"}, api.kinds())
	assert.True(t, api.last().IsPaused)
	assert.Equal(t, playback.PhasePaused, r.State().Phase)

	// And so is unpausing.
	clock.advance(time.Second)
	require.NoError(t, r.ReportProgress(ctx, 130_000_000, false))
	assert.False(t, api.last().IsPaused)
	assert.Len(t, api.kinds(), 4)

	require.NoError(t, r.End(ctx))
	assert.Equal(t, "stopped", api.kinds()[4])
	assert.Equal(t, int64(130_000_000), api.last().PositionTicks)
	assert.True(t, r.State().Stopped)

	// Terminal: nothing more is sent.
	clock.advance(time.Minute)
	assert.ErrorIs(t, r.ReportProgress(ctx, 1, false), playback.ErrSessionStopped)
	require.NoError(t, r.End(ctx))
	assert.Len(t, api.kinds(), 5)
}

func TestReporterSuppressesDuringSeek(t *testing.T) {
	api := &fakeSessionAPI{}
	r, clock := newTestReporter(t, api, false)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, testResolution(), 0))
	r.BeginSeek()

	clock.advance(time.Minute)
	require.NoError(t, r.ReportProgress(ctx, 50_000_000, false))
	require.NoError(t, r.ReportProgress(ctx, 60_000_000, true))
	assert.Equal(t, []string{"start"}, api.kinds())

	require.NoError(t, r.EndSeek(ctx, 900_000_000))
	assert.Equal(t, []string{"start", "progress"}, api.kinds())
	assert.Equal(t, int64(900_000_000), api.last().PositionTicks)
	assert.False(t, r.State().Seeking)
}

func TestReporterSwallowsFailures(t *testing.T) {
	api := &fakeSessionAPI{err: errors.New("server down")}
	r, clock := newTestReporter(t, api, false)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, testResolution(), 0))
	clock.advance(time.Minute)
	require.NoError(t, r.ReportProgress(ctx, 10, false))
	require.NoError(t, r.End(ctx))
	assert.Len(t, api.kinds(), 3)
}

func TestReporterOfflineIsNoop(t *testing.T) {
	api := &fakeSessionAPI{}
	r, clock := newTestReporter(t, api, true)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, testResolution(), 0))
	clock.advance(time.Minute)
	require.NoError(t, r.ReportProgress(ctx, 10, true))
	require.NoError(t, r.End(ctx))

	assert.Empty(t, api.kinds())
	assert.Equal(t, playback.PhaseStopped, r.State().Phase)
}

func TestReporterRequiresBegin(t *testing.T) {
	r, _ := newTestReporter(t, &fakeSessionAPI{}, false)
	ctx := context.Background()

	assert.ErrorIs(t, r.ReportProgress(ctx, 1, false), playback.ErrSessionNotFound)
	assert.ErrorIs(t, r.End(ctx), playback.ErrSessionNotFound)

	require.NoError(t, r.Begin(ctx, testResolution(), 0))
	assert.ErrorIs(t, r.Begin(ctx, testResolution(), 0), ErrAlreadyStarted)
}

// stallingSessionAPI holds every report until gate is closed
type stallingSessionAPI struct {
	fakeSessionAPI
	entered chan string
	gate    chan struct{}
}

func (s *stallingSessionAPI) hold(kind string, r playback.SessionReport) error {
	s.entered <- kind
	<-s.gate
	return s.record(kind, r)
}

func (s *stallingSessionAPI) ReportStart(_ context.Context, r playback.SessionReport) error {
	return s.hold("start", r)
}

func (s *stallingSessionAPI) ReportProgress(_ context.Context, r playback.SessionReport) error {
	return s.hold("progress", r)
}

func (s *stallingSessionAPI) ReportStopped(_ context.Context, r playback.SessionReport) error {
	return s.hold("stopped", r)
}

func TestReporterSlowServerDoesNotBlockState(t *testing.T) {
	api := &stallingSessionAPI{entered: make(chan string, 4), gate: make(chan struct{})}
	r, _ := newTestReporter(t, api, false)
	ctx := context.Background()

	begun := make(chan error, 1)
	go func() { begun <- r.Begin(ctx, testResolution(), 0) }()
	assert.Equal(t, "start", <-api.entered)

	reads := make(chan playback.SessionState, 1)
	go func() {
		r.BeginSeek()
		reads <- r.State()
	}()
	select {
	case state := <-reads:
		assert.Equal(t, playback.PhaseStarted, state.Phase)
		assert.True(t, state.Seeking)
	case <-time.After(time.Second):
		t.Fatal("state access blocked behind an in-flight report")
	}

	ended := make(chan error, 1)
	go func() { ended <- r.End(ctx) }()
	require.Eventually(t, func() bool { return r.State().Stopped }, time.Second, time.Millisecond)
	assert.Empty(t, api.entered, "stopped report must wait for the start report")

	close(api.gate)
	require.NoError(t, <-begun)
	require.NoError(t, <-ended)
	assert.Equal(t, []string{"start", "stopped"}, api.kinds())
}
