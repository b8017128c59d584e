package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	"github.com/narwhalmedia/narwhal-player/internal/metrics"
)

// ErrAlreadyStarted is returned when Begin is called twice
var ErrAlreadyStarted = errors.New("playback session already started")

const (
	reportStart    = "start"
	reportProgress = "progress"
	reportStopped  = "stopped"
)

// ReporterConfig configures a session reporter
type ReporterConfig struct {
	// Interval is the minimum time between two periodic progress reports
	Interval time.Duration
	// Timeout bounds each report round trip
	Timeout time.Duration
	// Offline disables all server reporting
	Offline bool
}

// Reporter keeps the server's view of one playback session in sync.
// Report failures are logged and never returned to the caller.
type Reporter struct {
	api    playback.SessionAPI
	cfg    ReporterConfig
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        playback.SessionState
	playMethod   string
	liveStreamID string
	audio        *int
	subtitle     *int
	lastReport   time.Time
	// tail is closed once the most recently prepared report has been delivered
	tail chan struct{}
}

// outgoing is a report snapshot taken under mu and delivered after it is released
type outgoing struct {
	kind   string
	report playback.SessionReport
	after  <-chan struct{}
	done   chan struct{}
}

// NewReporter creates a reporter in the idle state
func NewReporter(api playback.SessionAPI, cfg ReporterConfig, logger *zap.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Reporter{
		api:    api,
		cfg:    cfg,
		logger: logger.Named("session-reporter"),
		now:    time.Now,
		state:  playback.SessionState{Phase: playback.PhaseIdle},
	}
}

// Begin starts the session for a resolution and sends the start report
func (r *Reporter) Begin(ctx context.Context, res *playback.Resolution, startTicks int64) error {
	out, err := r.update(func() (*outgoing, error) {
		if r.state.Phase != playback.PhaseIdle {
			return nil, ErrAlreadyStarted
		}

		r.state = playback.SessionState{
			SessionID:     res.SessionID,
			ItemID:        res.ItemID,
			MediaSourceID: res.MediaSourceID(),
			PositionTicks: startTicks,
			Phase:         playback.PhaseStarted,
		}
		r.playMethod = res.PlayMethod()
		r.liveStreamID = res.LiveStreamID
		r.audio = res.AudioStreamIndex
		r.subtitle = res.SubtitleStreamIndex
		return r.prepare(reportStart, ""), nil
	})
	if err != nil {
		return err
	}
	r.send(ctx, out)
	return nil
}

// ReportProgress forwards a position update from the playback surface.
// Periodic reports are throttled to the interval; a pause toggle is sent
// immediately. Nothing is sent while a seek is in flight.
func (r *Reporter) ReportProgress(ctx context.Context, positionTicks int64, paused bool) error {
	out, err := r.update(func() (*outgoing, error) {
		switch r.state.Phase {
		case playback.PhaseIdle:
			return nil, playback.ErrSessionNotFound
		case playback.PhaseStopped:
			return nil, playback.ErrSessionStopped
		}

		if r.state.Seeking {
			return nil, nil
		}

		r.state.PositionTicks = positionTicks
		toggled := paused != r.state.Paused
		r.state.Paused = paused
		if paused {
			r.state.Phase = playback.PhasePaused
		} else {
			r.state.Phase = playback.PhaseProgressing
		}

		switch {
		case toggled && paused:
			return r.prepare(reportProgress, "Pause"), nil
		case toggled:
			return r.prepare(reportProgress, "Unpause"), nil
		case r.now().Sub(r.lastReport) >= r.cfg.Interval:
			return r.prepare(reportProgress, "TimeUpdate"), nil
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	r.send(ctx, out)
	return nil
}

// BeginSeek suppresses progress reports until EndSeek
func (r *Reporter) BeginSeek() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase == playback.PhaseIdle || r.state.Phase == playback.PhaseStopped {
		return
	}
	r.state.Seeking = true
}

// EndSeek records the landed position and reports it
func (r *Reporter) EndSeek(ctx context.Context, positionTicks int64) error {
	out, err := r.update(func() (*outgoing, error) {
		switch r.state.Phase {
		case playback.PhaseIdle:
			return nil, playback.ErrSessionNotFound
		case playback.PhaseStopped:
			return nil, playback.ErrSessionStopped
		}

		r.state.Seeking = false
		r.state.PositionTicks = positionTicks
		return r.prepare(reportProgress, "TimeUpdate"), nil
	})
	if err != nil {
		return err
	}
	r.send(ctx, out)
	return nil
}

// End sends the final stopped report. The session is terminal afterwards
// and End is a no-op on a stopped session.
func (r *Reporter) End(ctx context.Context) error {
	out, err := r.update(func() (*outgoing, error) {
		switch r.state.Phase {
		case playback.PhaseIdle:
			return nil, playback.ErrSessionNotFound
		case playback.PhaseStopped:
			return nil, nil
		}

		r.state.Seeking = false
		r.state.Stopped = true
		r.state.Phase = playback.PhaseStopped
		return r.prepare(reportStopped, ""), nil
	})
	if err != nil {
		return err
	}
	r.send(ctx, out)
	return nil
}

// State returns a copy of the session state
func (r *Reporter) State() playback.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reporter) update(fn func() (*outgoing, error)) (*outgoing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// prepare must be called with mu held. It returns nil when reporting is off.
func (r *Reporter) prepare(kind, event string) *outgoing {
	r.lastReport = r.now()
	if r.cfg.Offline {
		return nil
	}

	out := &outgoing{
		kind: kind,
		report: playback.SessionReport{
			ItemID:              r.state.ItemID,
			MediaSourceID:       r.state.MediaSourceID,
			PlaySessionID:       r.state.SessionID,
			LiveStreamID:        r.liveStreamID,
			PositionTicks:       r.state.PositionTicks,
			IsPaused:            r.state.Paused,
			PlayMethod:          r.playMethod,
			AudioStreamIndex:    r.audio,
			SubtitleStreamIndex: r.subtitle,
			EventName:           event,
		},
		after: r.tail,
		done:  make(chan struct{}),
	}
	r.tail = out.done
	return out
}

// send delivers a prepared report once every earlier report has gone out.
// Callers must not hold mu.
func (r *Reporter) send(ctx context.Context, out *outgoing) {
	if out == nil {
		return
	}
	defer close(out.done)
	if out.after != nil {
		<-out.after
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var err error
	switch out.kind {
	case reportStart:
		err = r.api.ReportStart(callCtx, out.report)
	case reportStopped:
		err = r.api.ReportStopped(callCtx, out.report)
	default:
		err = r.api.ReportProgress(callCtx, out.report)
	}
	metrics.RecordSessionReport(out.kind, err)

	if err != nil {
		r.logger.Warn("Failed to send session report",
			zap.String("report", out.kind),
			zap.String("play_session_id", out.report.PlaySessionID),
			zap.String("item_id", out.report.ItemID),
			zap.Error(err))
	}
}
