package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	playbackapp "github.com/narwhalmedia/narwhal-player/internal/playback"
	"github.com/narwhalmedia/narwhal-player/internal/trickplay"
)

const prefetchTimeout = 2 * time.Minute

type resolveRequest struct {
	ItemID              string `json:"item_id"`
	Target              string `json:"target,omitempty"`
	MediaSourceID       string `json:"media_source_id,omitempty"`
	AudioStreamIndex    *int   `json:"audio_stream_index,omitempty"`
	SubtitleStreamIndex *int   `json:"subtitle_stream_index,omitempty"`
	MaxBitrate          int    `json:"max_bitrate,omitempty"`
	StartPositionTicks  int64  `json:"start_position_ticks,omitempty"`
}

// session is one open playback session driven through the API
type session struct {
	id       string
	item     *media.Item
	reporter *playbackapp.Reporter
}

type sessionResponse struct {
	ID         string                `json:"id"`
	Resolution *playback.Resolution  `json:"resolution,omitempty"`
	State      playback.SessionState `json:"state"`
}

type progressRequest struct {
	PositionTicks int64 `json:"position_ticks"`
	Paused        bool  `json:"paused"`
}

type seekRequest struct {
	// Phase is "begin" or "end"
	Phase         string `json:"phase"`
	PositionTicks int64  `json:"position_ticks"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	in, ok := s.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, in.res)
}

// resolve decodes a resolve request and runs it. Failures are written to w.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*resolved, bool) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return nil, false
	}
	if req.ItemID == "" {
		badRequest(w, "item_id is required")
		return nil, false
	}

	target := s.deps.Target
	if req.Target != "" {
		t, err := playback.ParseTarget(req.Target)
		if err != nil {
			badRequest(w, "%v", err)
			return nil, false
		}
		target = t
	}
	profile, err := playback.ProfileFor(target)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	item, err := s.item(r.Context(), req.ItemID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	maxBitrate := req.MaxBitrate
	if maxBitrate <= 0 {
		maxBitrate = s.deps.MaxBitrate
	}

	res, err := s.deps.Resolver.Resolve(r.Context(), playbackapp.ResolveRequest{
		Item:                *item,
		Profile:             profile,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
		MaxBitrate:          maxBitrate,
		StartPositionTicks:  req.StartPositionTicks,
		MediaSourceID:       req.MediaSourceID,
	})
	if err != nil {
		s.logger.Warn("resolve failed",
			zap.String("item_id", req.ItemID),
			zap.Bool("retryable", playback.IsRetryable(err)),
			zap.Error(err))
		writeError(w, err)
		return nil, false
	}
	return &resolved{res: res, item: item, startTicks: req.StartPositionTicks}, true
}

type resolved struct {
	res        *playback.Resolution
	item       *media.Item
	startTicks int64
}

func (s *Server) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	in, ok := s.resolve(w, r)
	if !ok {
		return
	}
	res := in.res

	reporter := playbackapp.NewReporter(s.deps.Sessions, s.deps.Reporter, s.logger)
	if err := reporter.Begin(r.Context(), res, in.startTicks); err != nil {
		writeError(w, err)
		return
	}

	sess := &session{id: uuid.NewString(), item: in.item, reporter: reporter}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.deps.Trickplay != nil && len(in.item.Trickplay) > 0 {
		s.prefetch(in.item)
	}

	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.id, Resolution: res, State: reporter.State()})
}

func (s *Server) prefetch(item *media.Item) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, prefetchTimeout)
		defer cancel()
		// failures are logged by the index
		_ = s.deps.Trickplay.PrefetchAll(ctx, item)
	}()
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.reporter.State()})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req progressRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if err := sess.reporter.ReportProgress(r.Context(), req.PositionTicks, req.Paused); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.reporter.State()})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req seekRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}

	switch req.Phase {
	case "begin":
		sess.reporter.BeginSeek()
	case "end":
		if err := sess.reporter.EndSeek(r.Context(), req.PositionTicks); err != nil {
			writeError(w, err)
			return
		}
	default:
		badRequest(w, "unknown seek phase %q", req.Phase)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.reporter.State()})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, playback.ErrSessionNotFound)
		return
	}

	if err := sess.reporter.End(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Trickplay != nil {
		s.deps.Trickplay.Forget(sess.item.ID)
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.id, State: sess.reporter.State()})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, playback.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

// tileResponse carries a null tile when the lookup was throttled or the position is out of range
type tileResponse struct {
	ItemID        string          `json:"item_id"`
	PositionTicks int64           `json:"position_ticks"`
	Tile          *trickplay.Tile `json:"tile"`
}

func (s *Server) handleTrickplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trickplay == nil {
		writeError(w, media.ErrNoTrickplay)
		return
	}

	var position int64
	if v := r.URL.Query().Get("position_ticks"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			badRequest(w, "invalid position_ticks %q", v)
			return
		}
		position = n
	}

	item, err := s.item(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(item.Trickplay) == 0 {
		writeError(w, media.ErrNoTrickplay)
		return
	}

	writeJSON(w, http.StatusOK, tileResponse{
		ItemID:        item.ID,
		PositionTicks: position,
		Tile:          s.deps.Trickplay.Resolve(item, position),
	})
}
