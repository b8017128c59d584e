// Package api is the local JSON control API of the player engine.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/events"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	playbackapp "github.com/narwhalmedia/narwhal-player/internal/playback"
	"github.com/narwhalmedia/narwhal-player/internal/trickplay"
)

// ItemSource fetches item metadata from the media server
type ItemSource interface {
	GetItem(ctx context.Context, itemID string) (*media.Item, error)
}

// StreamResolver resolves an item for playback
type StreamResolver interface {
	Resolve(ctx context.Context, req playbackapp.ResolveRequest) (*playback.Resolution, error)
}

// TrickplayIndex looks up scrub thumbnails
type TrickplayIndex interface {
	Resolve(item *media.Item, positionTicks int64) *trickplay.Tile
	PrefetchAll(ctx context.Context, item *media.Item) error
	Forget(itemID string)
}

// EventHistory reads the journal of one download job
type EventHistory interface {
	History(ctx context.Context, aggregateID uuid.UUID, limit int) ([]events.Record, error)
}

// Deps are the components the API drives
type Deps struct {
	Downloads download.Service
	Items     ItemSource
	Resolver  StreamResolver
	Sessions  playback.SessionAPI
	Trickplay TrickplayIndex

	// History is optional
	History EventHistory

	// Target is the profile used when a request names none
	Target     playback.Target
	MaxBitrate int
	Reporter   playbackapp.ReporterConfig

	// Ready is optional and backs /health
	Ready func(ctx context.Context) error
}

// Server serves the control API
type Server struct {
	deps   Deps
	logger *zap.Logger
	router chi.Router
	items  singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session

	// background trickplay prefetches
	wg       sync.WaitGroup
	baseCtx  context.Context
	stopBase context.CancelFunc
}

// NewServer creates the API server and its routes
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if deps.Target == "" {
		deps.Target = playback.TargetLocalIOS
	}
	baseCtx, stop := context.WithCancel(context.Background())
	s := &Server{
		deps:     deps,
		logger:   logger.Named("api"),
		sessions: make(map[string]*session),
		baseCtx:  baseCtx,
		stopBase: stop,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/downloads", func(r chi.Router) {
			r.Post("/", s.handleEnqueue)
			r.Get("/", s.handleListDownloads)
			r.Get("/events", s.handleDownloadEvents)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Delete("/{id}", s.handleRemove)
			r.Get("/{id}/history", s.handleHistory)
		})

		r.Get("/offline", s.handleListOffline)
		r.Delete("/offline/{itemID}", s.handleDeleteOffline)

		r.Post("/playback/resolve", s.handleResolve)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleBeginSession)
			r.Get("/{id}", s.handleSessionState)
			r.Post("/{id}/progress", s.handleProgress)
			r.Post("/{id}/seek", s.handleSeek)
			r.Delete("/{id}", s.handleEndSession)
		})

		r.Get("/trickplay/{itemID}", s.handleTrickplay)
	})
	return r
}

// Shutdown ends every open playback session and waits for background
// prefetches
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range open {
		if err := sess.reporter.End(ctx); err != nil {
			s.logger.Debug("session already ended", zap.String("session", sess.id), zap.Error(err))
		}
	}

	s.stopBase()
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// item fetches an item, sharing one server round trip between concurrent
// callers asking for the same id
func (s *Server) item(ctx context.Context, itemID string) (*media.Item, error) {
	v, err, _ := s.items.Do(itemID, func() (interface{}, error) {
		return s.deps.Items.GetItem(context.WithoutCancel(ctx), itemID)
	})
	if err != nil {
		return nil, err
	}
	item := *v.(*media.Item)
	return &item, nil
}
