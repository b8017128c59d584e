package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

const defaultHistoryLimit = 100

type enqueueRequest struct {
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
}

type enqueueResponse struct {
	ID     uuid.UUID     `json:"id"`
	ItemID string        `json:"item_id"`
	Kind   download.Kind `json:"kind"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if req.ItemID == "" {
		badRequest(w, "item_id is required")
		return
	}
	kind, err := download.ParseKind(req.Kind)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	item, err := s.item(r.Context(), req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.deps.Downloads.Enqueue(r.Context(), *item, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{ID: id, ItemID: item.ID, Kind: kind})
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Downloads.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Downloads.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Downloads.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event history is disabled"})
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit %q", v)
			return
		}
		limit = n
	}

	records, err := s.deps.History.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDownloadEvents streams job snapshots as server-sent events until
// the client goes away
func (s *Server) handleDownloadEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	updates, err := s.deps.Downloads.Subscribe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range updates {
		data, err := json.Marshal(snap)
		if err != nil {
			s.logger.Error("failed to encode job snapshot", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: job\nid: %s\ndata: %s\n\n", snap.ID, data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleListOffline(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Downloads.ListOffline(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDeleteOffline(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Downloads.DeleteOffline(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid job id %q", raw)
		return uuid.Nil, false
	}
	return id, true
}
