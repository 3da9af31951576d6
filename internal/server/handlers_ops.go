package server

import (
	"net/http"

	"github.com/3leaps/gonimbus/internal/core"
	"github.com/3leaps/gonimbus/internal/server/handlers"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStartInitialIndex(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")
	maxRequests := queryInt(r, "max_requests", 0)
	batchSize := queryInt(r, "batch_size", 0)

	result, err := s.core.StartInitialIndex(r.Context(), profileID, bucket, maxRequests, batchSize)
	if err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleCancelIndexing(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")

	if err := s.core.CancelIndexing(r.Context(), profileID, bucket); err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleGetBucketIndexStats(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")

	prefix := r.URL.Query().Get("prefix")
	if prefix != "" {
		stats, err := s.core.GetPrefixIndexStats(r.Context(), profileID, bucket, prefix)
		if err != nil {
			handlers.RespondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := s.core.GetBucketIndexStats(r.Context(), profileID, bucket)
	if err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearBucketIndex(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")

	if err := s.core.ClearBucketIndex(r.Context(), profileID, bucket); err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAllBucketIndexes(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	stats, err := s.core.GetAllBucketIndexes(r.Context(), profileID)
	if err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")
	q := r.URL.Query()

	opts := core.ListObjectsOptions{
		Prefix:            q.Get("prefix"),
		ContinuationToken: q.Get("continuation_token"),
		MaxKeys:           queryInt(r, "max_keys", 1000),
		UseDelimiter:      q.Get("delimiter") != "",
		SyncIndex:         q.Get("sync") == "true",
	}

	resp, err := s.core.ListObjects(r.Context(), profileID, bucket, opts)
	if err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchObjects(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	bucket := chi.URLParam(r, "bucket")
	q := r.URL.Query()

	objects, err := s.core.SearchObjectsInIndexWithSizeRange(r.Context(), profileID, bucket, q.Get("q"), q.Get("prefix"), q.Get("min_size"), q.Get("max_size"), queryInt(r, "limit", 100))
	if err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

func (s *Server) handleGetCacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.GetCacheStatus())
}

func (s *Server) handleWarmupCache(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	if err := s.core.WarmupProfileCache(r.Context(), profileID); err != nil {
		handlers.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "warmed"})
}

func (s *Server) handleEvictCache(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	s.core.CleanupProfileCache(r.Context(), profileID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "evicted"})
}

func (s *Server) handleClearAllCaches(w http.ResponseWriter, r *http.Request) {
	s.core.ClearAllCaches(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
