package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danielpatrickdp/boardgate/internal/directory"
)

// #region gallery-handlers
func (s *Server) handleGalleryState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.manager.State())
}

// handleRefresh marks the gallery dirty and rebuilds synchronously,
// bypassing the failure backoff. Used after bulk enrollment changes.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ForceRefresh(r.Context()); err != nil {
		writeError(w, 502, err.Error())
		return
	}
	writeJSON(w, 200, s.manager.State())
}
// #endregion gallery-handlers

// #region stats-handlers
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]interface{}{
		"totals":   s.coord.Totals(),
		"sessions": s.coord.Sessions(),
	})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, 400, "date must be YYYY-MM-DD")
		return
	}
	sum, err := s.sink.DailySummary(r.Context(), day, r.URL.Query().Get("context_id"))
	if err != nil {
		writeError(w, 500, "failed to query audit log")
		return
	}
	writeJSON(w, 200, sum)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, 400, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.sink.Recent(r.Context(), limit, q.Get("context_id"), q.Get("kind"))
	if err != nil {
		writeError(w, 500, "failed to query audit log")
		return
	}
	writeJSON(w, 200, map[string]interface{}{"events": events})
}
// #endregion stats-handlers

// #region identity-handlers
func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListIdentities(r.Context())
	if err != nil {
		writeError(w, 500, "failed to list identities")
		return
	}
	writeJSON(w, 200, map[string]interface{}{"identities": list})
}

func (s *Server) handleAddIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityKey string `json:"identity_key"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if req.IdentityKey == "" {
		writeError(w, 400, "identity_key required")
		return
	}
	ident, err := s.store.AddIdentity(r.Context(), req.IdentityKey, req.DisplayName)
	if errors.Is(err, directory.ErrExists) {
		writeError(w, 409, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "failed to add identity")
		return
	}
	writeJSON(w, 201, ident)
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ident, err := s.store.GetIdentity(r.Context(), key)
	if errors.Is(err, directory.ErrNotFound) {
		writeError(w, 404, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "failed to get identity")
		return
	}
	photos, err := s.store.Photos(r.Context(), key)
	if err != nil {
		writeError(w, 500, "failed to list photos")
		return
	}
	writeJSON(w, 200, map[string]interface{}{"identity": ident, "photos": photos})
}

func (s *Server) handleRemoveIdentity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := s.store.RemoveIdentity(r.Context(), key)
	if errors.Is(err, directory.ErrNotFound) {
		writeError(w, 404, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "failed to remove identity")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "removed", "identity_key": key})
}
// #endregion identity-handlers

// #region photo-handlers
func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	s.mutatePhoto(w, r, s.store.AddPhoto)
}

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	s.mutatePhoto(w, r, s.store.RemovePhoto)
}

func (s *Server) mutatePhoto(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, identityKey, path string) error) {
	key := chi.URLParam(r, "key")
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if req.Path == "" {
		writeError(w, 400, "path required")
		return
	}
	err := op(r.Context(), key, req.Path)
	if errors.Is(err, directory.ErrNotFound) {
		writeError(w, 404, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "failed to update photos")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ok", "identity_key": key})
}
// #endregion photo-handlers

// #region assignment-handlers
func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListAssignments(r.Context(), r.URL.Query().Get("context_id"))
	if err != nil {
		writeError(w, 500, "failed to list assignments")
		return
	}
	writeJSON(w, 200, map[string]interface{}{"assignments": list})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	s.mutateAssignment(w, r, s.store.Assign, "assigned")
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	s.mutateAssignment(w, r, s.store.Unassign, "unassigned")
}

func (s *Server) mutateAssignment(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, identityKey, contextID string) error, status string) {
	var req struct {
		IdentityKey string `json:"identity_key"`
		ContextID   string `json:"context_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if req.IdentityKey == "" || req.ContextID == "" {
		writeError(w, 400, "identity_key and context_id required")
		return
	}
	err := op(r.Context(), req.IdentityKey, req.ContextID)
	if errors.Is(err, directory.ErrNotFound) {
		writeError(w, 404, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "failed to update assignment")
		return
	}
	writeJSON(w, 200, map[string]string{"status": status})
}
// #endregion assignment-handlers
