package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielpatrickdp/boardgate/internal/audit"
	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/session"
)

// #region server-struct
// Server exposes the daemon surface: the websocket recognition channel
// and the REST operations for enrollment, assignments, gallery state and
// audit queries.
type Server struct {
	store   *directory.Store
	sink    *audit.Sink
	manager *gallery.Manager
	coord   *session.Coordinator
}

// New wires the HTTP surface over the live collaborators.
func New(store *directory.Store, sink *audit.Sink, manager *gallery.Manager, coord *session.Coordinator) *Server {
	return &Server{
		store:   store,
		sink:    sink,
		manager: manager,
		coord:   coord,
	}
}
// #endregion server-struct

// #region routes
// Routes builds the router. The caller owns the http.Server around it.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "service": "boardgate"})
	})
	r.Get("/ws", s.handleWS)

	r.Get("/api/gallery", s.handleGalleryState)
	r.Post("/api/refresh", s.handleRefresh)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/stats/daily", s.handleDailyStats)
	r.Get("/api/events/recent", s.handleRecentEvents)

	r.Get("/api/identities", s.handleListIdentities)
	r.Post("/api/identities", s.handleAddIdentity)
	r.Get("/api/identities/{key}", s.handleGetIdentity)
	r.Delete("/api/identities/{key}", s.handleRemoveIdentity)
	r.Post("/api/identities/{key}/photos", s.handleAddPhoto)
	r.Delete("/api/identities/{key}/photos", s.handleRemovePhoto)

	r.Get("/api/assignments", s.handleListAssignments)
	r.Post("/api/assignments", s.handleAssign)
	r.Delete("/api/assignments", s.handleUnassign)
	return r
}
// #endregion routes

// #region json-helpers
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
// #endregion json-helpers
