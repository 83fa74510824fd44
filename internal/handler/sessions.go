package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/presence-keeper-go/internal/supervisor"
)

// SnapshotProvider is the read-only supervisor surface the handler needs.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) ([]supervisor.SessionInfo, error)
}

type SessionsHandler struct {
	snapshots SnapshotProvider
}

func NewSessionsHandler(snapshots SnapshotProvider) *SessionsHandler {
	return &SessionsHandler{snapshots: snapshots}
}

func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSessions)

	return r
}

// GET /v1/sessions
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to snapshot sessions")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Supervisor unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}
