package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/koscakluka/ema-livebridge/core/events"
)

type sessionResponse struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastAudioAt *time.Time `json:"lastAudioAt,omitempty"`
}

// handleSessions lists the live sessions
func (h *HTTPServer) handleSessions(w http.ResponseWriter, _ *http.Request) {
	infos := h.registry.Sessions()

	sessions := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		session := sessionResponse{
			ID:        info.ID,
			State:     info.State.String(),
			CreatedAt: info.CreatedAt.UTC(),
		}
		if !info.LastAudioAt.IsZero() {
			lastAudioAt := info.LastAudioAt.UTC()
			session.LastAudioAt = &lastAudioAt
		}
		sessions = append(sessions, session)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleCloseSession ends a session on request. Closing an unknown session
// succeeds so callers can retry freely.
func (h *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// The listener may already be gone; the close must not depend on the
	// caller's connection.
	if err := h.registry.Remove(context.WithoutCancel(r.Context()), id); err != nil {
		h.logger.Error("Failed to close session",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal", "failed to close session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSchema describes the payload of every frame kind
func (h *HTTPServer) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, events.Schemas())
}
