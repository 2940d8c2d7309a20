package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/koscakluka/ema-livebridge/core/bridge"
)

// handleStream opens a session and keeps the response open as its push
// stream until the session closes or the listener goes away.
func (h *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	// Headers are only sent with the first frame, so they can still be
	// replaced when the session is rejected.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sink := newStreamSink(w, h.streamWriteTimeout)
	session, err := h.registry.Create(r.Context(), sink)
	if err != nil {
		w.Header().Del("Cache-Control")
		w.Header().Del("Connection")
		w.Header().Del("X-Accel-Buffering")

		switch {
		case errors.Is(err, bridge.ErrCapacityExceeded):
			writeError(w, http.StatusServiceUnavailable, "capacity_exceeded", "too many live sessions, try again later")
		case errors.Is(err, bridge.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
		default:
			h.logger.Error("Failed to create session", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal", "failed to create session")
		}
		return
	}

	// w now belongs to the session's relay until the session is done.
	select {
	case <-session.Done():
	case <-r.Context().Done():
		if err := session.Close(context.Background(), bridge.ReasonPeerDisconnected); err != nil {
			h.logger.Warn("Failed to close session after disconnect",
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// streamSink writes encoded frames to a streaming response.
type streamSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newStreamSink(w http.ResponseWriter, writeTimeout time.Duration) *streamSink {
	return &streamSink{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

func (s *streamSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}

	if s.writeTimeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// Close stops further writes. The response itself ends when the handler
// returns.
func (s *streamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
