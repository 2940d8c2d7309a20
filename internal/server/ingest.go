package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/koscakluka/ema-livebridge/core/bridge"
)

// bodyOverhead leaves room for the JSON envelope around the audio.
const bodyOverhead = 4096

var errMalformedInput = errors.New("malformed input")

type audioRequest struct {
	SessionID string `json:"sessionId"`
	Audio     string `json:"audio"`
}

type audioResponse struct {
	Status string `json:"status"`
	Bytes  int    `json:"bytes"`
}

// handleAudio accepts one base64 audio fragment for a live session.
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	sessionID, fragment, err := h.decodeAudioRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_input", err.Error())
		return
	}

	err = h.registry.Feed(r.Context(), sessionID, fragment)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, audioResponse{Status: "accepted", Bytes: len(fragment)})
	case errors.Is(err, bridge.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "no live session with this id")
	case errors.Is(err, bridge.ErrUpstreamNotOpen):
		writeError(w, http.StatusConflict, "upstream_not_open", "session is not ready to accept audio")
	default:
		h.logger.Error("Failed to forward audio",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal", "failed to forward audio")
	}
}

func (h *HTTPServer) decodeAudioRequest(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := int64(base64.StdEncoding.EncodedLen(h.maxFragmentBytes) + bodyOverhead)
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var request audioRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", nil, fmt.Errorf("%w: request body exceeds %d bytes", errMalformedInput, maxBytesErr.Limit)
		}
		return "", nil, fmt.Errorf("%w: invalid JSON body", errMalformedInput)
	}

	if request.SessionID == "" {
		return "", nil, fmt.Errorf("%w: sessionId is required", errMalformedInput)
	}

	fragment, err := base64.StdEncoding.DecodeString(request.Audio)
	if err != nil {
		return "", nil, fmt.Errorf("%w: audio is not valid base64", errMalformedInput)
	}

	if len(fragment) > h.maxFragmentBytes {
		return "", nil, fmt.Errorf("%w: audio fragment exceeds %d bytes", errMalformedInput, h.maxFragmentBytes)
	}

	if err := h.encoding.ValidateFragment(fragment); err != nil {
		return "", nil, fmt.Errorf("%w: %w", errMalformedInput, err)
	}

	return request.SessionID, fragment, nil
}
