package bridge

import (
	"errors"

	"github.com/koscakluka/ema-livebridge/core/speechtotext"
)

var (
	// ErrSessionNotFound is returned for ids that were never created or whose
	// session is closed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUpstreamNotOpen is returned when a session exists but cannot accept
	// audio: it is still connecting or already closing.
	ErrUpstreamNotOpen = errors.New("upstream connection not open")
	// ErrUpstreamConnect wraps the reason a session failed to open its
	// recognition connection.
	ErrUpstreamConnect = errors.New("failed to connect upstream")
	// ErrCapacityExceeded is returned by Create when the session limit is
	// reached.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrShuttingDown is returned by Create once the registry stopped.
	ErrShuttingDown = errors.New("registry is shutting down")
)

// listenerMessage describes a failure without internal detail.
func listenerMessage(reason CloseReason, cause error) string {
	switch {
	case errors.Is(cause, speechtotext.ErrMissingCredentials):
		return "speech recognition is not configured"
	case errors.Is(cause, speechtotext.ErrUnauthorized):
		return "speech recognition rejected the configured credentials"
	case reason == ReasonUpstreamConnectFailed:
		return "failed to connect to speech recognition"
	default:
		return "speech recognition connection lost"
	}
}

// recognizerMessage describes an in-band recognizer error.
func recognizerMessage(err error) string {
	var recognizerErr *speechtotext.RecognizerError
	if errors.As(err, &recognizerErr) && recognizerErr.Description != "" {
		return "speech recognition error: " + recognizerErr.Description
	}
	return "speech recognition error"
}
