// Package speechtotext defines the contract between a live session and a
// streaming speech recognition connection.
package speechtotext

import (
	"context"
	"errors"
)

var (
	// ErrMissingCredentials reports a configuration error. Retrying cannot
	// succeed.
	ErrMissingCredentials = errors.New("speech-to-text credentials not configured")
	// ErrUnauthorized reports that the recognizer rejected the credentials.
	ErrUnauthorized = errors.New("speech-to-text credentials rejected")
	// ErrConnectionClosed is returned by writes after the connection closed.
	ErrConnectionClosed = errors.New("speech-to-text connection closed")
)

// Transcript is one recognition result.
type Transcript struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
	Confidence  float64
	Start       float64
	Duration    float64
}

// Connection is an open streaming recognition connection.
type Connection interface {
	// SendAudio forwards one audio fragment. It must not be called
	// concurrently and does not block longer than the connection's write
	// timeout.
	SendAudio(audio []byte) error
	// Close releases the connection. It is idempotent, may run concurrently
	// with SendAudio and must not wait for callbacks to return. Its writes
	// end by ctx's deadline or the connection's write timeout, whichever
	// comes first.
	Close(ctx context.Context) error
}

// RecognizerError is an error message reported in-band by the recognizer.
type RecognizerError struct {
	Code        string
	Description string
}

func (e *RecognizerError) Error() string {
	if e.Code == "" {
		return "recognizer error: " + e.Description
	}
	return "recognizer error " + e.Code + ": " + e.Description
}
