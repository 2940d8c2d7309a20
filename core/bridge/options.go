package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-livebridge/core/audio"
	"github.com/koscakluka/ema-livebridge/core/events"
	"github.com/koscakluka/ema-livebridge/core/speechtotext"
)

const (
	DefaultMaxSessions       = 64
	DefaultIdleTimeout       = 60 * time.Second
	DefaultRelayBuffer       = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
)

// SpeechToText opens one recognition connection per session. Callbacks
// passed in opts deliver the upstream messages; they must be invoked from
// a goroutine of the connection, never from inside SendAudio.
type SpeechToText interface {
	Open(ctx context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Connection, error)
}

// Sink is the write side of a session's push stream. A session writes to
// its sink from one goroutine at a time. If the sink implements io.Closer
// it is closed when the session is torn down.
type Sink interface {
	WriteFrame(frame []byte) error
}

// Observer receives every event written to a session stream, in stream
// order. It must not block.
type Observer interface {
	ObserveEvent(sessionID string, event events.Event)
}

// MetricsRecorder receives session lifecycle measurements.
type MetricsRecorder interface {
	SessionOpened()
	SessionClosed(reason string, lifetime time.Duration)
	CapacityRejected()
	UpstreamConnected(latency time.Duration)
	AudioFed(bytes int)
	FeedRejected(reason string)
	EventRelayed(kind string)
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()                      {}
func (noopMetrics) SessionClosed(string, time.Duration) {}
func (noopMetrics) CapacityRejected()                   {}
func (noopMetrics) UpstreamConnected(time.Duration)     {}
func (noopMetrics) AudioFed(int)                        {}
func (noopMetrics) FeedRejected(string)                 {}
func (noopMetrics) EventRelayed(string)                 {}

type Option func(*Registry)

// WithMaxSessions bounds the number of concurrently live sessions.
func WithMaxSessions(maxSessions int) Option {
	return func(r *Registry) {
		if maxSessions > 0 {
			r.maxSessions = maxSessions
		}
	}
}

// WithIdleTimeout closes sessions that received no audio for timeout.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.idleTimeout = timeout
		}
	}
}

// WithSweepInterval sets how often idle sessions are looked for. It
// defaults to a quarter of the idle timeout, capped at five seconds.
func WithSweepInterval(interval time.Duration) Option {
	return func(r *Registry) {
		if interval > 0 {
			r.sweepInterval = interval
		}
	}
}

// WithRelayBuffer sets how many recognizer events may wait for the push
// stream before the recognizer reader is held back.
func WithRelayBuffer(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.relayBuffer = size
		}
	}
}

// WithHeartbeatInterval sets the comment frame interval. Zero disables
// heartbeats.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(r *Registry) {
		if interval >= 0 {
			r.heartbeatInterval = interval
		}
	}
}

// WithCloseTimeout bounds how long teardown waits for the upstream
// connection to close.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.closeTimeout = timeout
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(r *Registry) { r.encodingInfo = encodingInfo }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(metrics MetricsRecorder) Option {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Registry) { r.observer = observer }
}

// WithStateChangeCallback registers a callback invoked on every session
// state transition. It runs while the session is locked and must return
// quickly.
func WithStateChangeCallback(callback func(sessionID string, from, to State)) Option {
	return func(r *Registry) {
		if callback != nil {
			r.onStateChange = callback
		}
	}
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
	}
}

func defaultRegistry(stt SpeechToText) *Registry {
	return &Registry{
		stt:               stt,
		sessions:          make(map[string]*Session),
		maxSessions:       DefaultMaxSessions,
		idleTimeout:       DefaultIdleTimeout,
		relayBuffer:       DefaultRelayBuffer,
		heartbeatInterval: DefaultHeartbeatInterval,
		closeTimeout:      DefaultCloseTimeout,
		encodingInfo:      audio.GetDefaultEncodingInfo(),
		logger:            logger,
		metrics:           noopMetrics{},
		onStateChange:     func(string, State, State) {},
		newID:             uuid.NewString,
	}
}
