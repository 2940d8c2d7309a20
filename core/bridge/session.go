package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-livebridge/core/events"
	"github.com/koscakluka/ema-livebridge/core/speechtotext"
	"github.com/koscakluka/ema-livebridge/core/sse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session binds one push stream sink to one upstream recognition
// connection.
//
// The state and the upstream handle are guarded by mu. Upstream writes are
// serialized by writeSlot and run outside mu. Events headed for
// the sink go through outbound and are written by the relay goroutine,
// which is the only writer of the sink until teardown takes over.
type Session struct {
	id        string
	registry  *Registry
	sink      Sink
	createdAt time.Time
	logger    *slog.Logger
	span      trace.Span

	mu          sync.Mutex
	state       State
	upstream    speechtotext.Connection
	closeReason CloseReason

	lastAudioAt atomic.Int64
	sinkBroken  atomic.Bool

	writeSlot chan struct{}
	outbound  chan events.Event
	opened    chan struct{}
	closing   chan struct{}
	relayDone chan struct{}
	done      chan struct{}

	cancelConnect context.CancelFunc
}

func newSession(r *Registry, id string, sink Sink) *Session {
	return &Session{
		id:        id,
		registry:  r,
		sink:      sink,
		createdAt: time.Now(),
		logger:    r.logger.With(slog.String("session_id", id)),
		state:     StateInitializing,
		writeSlot: make(chan struct{}, 1),
		outbound:  make(chan events.Event, r.relayBuffer),
		opened:    make(chan struct{}),
		closing:   make(chan struct{}),
		relayDone: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CloseReason returns what ended the session, or "" while it is open.
func (s *Session) CloseReason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// LastAudioAt returns when audio was last accepted, or the zero time.
func (s *Session) LastAudioAt() time.Time {
	if nanos := s.lastAudioAt.Load(); nanos != 0 {
		return time.Unix(0, nanos)
	}
	return time.Time{}
}

// Done is closed once the session is torn down and removed from its
// registry.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.registry.onStateChange(s.id, from, to)
}

// start must be called once, before the session is visible to other
// goroutines.
func (s *Session) start(ctx context.Context) {
	_, s.span = tracer.Start(context.WithoutCancel(ctx), "session",
		trace.WithAttributes(attribute.String("session.id", s.id)))

	s.outbound <- events.NewSessionInit(s.id)

	connectCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelConnect = cancel

	s.mu.Lock()
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	go s.relay()
	go s.connect(connectCtx)
}

func (s *Session) connect(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "open upstream", trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	started := time.Now()
	conn, err := s.registry.stt.Open(ctx,
		speechtotext.WithEncodingInfo(s.registry.encodingInfo),
		speechtotext.WithTranscriptCallback(s.onTranscript),
		speechtotext.WithUtteranceEndCallback(s.onUtteranceEnd),
		speechtotext.WithErrorCallback(s.onRecognizerError),
		speechtotext.WithClosedCallback(s.onUpstreamClosed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("Failed to open upstream connection", slog.String("error", err.Error()))
		s.shutdown(ReasonUpstreamConnectFailed, fmt.Errorf("%w: %w", ErrUpstreamConnect, err))
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to close abandoned upstream connection", slog.String("error", err.Error()))
		}
		return
	}
	s.upstream = conn
	s.setStateLocked(StateReady)
	s.mu.Unlock()

	latency := time.Since(started)
	s.registry.metrics.UpstreamConnected(latency)
	s.logger.Debug("Upstream connection open", slog.Duration("latency", latency))

	s.enqueue(events.NewSessionReady(s.id))
	close(s.opened)
}

// awaitOpened holds recognizer callbacks back until session_ready is
// queued, so relayed events always follow it. It reports false once the
// session is closing.
func (s *Session) awaitOpened() bool {
	select {
	case <-s.opened:
		return true
	case <-s.closing:
		return false
	}
}

func (s *Session) onTranscript(transcript speechtotext.Transcript) {
	if !s.awaitOpened() {
		return
	}
	s.enqueue(events.NewTranscript(events.TranscriptEntry{
		Text:        transcript.Text,
		IsFinal:     transcript.IsFinal,
		SpeechFinal: transcript.SpeechFinal,
		Confidence:  transcript.Confidence,
		Start:       transcript.Start,
		Duration:    transcript.Duration,
	}))
}

func (s *Session) onUtteranceEnd(lastWordEnd float64) {
	if !s.awaitOpened() {
		return
	}
	s.enqueue(events.NewUtteranceEnd(lastWordEnd))
}

func (s *Session) onRecognizerError(err error) {
	s.logger.Warn("Recognizer reported an error", slog.String("error", err.Error()))
	if !s.awaitOpened() {
		return
	}
	s.enqueue(events.NewError(recognizerMessage(err)))
}

func (s *Session) onUpstreamClosed(err error) {
	s.shutdown(ReasonUpstreamClosed, err)
}

// enqueue hands an event to the relay. It blocks while the relay buffer
// is full, which holds back the upstream reader instead of growing memory.
func (s *Session) enqueue(event events.Event) {
	select {
	case s.outbound <- event:
	case <-s.closing:
	}
}

func (s *Session) relay() {
	defer close(s.relayDone)

	var heartbeat <-chan time.Time
	if interval := s.registry.heartbeatInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case event := <-s.outbound:
			if !s.write(event) {
				go s.shutdown(ReasonPeerDisconnected, nil)
				return
			}
		case <-heartbeat:
			if err := s.sink.WriteFrame(sse.Comment("heartbeat")); err != nil {
				s.markSinkBroken(err)
				go s.shutdown(ReasonPeerDisconnected, nil)
				return
			}
		case <-s.closing:
			for {
				select {
				case event := <-s.outbound:
					if !s.write(event) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// write sends one event to the sink. It reports false once the sink
// failed.
func (s *Session) write(event events.Event) bool {
	if s.sinkBroken.Load() {
		return false
	}
	if err := s.sink.WriteFrame(sse.MustEncode(event)); err != nil {
		s.markSinkBroken(err)
		return false
	}
	s.registry.metrics.EventRelayed(string(event.Kind()))
	if s.registry.observer != nil {
		s.registry.observer.ObserveEvent(s.id, event)
	}
	return true
}

func (s *Session) markSinkBroken(err error) {
	if s.sinkBroken.CompareAndSwap(false, true) {
		s.logger.Debug("Push stream write failed", slog.String("error", err.Error()))
	}
}

// Feed forwards one audio fragment upstream. Concurrent calls are
// serialized by the write slot and each fragment is written whole. A
// failed write tears the session down.
func (s *Session) Feed(ctx context.Context, audio []byte) error {
	select {
	case s.writeSlot <- struct{}{}:
	case <-s.done:
		return ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writeSlot }()

	// The write itself runs unlocked so state readers never wait on the
	// network.
	s.mu.Lock()
	state, upstream := s.state, s.upstream
	s.mu.Unlock()

	if state == StateClosed {
		return ErrSessionNotFound
	}
	if !state.acceptsAudio() {
		return fmt.Errorf("%w: session is %s", ErrUpstreamNotOpen, state)
	}
	if err := upstream.SendAudio(audio); err != nil {
		if !errors.Is(err, speechtotext.ErrConnectionClosed) {
			s.logger.Warn("Failed to forward audio upstream", slog.String("error", err.Error()))
			go s.shutdown(ReasonUpstreamClosed, err)
		}
		return fmt.Errorf("%w: %w", ErrUpstreamNotOpen, err)
	}

	s.lastAudioAt.Store(time.Now().UnixNano())
	s.mu.Lock()
	if s.state == StateReady {
		s.setStateLocked(StateStreaming)
	}
	s.mu.Unlock()
	return nil
}

// Close tears the session down and waits until it is removed from the
// registry. Closing a closed session is a no-op.
func (s *Session) Close(ctx context.Context, reason CloseReason) error {
	s.shutdown(reason, nil)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown runs teardown once. Later callers return immediately; use Done
// to wait for the first one to finish.
func (s *Session) shutdown(reason CloseReason, cause error) {
	s.mu.Lock()
	if s.state.isTerminating() {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateClosing)
	s.closeReason = reason
	upstream := s.upstream
	s.upstream = nil
	s.mu.Unlock()

	close(s.closing)
	s.cancelConnect()
	<-s.relayDone

	ctx, cancel := context.WithTimeout(context.Background(), s.registry.closeTimeout)
	defer cancel()
	if upstream != nil {
		if err := upstream.Close(ctx); err != nil {
			s.logger.Warn("Failed to close upstream connection", slog.String("error", err.Error()))
		}
	}

	if cause != nil {
		s.write(events.NewError(listenerMessage(reason, cause)))
	}
	s.write(events.NewClose(s.id, string(reason)))

	if closer, ok := s.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Debug("Failed to close push stream", slog.String("error", err.Error()))
		}
	}

	s.registry.release(s)

	lifetime := time.Since(s.createdAt)
	s.registry.metrics.SessionClosed(string(reason), lifetime)
	s.span.SetAttributes(attribute.String("session.close_reason", string(reason)))
	if cause != nil {
		s.span.RecordError(cause)
		s.span.SetStatus(codes.Error, cause.Error())
	}
	s.span.End()

	attrs := []any{slog.String("reason", string(reason)), slog.Duration("lifetime", lifetime)}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Info("Session closed", attrs...)

	close(s.done)
}

func (s *Session) idleSince() time.Time {
	if last := s.LastAudioAt(); last.After(s.createdAt) {
		return last
	}
	return s.createdAt
}
