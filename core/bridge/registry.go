package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-livebridge/core/audio"
)

const (
	minSweepInterval = 10 * time.Millisecond
	maxSweepInterval = 5 * time.Second

	idAttempts = 3
)

// Registry is the process-wide table of live sessions. A session is
// listed from Create until its teardown finishes; the CLOSED transition
// and the removal happen under the same lock, so a listed session is never
// closed.
type Registry struct {
	stt SpeechToText

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	maxSessions       int
	idleTimeout       time.Duration
	sweepInterval     time.Duration
	relayBuffer       int
	heartbeatInterval time.Duration
	closeTimeout      time.Duration
	encodingInfo      audio.EncodingInfo

	logger        *slog.Logger
	metrics       MetricsRecorder
	observer      Observer
	onStateChange func(sessionID string, from, to State)
	newID         func() string
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID          string
	State       State
	CreatedAt   time.Time
	LastAudioAt time.Time
}

func NewRegistry(stt SpeechToText, opts ...Option) *Registry {
	r := defaultRegistry(stt)
	for _, opt := range opts {
		opt(r)
	}
	if r.sweepInterval == 0 {
		r.sweepInterval = min(max(r.idleTimeout/4, minSweepInterval), maxSweepInterval)
	}
	return r
}

// Create registers a new session writing to sink and starts opening its
// upstream connection in the background. The session's first frame is
// session_init; ctx only scopes tracing, cancelling it does not close the
// session.
func (r *Registry) Create(ctx context.Context, sink Sink) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShuttingDown
	}
	if len(r.sessions) >= r.maxSessions {
		r.metrics.CapacityRejected()
		r.logger.Warn("Rejected session, capacity reached", slog.Int("max_sessions", r.maxSessions))
		return nil, ErrCapacityExceeded
	}

	id, err := r.allocateID()
	if err != nil {
		return nil, err
	}

	session := newSession(r, id, sink)
	r.sessions[id] = session
	session.start(ctx)

	r.metrics.SessionOpened()
	session.logger.Info("Session created")
	return session, nil
}

func (r *Registry) allocateID() (string, error) {
	for range idAttempts {
		id := r.newID()
		if _, taken := r.sessions[id]; id != "" && !taken {
			return id, nil
		}
	}
	return "", errors.New("failed to allocate a unique session id")
}

// Get returns the live session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Feed forwards audio to the session with id. It fails with
// ErrSessionNotFound for unknown or closed sessions and with
// ErrUpstreamNotOpen while the session cannot accept audio.
func (r *Registry) Feed(ctx context.Context, id string, audio []byte) error {
	session, err := r.Get(id)
	if err == nil {
		err = session.Feed(ctx, audio)
	}

	switch {
	case err == nil:
		r.metrics.AudioFed(len(audio))
	case errors.Is(err, ErrSessionNotFound):
		r.metrics.FeedRejected("not_found")
	case errors.Is(err, ErrUpstreamNotOpen):
		r.metrics.FeedRejected("not_open")
	default:
		r.metrics.FeedRejected("other")
	}
	return err
}

// Remove closes the session with id on request and waits for its teardown.
// Removing an unknown or already removed session is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	session, err := r.Get(id)
	if err != nil {
		return nil
	}
	return session.Close(ctx, ReasonRequested)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions lists the live sessions ordered by creation time.
func (r *Registry) Sessions() []SessionInfo {
	sessions := r.snapshot()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, SessionInfo{
			ID:          session.id,
			State:       session.State(),
			CreatedAt:   session.createdAt,
			LastAudioAt: session.LastAudioAt(),
		})
	}

	slices.SortFunc(infos, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Run evicts idle sessions until ctx is done, then shuts the registry
// down.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*r.closeTimeout)
			defer cancel()
			return r.Shutdown(shutdownCtx)
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	for _, session := range r.snapshot() {
		if now.Sub(session.idleSince()) < r.idleTimeout || session.State().isTerminating() {
			continue
		}
		session.logger.Info("Closing idle session", slog.Time("idle_since", session.idleSince()))
		go session.shutdown(ReasonIdleTimeout, nil)
	}
}

// Shutdown stops accepting sessions and closes every live one with reason
// shutdown.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	sessions := r.snapshot()
	if len(sessions) > 0 {
		r.logger.Info("Closing live sessions", slog.Int("count", len(sessions)))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(sessions))
	for i, session := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.Close(ctx, ReasonShutdown); err != nil {
				errs[i] = fmt.Errorf("session %s: %w", session.id, err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Values(r.sessions))
}

// release removes s and marks it closed in one step.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[s.id]; ok && current == s {
		delete(r.sessions, s.id)
	}

	s.mu.Lock()
	s.setStateLocked(StateClosed)
	s.mu.Unlock()
}
