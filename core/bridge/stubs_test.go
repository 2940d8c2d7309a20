package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-livebridge/core/events"
	"github.com/koscakluka/ema-livebridge/core/speechtotext"
	"github.com/koscakluka/ema-livebridge/core/sse"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type stubSTT struct {
	openErr error
	// gate, when set, holds Open until it is closed or ctx is done.
	gate chan struct{}

	opened chan *stubConn
}

func newStubSTT() *stubSTT {
	return &stubSTT{opened: make(chan *stubConn, 16)}
}

func (s *stubSTT) Open(ctx context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Connection, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.openErr != nil {
		return nil, s.openErr
	}

	conn := &stubConn{options: speechtotext.NewTranscriptionOptions(opts...)}
	s.opened <- conn
	return conn, nil
}

func (s *stubSTT) awaitConn(t *testing.T) *stubConn {
	t.Helper()
	select {
	case conn := <-s.opened:
		return conn
	case <-time.After(waitFor):
		t.Fatalf("expected upstream connection to be opened")
		return nil
	}
}

type stubConn struct {
	options speechtotext.TranscriptionOptions

	inFlight   atomic.Int32
	overlapped atomic.Bool

	mu         sync.Mutex
	writes     [][]byte
	closed     bool
	closeCalls int
	closedOnce sync.Once
	sendErr    error
	hold       chan struct{}
}

func (c *stubConn) SendAudio(audio []byte) error {
	if c.inFlight.Add(1) > 1 {
		c.overlapped.Store(true)
	}
	defer c.inFlight.Add(-1)
	time.Sleep(50 * time.Microsecond)

	c.mu.Lock()
	hold := c.hold
	c.mu.Unlock()
	if hold != nil {
		<-hold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return speechtotext.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.writes = append(c.writes, append([]byte(nil), audio...))
	return nil
}

func (c *stubConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.closed = true
	return nil
}

// drop simulates the recognizer ending the connection.
func (c *stubConn) drop(err error) {
	c.closedOnce.Do(func() { c.options.ClosedCallback(err) })
}

// failSends makes every later write fail with err.
func (c *stubConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// holdSends parks later writes until the returned func is called, like a
// socket whose peer stopped reading.
func (c *stubConn) holdSends() (release func()) {
	hold := make(chan struct{})
	c.mu.Lock()
	c.hold = hold
	c.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (c *stubConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *stubConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type recordingSink struct {
	mu       sync.Mutex
	frames   []sse.Frame
	comments int
	failing  bool
	closed   bool
}

func (s *recordingSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return errors.New("peer went away")
	}
	if bytes.HasPrefix(frame, []byte(":")) {
		s.comments++
		return nil
	}
	decoded, err := sse.NewDecoder(bytes.NewReader(frame)).Next()
	if err != nil {
		return err
	}
	s.frames = append(s.frames, decoded)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = true
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.frames))
	for _, frame := range s.frames {
		kinds = append(kinds, frame.Event)
	}
	return kinds
}

func (s *recordingSink) snapshot() []sse.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sse.Frame(nil), s.frames...)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) commentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments
}

func (s *recordingSink) awaitKinds(t *testing.T, expected ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Join(s.kinds(), ",") == strings.Join(expected, ",")
	}, waitFor, 5*time.Millisecond, "expected frames %v, got %v", expected, s.kinds())
}

// lastData decodes the data of the last frame of kind into target.
func (s *recordingSink) lastData(t *testing.T, kind string, target any) {
	t.Helper()
	frames := s.snapshot()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == kind {
			require.NoError(t, json.Unmarshal([]byte(frames[i].Data), target))
			return
		}
	}
	t.Fatalf("expected a %s frame, got %v", kind, s.kinds())
}

type transitionLog struct {
	mu          sync.Mutex
	transitions map[string][]State
}

func newTransitionLog() *transitionLog {
	return &transitionLog{transitions: make(map[string][]State)}
}

func (l *transitionLog) record(sessionID string, from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.transitions[sessionID]) == 0 {
		l.transitions[sessionID] = append(l.transitions[sessionID], from)
	}
	l.transitions[sessionID] = append(l.transitions[sessionID], to)
}

func (l *transitionLog) states(sessionID string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.transitions[sessionID]...)
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
}

func (o *recordingObserver) ObserveEvent(_ string, event events.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, string(event.Kind()))
}

func (o *recordingObserver) observed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.kinds...)
}

func newTestRegistry(t *testing.T, stt SpeechToText, opts ...Option) *Registry {
	t.Helper()
	registry := NewRegistry(stt, append([]Option{WithHeartbeatInterval(0)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})
	return registry
}

func awaitReady(t *testing.T, stt *stubSTT, sink *recordingSink) *stubConn {
	t.Helper()
	conn := stt.awaitConn(t)
	sink.awaitKinds(t, "session_init", "session_ready")
	return conn
}
