package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-livebridge/core/bridge"
	"github.com/koscakluka/ema-livebridge/core/speechtotext"
	"github.com/koscakluka/ema-livebridge/core/sse"
	"github.com/koscakluka/ema-livebridge/internal/config"
	"github.com/koscakluka/ema-livebridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
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

	mu         sync.Mutex
	writes     [][]byte
	closeCalls int
}

func (c *stubConn) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), audio...))
	return nil
}

func (c *stubConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return nil
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

type testServer struct {
	url      string
	registry *bridge.Registry
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T, stt bridge.SpeechToText, configure func(*config.Config), opts ...bridge.Option) *testServer {
	t.Helper()

	cfg := config.Default()
	if configure != nil {
		configure(&cfg)
	}
	encoding, err := cfg.Speech.EncodingInfo()
	require.NoError(t, err)

	promRegistry := prometheus.NewRegistry()
	m := metrics.NewMetrics(promRegistry)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := bridge.NewRegistry(stt, append([]bridge.Option{
		bridge.WithHeartbeatInterval(0),
		bridge.WithEncodingInfo(encoding),
		bridge.WithMetrics(m),
		bridge.WithLogger(logger),
	}, opts...)...)

	h, err := NewHTTPServer(&cfg, logger, registry, m, promRegistry)
	require.NoError(t, err)

	srv := httptest.NewServer(h.Handler())
	// Cleanups run last-in first-out: sessions are closed first so the
	// streaming handlers return before the server waits for them.
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})

	return &testServer{url: srv.URL, registry: registry, metrics: m}
}

type streamReader struct {
	resp   *http.Response
	frames chan sse.Frame
	cancel context.CancelFunc
}

func (s *testServer) openStream(t *testing.T) *streamReader {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/api/transcribe/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := &streamReader{resp: resp, frames: make(chan sse.Frame, 64), cancel: cancel}
	go func() {
		defer close(stream.frames)
		decoder := sse.NewDecoder(resp.Body)
		for {
			frame, err := decoder.Next()
			if err != nil {
				return
			}
			stream.frames <- frame
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})
	return stream
}

func (s *streamReader) next(t *testing.T) sse.Frame {
	t.Helper()
	select {
	case frame, ok := <-s.frames:
		require.True(t, ok, "expected another frame, stream ended")
		return frame
	case <-time.After(waitFor):
		t.Fatalf("expected a frame within %s", waitFor)
		return sse.Frame{}
	}
}

func (s *streamReader) nextData(t *testing.T, kind string, target any) {
	t.Helper()
	frame := s.next(t)
	require.Equal(t, kind, frame.Event)
	require.NoError(t, json.Unmarshal([]byte(frame.Data), target))
}

func (s *streamReader) expectEnd(t *testing.T) {
	t.Helper()
	select {
	case frame, ok := <-s.frames:
		require.False(t, ok, "expected stream to end, got %s frame", frame.Event)
	case <-time.After(waitFor):
		t.Fatalf("expected stream to end within %s", waitFor)
	}
}
