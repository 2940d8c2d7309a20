package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-livebridge/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const typeErrorResponse = "Error"

// Open dials a new live transcription stream. Messages are delivered to the
// callbacks in opts from a single goroutine, in arrival order, until the
// stream is closed.
func (c *TranscriptionClient) Open(ctx context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Connection, error) {
	ctx, span := tracer.Start(ctx, "open deepgram stream")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)

	if c.apiKey == "" {
		span.SetStatus(codes.Error, speechtotext.ErrMissingCredentials.Error())
		return nil, speechtotext.ErrMissingCredentials
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	listenURL, err := c.listenURL(encoding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("deepgram.model", c.model),
		attribute.String("deepgram.encoding", encoding.Format.Name()),
		attribute.Int("deepgram.sample_rate", encoding.SampleRate),
	)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.dialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + c.apiKey}})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%w: handshake status %d", speechtotext.ErrUnauthorized, resp.StatusCode)
		} else {
			err = fmt.Errorf("failed to open socket connection to deepgram: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s := &stream{
		conn:              conn,
		options:           options,
		writeTimeout:      c.writeTimeout,
		keepAliveInterval: c.keepAliveInterval,
		lastWrite:         time.Now(),
		stop:              make(chan struct{}),
	}
	go s.readAndProcessMessages()
	go s.keepAlive()

	return s, nil
}

func (c *TranscriptionClient) listenURL(encoding *encodingInfo) (string, error) {
	listenURL, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram endpoint: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	if c.utteranceEnd > 0 {
		// utterance_end_ms only works with interim results
		queryParams.Set("utterance_end_ms", strconv.FormatInt(c.utteranceEnd.Milliseconds(), 10))
		queryParams.Set("interim_results", "true")
		queryParams.Set("vad_events", "true")
	} else if c.interimResults {
		queryParams.Set("interim_results", "true")
	}
	if c.endpointing > 0 {
		queryParams.Set("endpointing", strconv.FormatInt(c.endpointing.Milliseconds(), 10))
	}

	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String(), nil
}

type stream struct {
	conn    *websocket.Conn
	options speechtotext.TranscriptionOptions

	writeTimeout      time.Duration
	keepAliveInterval time.Duration

	// connMu serializes writes; gorilla connections support one concurrent
	// writer.
	connMu    sync.Mutex
	lastWrite time.Time

	closed      atomic.Bool
	releaseOnce sync.Once
	stop        chan struct{}
}

func (s *stream) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed.Load() {
		return speechtotext.ErrConnectionClosed
	}

	s.lastWrite = time.Now()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Close asks Deepgram to finish the stream and closes the socket without
// waiting for the remaining results. Once the remote side dropped the
// connection there is nothing left to send.
func (s *stream) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	deadline := time.Now().Add(s.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var errs []error
	s.connMu.Lock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(controlMessage{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		errs = append(errs, fmt.Errorf("failed to send close stream message: %w", err))
	}
	if err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		errs = append(errs, fmt.Errorf("failed to send close frame: %w", err))
	}
	s.connMu.Unlock()

	s.release()
	return errors.Join(errs...)
}

func (s *stream) release() {
	s.releaseOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		_ = s.conn.Close()
	})
}

type controlMessage struct {
	Type string `json:"type"`
}

func (s *stream) keepAlive() {
	ticker := time.NewTicker(max(s.keepAliveInterval/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if !s.closed.Load() && time.Since(s.lastWrite) >= s.keepAliveInterval {
				s.lastWrite = time.Now()
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				if err := s.conn.WriteJSON(controlMessage{Type: "KeepAlive"}); err != nil {
					logger.Warn("Failed to send deepgram keep alive", slog.String("error", err.Error()))
				}
			}
			s.connMu.Unlock()
		}
	}
}

func (s *stream) readAndProcessMessages() {
	var closeErr error
	defer func() {
		s.release()
		s.options.ClosedCallback(closeErr)
	}()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("Failed to read deepgram websocket message", slog.String("error", err.Error()))
				closeErr = fmt.Errorf("deepgram connection lost: %w", err)
			}
			return
		}
		if msgType == websocket.TextMessage {
			s.processMessage(msg)
		}
	}
}

func (s *stream) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", slog.String("error", err.Error()))
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram results", slog.String("error", err.Error()))
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		alternative := msgResp.Channel.Alternatives[0]
		transcript := strings.TrimSpace(alternative.Transcript)
		if len(transcript) == 0 {
			return
		}
		s.options.TranscriptCallback(speechtotext.Transcript{
			Text:        transcript,
			IsFinal:     msgResp.IsFinal,
			SpeechFinal: msgResp.SpeechFinal,
			Confidence:  alternative.Confidence,
			Start:       msgResp.Start,
			Duration:    msgResp.Duration,
		})

	case api.TypeUtteranceEndResponse:
		var msgResp api.UtteranceEndResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram utterance end", slog.String("error", err.Error()))
			return
		}
		s.options.UtteranceEndCallback(msgResp.LastWordEnd)

	case api.TypeSpeechStartedResponse:
		s.options.SpeechStartedCallback()

	case typeErrorResponse:
		var msgResp struct {
			Description string `json:"description"`
			Message     string `json:"message"`
			Variant     string `json:"variant"`
		}
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram error", slog.String("error", err.Error()))
			return
		}
		description := msgResp.Description
		if description == "" {
			description = msgResp.Message
		}
		s.options.ErrorCallback(&speechtotext.RecognizerError{Code: msgResp.Variant, Description: description})
	}
}
