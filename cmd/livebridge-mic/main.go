// Command livebridge-mic streams the default microphone to a livebridge
// server and prints the transcripts it relays back.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-livebridge/core/audio"
	"github.com/koscakluka/ema-livebridge/core/audio/miniaudio"
	"github.com/koscakluka/ema-livebridge/core/events"
	"github.com/koscakluka/ema-livebridge/core/sse"
	"github.com/muesli/reflow/wordwrap"
)

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	interimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	finalStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type options struct {
	server     string
	sampleRate int
	chunk      time.Duration
	width      int
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "Base URL of the livebridge server")
	flag.IntVar(&opts.sampleRate, "sample-rate", audio.DefaultSampleRate, "Capture sample rate, must match the server encoding")
	flag.DurationVar(&opts.chunk, "chunk", 100*time.Millisecond, "Audio sent per request")
	flag.IntVar(&opts.width, "width", 80, "Wrap transcripts at this width")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	encoding, err := audio.ParseEncodingInfo(audio.EncodingLinear16.Name(), opts.sampleRate)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.server+"/api/transcribe/stream", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server refused the stream: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var (
		sessionID     string
		sessionClosed bool
		capture       *miniaudio.Client
		uploader      *sender
	)
	defer func() {
		// Capture stops first so nothing pushes to a stopped uploader.
		if capture != nil {
			_ = capture.StopCapture()
			capture.Close()
		}
		if uploader != nil {
			uploader.stop()
			if !sessionClosed {
				uploader.closeSession()
			}
		}
	}()

	decoder := sse.NewDecoder(resp.Body)
	for {
		frame, err := decoder.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch events.Kind(frame.Event) {
		case events.KindSessionInit:
			var payload events.SessionPayload
			if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil {
				return fmt.Errorf("invalid session_init frame: %w", err)
			}
			sessionID = payload.SessionID
			fmt.Println(statusStyle.Render("session " + sessionID + " connecting..."))

		case events.KindSessionReady:
			capture, err = miniaudio.NewClient(encoding)
			if err != nil {
				return fmt.Errorf("failed to open microphone: %w", err)
			}
			uploader = newSender(opts.server, sessionID, encoding.BytesPerSecond()*int(opts.chunk.Milliseconds())/1000)
			if err := capture.StartCapture(uploader.push); err != nil {
				return fmt.Errorf("failed to start microphone: %w", err)
			}
			fmt.Println(statusStyle.Render("listening, press Ctrl+C to stop"))

		case events.KindTranscript:
			var payload events.TranscriptPayload
			if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil {
				continue
			}
			text := wordwrap.String(payload.Entry.Text, opts.width)
			if text == "" {
				continue
			}
			if payload.Entry.IsFinal {
				fmt.Println(finalStyle.Render(text))
			} else {
				fmt.Println(interimStyle.Render(text))
			}

		case events.KindUtteranceEnd:
			fmt.Println(statusStyle.Render("--"))

		case events.KindError:
			var payload events.ErrorPayload
			_ = json.Unmarshal([]byte(frame.Data), &payload)
			fmt.Println(errorStyle.Render("error: " + payload.Message))

		case events.KindClose:
			var payload events.ClosePayload
			_ = json.Unmarshal([]byte(frame.Data), &payload)
			fmt.Println(statusStyle.Render("session closed: " + payload.Reason))
			sessionClosed = true
			return nil
		}
	}
}

// sender batches captured audio and posts it in order from one goroutine.
type sender struct {
	server    string
	sessionID string
	chunkSize int
	client    *http.Client

	fragments chan []byte
	done      chan struct{}
	pending   []byte
}

func newSender(server, sessionID string, chunkSize int) *sender {
	// Fragments must hold whole 16 bit samples.
	chunkSize = max(chunkSize-chunkSize%2, 2)
	s := &sender{
		server:    server,
		sessionID: sessionID,
		chunkSize: chunkSize,
		client:    &http.Client{Timeout: 5 * time.Second},
		fragments: make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// push is called from the audio thread.
func (s *sender) push(fragment []byte) {
	select {
	case s.fragments <- append([]byte(nil), fragment...):
	default:
		// Drop audio rather than block capture.
	}
}

func (s *sender) stop() {
	close(s.fragments)
	<-s.done
}

func (s *sender) run() {
	defer close(s.done)
	for fragment := range s.fragments {
		s.pending = append(s.pending, fragment...)
		if len(s.pending) < s.chunkSize {
			continue
		}
		if err := s.post(s.pending); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		}
		s.pending = nil
	}
}

func (s *sender) post(chunk []byte) error {
	body, err := json.Marshal(map[string]string{
		"sessionId": s.sessionID,
		"audio":     base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.server+"/api/transcribe/audio", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		message, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("audio rejected: %s %s", resp.Status, strings.TrimSpace(string(message)))
	}
	return nil
}

// closeSession ends the session on the server so it does not wait for the
// idle timeout.
func (s *sender) closeSession() {
	req, err := http.NewRequest(http.MethodDelete, s.server+"/api/transcribe/sessions/"+s.sessionID, nil)
	if err != nil {
		return
	}
	if resp, err := s.client.Do(req); err == nil {
		_ = resp.Body.Close()
	}
}
