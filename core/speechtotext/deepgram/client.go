package deepgram

import (
	"os"
	"time"
)

const (
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-3"
	DefaultLanguage = "en-US"

	defaultDialTimeout       = 10 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultKeepAliveInterval = 5 * time.Second
	defaultUtteranceEnd      = 1000 * time.Millisecond
	defaultEndpointing       = 300 * time.Millisecond
)

// TranscriptionClient opens live transcription streams against the
// Deepgram listen API. It holds no connection itself and is safe for
// concurrent use; every Open call owns one websocket.
type TranscriptionClient struct {
	apiKey   string
	endpoint string
	model    string
	language string

	interimResults bool
	utteranceEnd   time.Duration
	endpointing    time.Duration

	dialTimeout       time.Duration
	writeTimeout      time.Duration
	keepAliveInterval time.Duration
}

type ClientOption func(*TranscriptionClient)

// NewTranscriptionClient creates a client. The API key defaults to the
// DEEPGRAM_API_KEY environment variable.
func NewTranscriptionClient(opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:            os.Getenv("DEEPGRAM_API_KEY"),
		endpoint:          DefaultEndpoint,
		model:             DefaultModel,
		language:          DefaultLanguage,
		interimResults:    true,
		utteranceEnd:      defaultUtteranceEnd,
		endpointing:       defaultEndpointing,
		dialTimeout:       defaultDialTimeout,
		writeTimeout:      defaultWriteTimeout,
		keepAliveInterval: defaultKeepAliveInterval,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

func WithEndpoint(endpoint string) ClientOption {
	return func(c *TranscriptionClient) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		if language != "" {
			c.language = language
		}
	}
}

func WithInterimResults(enabled bool) ClientOption {
	return func(c *TranscriptionClient) { c.interimResults = enabled }
}

// WithUtteranceEnd sets the gap in recognized words after which Deepgram
// reports the end of an utterance. Zero disables utterance end detection.
func WithUtteranceEnd(gap time.Duration) ClientOption {
	return func(c *TranscriptionClient) { c.utteranceEnd = gap }
}

func WithEndpointing(silence time.Duration) ClientOption {
	return func(c *TranscriptionClient) { c.endpointing = silence }
}

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		if timeout > 0 {
			c.dialTimeout = timeout
		}
	}
}

func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// WithKeepAliveInterval sets how long a stream may go without audio before
// a KeepAlive message is sent. Deepgram closes streams idle for 10s.
func WithKeepAliveInterval(interval time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		if interval > 0 {
			c.keepAliveInterval = interval
		}
	}
}
