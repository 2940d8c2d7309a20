package speechtotext

import "github.com/koscakluka/ema-livebridge/core/audio"

// TranscriptionOptions holds the callbacks a connection delivers recognizer
// messages to. Callbacks are invoked one at a time, in the order the
// messages arrive.
type TranscriptionOptions struct {
	TranscriptCallback    func(transcript Transcript)
	UtteranceEndCallback  func(lastWordEnd float64)
	SpeechStartedCallback func()
	// ErrorCallback receives in-band errors reported by the recognizer. The
	// connection may stay open after it.
	ErrorCallback func(err error)
	// ClosedCallback is invoked exactly once when the connection stops
	// delivering messages. err is nil after a normal close.
	ClosedCallback func(err error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptCallback(callback func(transcript Transcript)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptCallback = callback
	}
}

func WithUtteranceEndCallback(callback func(lastWordEnd float64)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.UtteranceEndCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithClosedCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ClosedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// NewTranscriptionOptions applies opts over defaults where every callback
// is a no-op.
func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	if options.TranscriptCallback == nil {
		options.TranscriptCallback = func(Transcript) {}
	}
	if options.UtteranceEndCallback == nil {
		options.UtteranceEndCallback = func(float64) {}
	}
	if options.SpeechStartedCallback == nil {
		options.SpeechStartedCallback = func() {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	if options.ClosedCallback == nil {
		options.ClosedCallback = func(error) {}
	}

	return options
}
