package events

import "time"

const (
	// KindTranscript identifies a recognized transcript fragment.
	KindTranscript Kind = "transcript"
	// KindUtteranceEnd identifies the end of a spoken utterance.
	KindUtteranceEnd Kind = "utterance_end"
)

// TranscriptEntry is one recognition result. Interim entries
// (IsFinal == false) are superseded by the next entry covering the same
// audio.
type TranscriptEntry struct {
	Text        string  `json:"text" jsonschema:"title=Text"`
	IsFinal     bool    `json:"isFinal" jsonschema:"title=Is final,description=The text for this audio span will not change"`
	SpeechFinal bool    `json:"speechFinal" jsonschema:"title=Speech final,description=The speaker paused after this entry"`
	Confidence  float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	// Start and Duration are in seconds from the beginning of the session audio.
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// TranscriptPayload is the frame body of transcript.
type TranscriptPayload struct {
	Entry TranscriptEntry `json:"entry"`
}

// Transcript carries a transcript entry relayed from the recognizer.
type Transcript struct {
	Base
	Entry TranscriptEntry
}

// NewTranscript creates a transcript event.
func NewTranscript(entry TranscriptEntry) Transcript {
	return Transcript{Base: NewBase(KindTranscript), Entry: entry}
}

func (e Transcript) Payload() any { return TranscriptPayload{Entry: e.Entry} }

// UtteranceEndPayload is the frame body of utterance_end.
type UtteranceEndPayload struct {
	Timestamp   time.Time `json:"timestamp" jsonschema:"title=Timestamp,description=When the end of the utterance was detected"`
	LastWordEnd float64   `json:"lastWordEnd" jsonschema:"title=Last word end,description=Seconds from the beginning of the session audio"`
}

// UtteranceEnd marks that the speaker finished an utterance.
type UtteranceEnd struct {
	Base
	LastWordEnd float64
}

// NewUtteranceEnd creates an utterance end event.
func NewUtteranceEnd(lastWordEnd float64) UtteranceEnd {
	return UtteranceEnd{Base: NewBase(KindUtteranceEnd), LastWordEnd: lastWordEnd}
}

func (e UtteranceEnd) Payload() any {
	return UtteranceEndPayload{Timestamp: e.Timestamp().UTC(), LastWordEnd: e.LastWordEnd}
}
