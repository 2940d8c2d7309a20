package events

import "github.com/invopop/jsonschema"

// Kinds lists every kind that can appear on a session stream, in the order
// a listener usually observes them.
func Kinds() []Kind {
	return []Kind{
		KindSessionInit,
		KindSessionReady,
		KindTranscript,
		KindUtteranceEnd,
		KindError,
		KindClose,
	}
}

// Schemas returns the JSON schema of the frame payload of every event kind.
func Schemas() map[Kind]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	return map[Kind]*jsonschema.Schema{
		KindSessionInit:  reflector.Reflect(SessionPayload{}),
		KindSessionReady: reflector.Reflect(SessionPayload{}),
		KindTranscript:   reflector.Reflect(TranscriptPayload{}),
		KindUtteranceEnd: reflector.Reflect(UtteranceEndPayload{}),
		KindError:        reflector.Reflect(ErrorPayload{}),
		KindClose:        reflector.Reflect(ClosePayload{}),
	}
}
