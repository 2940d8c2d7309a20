// Package events defines the typed event contract of a live transcription
// session stream.
//
// Every event is written to the listener as one push-stream frame named by
// its [Kind], with [Event.Payload] as the JSON body.
//
// Lifecycle events, produced by the session itself:
//
//   - SessionInit (session_init): first frame of every stream; carries the
//     session id the audio sender must use.
//   - SessionReady (session_ready): the recognition connection is open and
//     audio is accepted.
//   - Error (error): listener-safe failure description. A connection-level
//     error is always followed by Close.
//   - Close (close): last frame of every stream.
//
// Recognition events, relayed 1:1 and in order from the recognizer:
//
//   - Transcript (transcript): interim or final transcript entry.
//   - UtteranceEnd (utterance_end): the speaker finished an utterance.
//
// Recognition events are delivered best-effort and at most once per
// recognizer message.
package events
