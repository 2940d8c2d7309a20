package events

import (
	"encoding/json"
	"testing"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "session init", event: NewSessionInit("id"), expected: KindSessionInit},
		{name: "session ready", event: NewSessionReady("id"), expected: KindSessionReady},
		{name: "transcript", event: NewTranscript(TranscriptEntry{Text: "hello"}), expected: KindTranscript},
		{name: "utterance end", event: NewUtteranceEnd(1.5), expected: KindUtteranceEnd},
		{name: "error", event: NewError("boom"), expected: KindError},
		{name: "close", event: NewClose("id", "requested"), expected: KindClose},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestPayloadsUseWireFieldNames(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected string
	}{
		{name: "session init", event: NewSessionInit("abc"), expected: `{"sessionId":"abc"}`},
		{name: "error", event: NewError("boom"), expected: `{"message":"boom"}`},
		{name: "close", event: NewClose("abc", "idle_timeout"), expected: `{"sessionId":"abc","reason":"idle_timeout"}`},
		{
			name:     "transcript",
			event:    NewTranscript(TranscriptEntry{Text: "hi", IsFinal: true, Confidence: 0.5}),
			expected: `{"entry":{"text":"hi","isFinal":true,"speechFinal":false,"confidence":0.5,"start":0,"duration":0}}`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			encoded, err := json.Marshal(testCase.event.Payload())
			if err != nil {
				t.Fatalf("expected payload to marshal, got %v", err)
			}
			if string(encoded) != testCase.expected {
				t.Fatalf("expected payload %s, got %s", testCase.expected, encoded)
			}
		})
	}
}

func TestSchemasCoverEveryKind(t *testing.T) {
	schemas := Schemas()
	for _, kind := range Kinds() {
		schema, ok := schemas[kind]
		if !ok || schema == nil {
			t.Fatalf("expected schema for kind %q", kind)
		}
	}

	if _, ok := schemas[KindTranscript].Properties.Get("entry"); !ok {
		t.Fatalf("expected transcript schema to describe the entry property")
	}
}
