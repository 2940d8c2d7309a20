// Package sse implements the Server-Sent Events framing used by session
// streams.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-livebridge/core/events"
)

// Encode renders event as one frame: the event name line, a single data
// line with the JSON payload and the blank delimiter line.
func Encode(event events.Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot encode nil event")
	}

	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event.Kind(), err)
	}

	var frame bytes.Buffer
	frame.Grow(len("event: \ndata: \n\n") + len(event.Kind()) + len(payload))
	frame.WriteString("event: ")
	frame.WriteString(string(event.Kind()))
	frame.WriteString("\ndata: ")
	frame.Write(payload)
	frame.WriteString("\n\n")

	return frame.Bytes(), nil
}

// MustEncode is like Encode but panics on failure. Event payloads are
// plain data, so a failure here is a programming error.
func MustEncode(event events.Event) []byte {
	frame, err := Encode(event)
	if err != nil {
		panic(err)
	}
	return frame
}

// Comment renders a comment frame. Listeners ignore it; it keeps
// intermediaries from timing the stream out and surfaces dead peers as
// write errors.
func Comment(text string) []byte {
	text = strings.ReplaceAll(text, "\n", " ")
	return []byte(": " + text + "\n\n")
}
