package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Frame is a decoded event frame.
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Decoder reads frames from a push stream. Comment lines and the retry
// field are skipped.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next blocks until a complete frame is read. It returns io.EOF when the
// stream ends between frames.
func (d *Decoder) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		started bool
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			if !started {
				continue
			}
			frame.Data = strings.Join(data, "\n")
			if frame.Event == "" {
				frame.Event = "message"
			}
			return frame, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
			started = true
		case "data":
			data = append(data, value)
			started = true
		case "id":
			frame.ID = value
			started = true
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("failed to read event stream: %w", err)
	}
	if started {
		return Frame{}, io.ErrUnexpectedEOF
	}
	return Frame{}, io.EOF
}
