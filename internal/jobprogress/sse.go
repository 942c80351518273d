package jobprogress

import (
	"bufio"
	"io"
	"strings"
)

const maxEventBytes = 1 << 20

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	Name string
	Data string
	ID   string
}

// sseReader splits a text/event-stream body into events. Comment lines and
// unknown fields are ignored; an event left incomplete at end of stream is
// discarded.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventBytes)
	return &sseReader{scanner: scanner}
}

// Next returns the next event, or io.EOF once the stream ends cleanly.
func (r *sseReader) Next() (sseEvent, error) {
	var (
		ev      sseEvent
		data    strings.Builder
		hasData bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !hasData {
				ev = sseEvent{}
				continue
			}
			ev.Data = data.String()
			if ev.Name == "" {
				ev.Name = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			ev.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	return sseEvent{}, io.EOF
}
