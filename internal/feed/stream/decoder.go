package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one raw server-sent event as it came off the wire.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Decoder reads server-sent events from a stream body. It understands the
// `event:`, `data:`, `id:` and comment lines, joins multi-line data with
// newlines and tolerates CRLF line endings.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder over the response body.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Decoder{scanner: s}
}

// Next blocks until a complete event is available. It returns io.EOF when the
// stream ends, or the underlying read error.
func (d *Decoder) Next() (*Event, error) {
	ev := &Event{}
	var data [][]byte

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		if line == "" {
			// Blank line dispatches the buffered event. Events with no
			// data are discarded per the SSE processing model.
			if len(data) == 0 {
				ev = &Event{}
				continue
			}
			if ev.Name == "" {
				ev.Name = EventMessage
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, []byte(value))
		case "id":
			ev.ID = value
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func splitField(line string) (string, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimPrefix(line[i+1:], " ")
}
