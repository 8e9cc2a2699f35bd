package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSingleEvent(t *testing.T) {
	wire := "event: notification\nid: ev-1\ndata: {\"id\":\"n1\"}\n\n"

	dec := NewDecoder(strings.NewReader(wire))
	ev, err := dec.Next()
	require.NoError(t, err)

	assert.Equal(t, "notification", ev.Name)
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, `{"id":"n1"}`, string(ev.Data))

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderDefaultEventName(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: hello\n\n"))
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Name)
	assert.Equal(t, "hello", string(ev.Data))
}

func TestDecoderMultiLineData(t *testing.T) {
	wire := "data: line one\ndata: line two\n\n"
	dec := NewDecoder(strings.NewReader(wire))
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(ev.Data))
}

func TestDecoderCRLFAndComments(t *testing.T) {
	wire := ": keepalive\r\nevent: heartbeat\r\ndata: {}\r\n\r\n"
	dec := NewDecoder(strings.NewReader(wire))
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", ev.Name)
	assert.Equal(t, "{}", string(ev.Data))
}

func TestDecoderSkipsDatalessEvents(t *testing.T) {
	wire := "event: connection\n\nevent: notification\ndata: {\"id\":\"n1\"}\n\n"
	dec := NewDecoder(strings.NewReader(wire))
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Name)
}

func TestDecoderMultipleEvents(t *testing.T) {
	wire := "data: one\n\ndata: two\n\n"
	dec := NewDecoder(strings.NewReader(wire))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(ev.Data))

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(ev.Data))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		event     *Event
		wantNil   bool
		wantEvent string
	}{
		{
			name:      "named notification event",
			event:     &Event{Name: "notification", Data: []byte(`{"Id":"n1"}`)},
			wantEvent: "notification",
		},
		{
			name:      "heartbeat",
			event:     &Event{Name: "heartbeat", Data: []byte(`{"ts":"2024-01-01T00:00:00Z"}`)},
			wantEvent: "heartbeat",
		},
		{
			name:      "wrapped default-channel event",
			event:     &Event{Name: "message", Data: []byte(`{"event":"notification","data":{"Id":"n2"}}`)},
			wantEvent: "notification",
		},
		{
			name:    "malformed payload",
			event:   &Event{Name: "notification", Data: []byte(`{not json`)},
			wantNil: true,
		},
		{
			name:    "empty payload",
			event:   &Event{Name: "notification"},
			wantNil: true,
		},
		{
			name:    "nil event",
			event:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Normalize(tt.event)
			if tt.wantNil {
				assert.Nil(t, env)
				return
			}
			require.NotNil(t, env)
			assert.Equal(t, tt.wantEvent, env.Event)
			assert.NotNil(t, env.Data)
		})
	}
}

func TestNormalizeUnwrapKeepsPayload(t *testing.T) {
	ev := &Event{Name: "message", Data: []byte(`{"event":"notification","data":{"Id":"n3","Title":"hi"}}`)}
	env := Normalize(ev)
	require.NotNil(t, env)
	assert.Equal(t, "n3", env.Data["Id"])
	assert.Equal(t, "hi", env.Data["Title"])
}
