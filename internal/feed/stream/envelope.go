package stream

import (
	"encoding/json"
)

// Event names emitted by the backend stream.
const (
	EventMessage      = "message"
	EventNotification = "notification"
	EventConnection   = "connection"
	EventHeartbeat    = "heartbeat"
)

// Envelope is the typed form of a raw stream event: the event name plus its
// decoded JSON payload.
type Envelope struct {
	Event string
	Data  map[string]interface{}
}

// Normalize parses a raw event into an envelope. It returns nil for
// unparseable payloads so a single malformed push never takes down the
// connection.
//
// Events on the default channel sometimes arrive wrapped, with the real event
// name and payload nested in the body ({"event": ..., "data": {...}}); those
// are unwrapped here.
func Normalize(ev *Event) *Envelope {
	if ev == nil || len(ev.Data) == 0 {
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return nil
	}

	name := ev.Name
	if name == "" {
		name = EventMessage
	}

	if name == EventMessage {
		if inner, ok := unwrap(payload); ok {
			return inner
		}
	}

	return &Envelope{Event: name, Data: payload}
}

func unwrap(payload map[string]interface{}) (*Envelope, bool) {
	name, ok := payload["event"].(string)
	if !ok || name == "" {
		return nil, false
	}
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return &Envelope{Event: name, Data: data}, true
}
