// Package schemas defines the wire protocol shared by the relay server and
// its clients: the named connection events and the addressed message envelope.
package schemas

import "encoding/json"

// Named events carried over the websocket. Every frame on the wire is a
// Frame whose Event is one of these.
const (
	EventAuthorize       = "authorize"
	EventAuthorizeReply  = "authorize-reply"
	EventAuthSuccess     = "authorization-success"
	EventAuthFailed      = "authorization-failed"
	EventMessage         = "message"
	EventJoin            = "join"
	EventVersion         = "version"
	EventVersionResponse = "version-response"
)

// Frame is the outermost wire unit: a named event plus its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame for the given event. A nil payload
// produces a bare frame (e.g. the initial authorize challenge).
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// Credentials is the client's answer to the authorize challenge.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	CourseID   string `json:"courseID"`
	ResourceID string `json:"resourceID"`
}

// AuthFailure explains a rejected authorization. Cause carries the
// authentication backend's response verbatim.
type AuthFailure struct {
	Cause string `json:"cause"`
}

// Version identifies the protocol revision served by the relay.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}
