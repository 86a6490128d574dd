package schemas

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType enumerates the kinds of addressed messages. Dispatch over
// these is exhaustive; anything else is dropped by the receiver.
type MessageType string

const (
	TypeChat           MessageType = "chat"
	TypeNewUser        MessageType = "new-user"
	TypeRemoveUser     MessageType = "remove-user"
	TypeUpdateUserinfo MessageType = "update-userinfo"
	TypeClientList     MessageType = "client-list"
	TypeShare          MessageType = "share"
	TypeResponse       MessageType = "response"
	TypeEvent          MessageType = "event"
	TypeExternal       MessageType = "external"
)

// Address maps a room name to a list of resourceIDs (or, in replayed
// history, display nicknames). An empty list under a room key addresses
// everyone currently in that room.
type Address map[string][]string

// Clone returns a deep copy of the address.
func (a Address) Clone() Address {
	if a == nil {
		return nil
	}
	out := make(Address, len(a))
	for room, ids := range a {
		out[room] = append([]string(nil), ids...)
	}
	return out
}

// SingleRoom builds an address targeting the given ids in one room.
// An empty id list addresses the whole room.
func SingleRoom(room string, ids ...string) Address {
	return Address{room: append([]string(nil), ids...)}
}

// Envelope is the addressed message carried by "message" frames.
//
// Message holds the raw payload; its shape depends on Type and is decoded
// with DecodePayload. Public defaults to true when absent on the wire.
type Envelope struct {
	From      Address         `json:"from"`
	To        Address         `json:"to"`
	Type      MessageType     `json:"type"`
	Nick      string          `json:"nick,omitempty"`
	TimeStamp time.Time       `json:"timeStamp"`
	Message   json.RawMessage `json:"message"`
	Public    bool            `json:"public"`
	History   bool            `json:"history,omitempty"`
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	type plain Envelope
	aux := plain{Public: true}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = Envelope(aux)
	return nil
}

// Clone returns a deep copy of the envelope. History entries are cloned
// before their addresses are rewritten so live deliveries are unaffected.
func (e Envelope) Clone() Envelope {
	out := e
	out.From = e.From.Clone()
	out.To = e.To.Clone()
	out.Message = append(json.RawMessage(nil), e.Message...)
	return out
}

// NewEnvelope builds an envelope of the given type, marshaling payload
// into the message body.
func NewEnvelope(from, to Address, typ MessageType, payload any, public bool) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		From:      from,
		To:        to,
		Type:      typ,
		TimeStamp: time.Now(),
		Message:   raw,
		Public:    public,
	}, nil
}

// UserInfo is the public projection of a connected user: everything a
// room member may learn about another member.
type UserInfo struct {
	Username   string `json:"username"`
	Nick       string `json:"nick"`
	ResourceID string `json:"resourceID"`
	Status     string `json:"status"`
}

// EventBinding declares one interactive event a shareable component emits
// and the named operation a remote twin invokes to mirror it.
type EventBinding struct {
	EventType string `json:"eventType"`
	Action    string `json:"action"`
}

// Attachable describes a locally instantiated component eligible for
// sharing. The wire field fnName carries the component type name.
type Attachable struct {
	ID            string         `json:"id"`
	ComponentType string         `json:"fnName"`
	Events        []EventBinding `json:"events"`
}

// SharePayload is the body of a share offer: the attachable descriptor
// plus a correlation id the eventual response refers back to.
type SharePayload struct {
	Attachable
	MsgID string `json:"msgid"`
}

// ResponsePayload answers a share offer, or closes an established share
// when Response is false and ResponseID is empty.
type ResponsePayload struct {
	ID         string `json:"id"`
	Reflection bool   `json:"reflection"`
	ResponseID string `json:"responseid,omitempty"`
	Response   bool   `json:"response"`
}

// EventPayload relays one interaction on a shared component to its twin.
type EventPayload struct {
	Action        string         `json:"action"`
	Params        map[string]any `json:"params"`
	ComponentType string         `json:"fnName"`
	Reflection    bool           `json:"reflection"`
	TimeStamp     time.Time      `json:"timeStamp"`
}

// Payload is the decoded, typed body of an envelope.
type Payload interface{ payloadType() MessageType }

// ChatPayload is the sanitized text of a chat message.
type ChatPayload string

// UserPayload accompanies new-user, remove-user and update-userinfo.
type UserPayload UserInfo

// ClientListPayload lists every member of a room at join time.
type ClientListPayload []UserInfo

// ExternalPayload is an opaque body relayed for external collaborators.
type ExternalPayload json.RawMessage

func (ChatPayload) payloadType() MessageType     { return TypeChat }
func (UserPayload) payloadType() MessageType     { return TypeNewUser }
func (ClientListPayload) payloadType() MessageType { return TypeClientList }
func (SharePayload) payloadType() MessageType    { return TypeShare }
func (ResponsePayload) payloadType() MessageType { return TypeResponse }
func (EventPayload) payloadType() MessageType    { return TypeEvent }
func (ExternalPayload) payloadType() MessageType { return TypeExternal }

// ErrUnknownMessageType marks envelopes whose type is not part of the
// protocol. Receivers drop these without failing the connection.
type ErrUnknownMessageType struct {
	Type MessageType
}

func (e ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// DecodePayload decodes the envelope body according to its message type.
func DecodePayload(e Envelope) (Payload, error) {
	switch e.Type {
	case TypeChat:
		var s string
		if err := json.Unmarshal(e.Message, &s); err != nil {
			return nil, fmt.Errorf("decode chat payload: %w", err)
		}
		return ChatPayload(s), nil
	case TypeNewUser, TypeRemoveUser, TypeUpdateUserinfo:
		var u UserPayload
		if err := json.Unmarshal(e.Message, &u); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return u, nil
	case TypeClientList:
		var l ClientListPayload
		if err := json.Unmarshal(e.Message, &l); err != nil {
			return nil, fmt.Errorf("decode client-list payload: %w", err)
		}
		return l, nil
	case TypeShare:
		var s SharePayload
		if err := json.Unmarshal(e.Message, &s); err != nil {
			return nil, fmt.Errorf("decode share payload: %w", err)
		}
		return s, nil
	case TypeResponse:
		var r ResponsePayload
		if err := json.Unmarshal(e.Message, &r); err != nil {
			return nil, fmt.Errorf("decode response payload: %w", err)
		}
		return r, nil
	case TypeEvent:
		var ev EventPayload
		if err := json.Unmarshal(e.Message, &ev); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		return ev, nil
	case TypeExternal:
		return ExternalPayload(append(json.RawMessage(nil), e.Message...)), nil
	default:
		return nil, ErrUnknownMessageType{Type: e.Type}
	}
}
