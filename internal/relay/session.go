package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log"

	"golang.org/x/net/websocket"

	"github.com/coursechat/coursechat/internal/auth"
	"github.com/coursechat/coursechat/internal/schemas"
	"github.com/coursechat/coursechat/internal/validation"
)

// CurrentVersion answers the version handshake.
var CurrentVersion = schemas.Version{Major: 3, Minor: 1}

// A connection is dropped after this many consecutive undecodable
// frames.
const maxDecodeErrorsPerConn = 3

const collisionCause = "Resource ID collision. Try to reconnect, maybe try lottery, too."

// Handler serves one websocket connection per call. It owns the
// authorize handshake and the per-session frame loop.
type Handler struct {
	registry *Registry
	rooms    *Rooms
	auth     auth.Authenticator
	debug    bool
}

func NewHandler(registry *Registry, rooms *Rooms, authenticator auth.Authenticator, debug bool) *Handler {
	return &Handler{
		registry: registry,
		rooms:    rooms,
		auth:     authenticator,
		debug:    debug,
	}
}

// HandleConn runs the session: challenge, authorize, then the message
// loop until the peer disconnects. A panic in one connection's handler
// is logged and abandoned without affecting other connections.
func (h *Handler) HandleConn(ws *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("relay: recovered connection handler panic: %v", r)
		}
		_ = ws.Close()
	}()

	p := newPeer(ws)
	var session *Session
	defer func() {
		if session != nil {
			h.rooms.LeaveAll(session)
			h.registry.Unregister(session)
			h.debugf("session for %s closed", session.User.Username)
		}
	}()

	// No implicit trust: the challenge goes out before anything else.
	if err := p.writeEvent(schemas.EventAuthorize, nil); err != nil {
		return
	}

	decoder := json.NewDecoder(ws)
	decodeErrors := 0
	for {
		var frame schemas.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				h.debugf("dropping connection after repeated decode errors: %v", err)
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Event {
		case schemas.EventAuthorizeReply:
			if session != nil {
				continue
			}
			admitted, ok := h.authorize(ws, p, frame.Data)
			if !ok {
				return
			}
			session = admitted
		case schemas.EventMessage:
			if session == nil {
				continue
			}
			h.handleMessage(frame.Data, session)
		case schemas.EventJoin:
			if session == nil {
				continue
			}
			var roomName string
			if err := json.Unmarshal(frame.Data, &roomName); err != nil || roomName == "" {
				continue
			}
			h.debugf("%s joins room %q", session.User.Username, roomName)
			h.rooms.Join(roomName, session)
		case schemas.EventVersion:
			_ = p.writeEvent(schemas.EventVersionResponse, CurrentVersion)
		default:
			// Unknown events are ignored, not fatal.
		}
	}
}

// authorize runs the external check and admits or rejects the
// connection. Both failure paths notify the client and drop the
// connection; there is no retry.
func (h *Handler) authorize(ws *websocket.Conn, p *peer, data json.RawMessage) (*Session, bool) {
	var creds schemas.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		_ = p.writeEvent(schemas.EventAuthFailed, schemas.AuthFailure{Cause: "malformed credentials"})
		return nil, false
	}

	if err := h.auth.Check(ws.Request().Context(), creds); err != nil {
		cause := "authentication service unavailable"
		var denial *auth.Denial
		if errors.As(err, &denial) {
			cause = denial.Cause
		}
		h.debugf("authorization failed for %s: %v", creds.Username, err)
		_ = p.writeEvent(schemas.EventAuthFailed, schemas.AuthFailure{Cause: cause})
		return nil, false
	}

	session, err := h.registry.Register(creds, p)
	if err != nil {
		h.debugf("authorization failed for %s: %v", creds.Username, err)
		_ = p.writeEvent(schemas.EventAuthFailed, schemas.AuthFailure{Cause: collisionCause})
		return nil, false
	}

	h.debugf("authorized %s (resource %s)", creds.Username, creds.ResourceID)
	_ = p.writeEvent(schemas.EventAuthSuccess, nil)
	return session, true
}

// handleMessage sanitizes string payloads and hands the envelope to the
// room router. Malformed envelopes are dropped without surfacing an
// error to the sender.
func (h *Handler) handleMessage(data json.RawMessage, session *Session) {
	var env schemas.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.debugf("dropping malformed envelope from %s: %v", session.User.Username, err)
		return
	}

	var text string
	if json.Unmarshal(env.Message, &text) == nil {
		sanitized, err := json.Marshal(validation.SanitizeChat(text))
		if err == nil {
			env.Message = sanitized
		}
	}

	h.rooms.Route(env, session)
}

func (h *Handler) debugf(format string, args ...any) {
	if h.debug {
		log.Printf("relay: "+format, args...)
	}
}
