// Package client is the Go-side counterpart of the relay: it performs
// the authorize handshake, keeps per-room rosters current and feeds the
// sharing engine with incoming share traffic.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/coursechat/coursechat/internal/crypto"
	"github.com/coursechat/coursechat/internal/schemas"
	"github.com/coursechat/coursechat/internal/share"
)

// Handlers are optional callbacks invoked from the read loop. A nil
// handler drops the corresponding traffic.
type Handlers struct {
	OnChat     func(from schemas.Address, nick, text string, history bool)
	OnRoster   func(room string, members []schemas.UserInfo)
	OnExternal func(env schemas.Envelope)
}

// Client is one authorized connection to the relay. Send is safe for
// concurrent use and satisfies the sharing engine's sender contract.
type Client struct {
	writeMu sync.Mutex
	conn    *websocket.Conn

	creds    schemas.Credentials
	handlers Handlers

	authCh    chan error
	versionCh chan schemas.Version

	mu     sync.Mutex
	roster map[string]map[string]schemas.UserInfo
	engine *share.Engine
	closed bool
}

var ErrAuthorization = errors.New("authorization rejected")

// NewWsConfig builds a websocket.Config for the relay's chat endpoint.
func NewWsConfig(baseURL string) (*websocket.Config, error) {
	loc := strings.Replace(baseURL, "http", "ws", 1) + "/chat"
	return websocket.NewConfig(loc, "app://coursechat") // no real origin b/c we're not a browser
}

// Dial connects and starts the read loop. The credentials get a fresh
// resourceID when they carry none. Authorization completes
// asynchronously; use WaitAuthorized before joining rooms.
func Dial(baseURL string, creds schemas.Credentials, handlers Handlers) (*Client, error) {
	cfg, err := NewWsConfig(baseURL)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("error dialing relay: %w", err)
	}

	if creds.ResourceID == "" {
		creds.ResourceID = crypto.NewResourceID()
	}

	c := &Client{
		conn:      conn,
		creds:     creds,
		handlers:  handlers,
		authCh:    make(chan error, 1),
		versionCh: make(chan schemas.Version, 1),
		roster:    make(map[string]map[string]schemas.UserInfo),
	}
	go c.readLoop()
	return c, nil
}

// AttachEngine routes incoming share, response and event messages into
// the given engine.
func (c *Client) AttachEngine(e *share.Engine) {
	c.mu.Lock()
	c.engine = e
	c.mu.Unlock()
}

// ResourceID returns the session identity used on the wire.
func (c *Client) ResourceID() string { return c.creds.ResourceID }

// WaitAuthorized blocks until the relay answers the handshake.
func (c *Client) WaitAuthorized(ctx context.Context) error {
	select {
	case err := <-c.authCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join asks the relay to add this session to the named room.
func (c *Client) Join(room string) error {
	return c.writeEvent(schemas.EventJoin, room)
}

// SendChat posts a public chat message to everyone in the room.
func (c *Client) SendChat(room, text string) error {
	to := schemas.SingleRoom(room)
	return c.Send(to, schemas.TypeChat, text, true)
}

// Send posts an addressed message. The from-address names this session
// in every room the message targets.
func (c *Client) Send(to schemas.Address, typ schemas.MessageType, payload any, public bool) error {
	from := make(schemas.Address, len(to))
	for room := range to {
		from[room] = []string{c.creds.ResourceID}
	}
	env, err := schemas.NewEnvelope(from, to, typ, payload, public)
	if err != nil {
		return err
	}
	return c.writeEvent(schemas.EventMessage, env)
}

// Version asks the relay for its protocol revision.
func (c *Client) Version(ctx context.Context) (schemas.Version, error) {
	if err := c.writeEvent(schemas.EventVersion, nil); err != nil {
		return schemas.Version{}, err
	}
	select {
	case v := <-c.versionCh:
		return v, nil
	case <-ctx.Done():
		return schemas.Version{}, ctx.Err()
	}
}

// Roster returns the last known membership of a room.
func (c *Client) Roster(room string) []schemas.UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]schemas.UserInfo, 0, len(c.roster[room]))
	for _, info := range c.roster[room] {
		members = append(members, info)
	}
	return members
}

// Close tears down active shares and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	engine := c.engine
	c.mu.Unlock()

	if engine != nil {
		engine.CloseAll()
	}
	return c.conn.Close()
}

func (c *Client) writeEvent(event string, data any) error {
	frame, err := schemas.NewFrame(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.JSON.Send(c.conn, frame)
}

func (c *Client) readLoop() {
	for {
		var frame schemas.Frame
		if err := websocket.JSON.Receive(c.conn, &frame); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("client: connection lost: %v", err)
			}
			// Unblock a waiter stuck in the handshake.
			select {
			case c.authCh <- fmt.Errorf("connection closed: %w", err):
			default:
			}
			return
		}

		switch frame.Event {
		case schemas.EventAuthorize:
			if err := c.writeEvent(schemas.EventAuthorizeReply, c.creds); err != nil {
				log.Printf("client: sending credentials: %v", err)
			}
		case schemas.EventAuthSuccess:
			select {
			case c.authCh <- nil:
			default:
			}
		case schemas.EventAuthFailed:
			var failure schemas.AuthFailure
			_ = json.Unmarshal(frame.Data, &failure)
			select {
			case c.authCh <- fmt.Errorf("%w: %s", ErrAuthorization, failure.Cause):
			default:
			}
		case schemas.EventVersionResponse:
			var v schemas.Version
			if json.Unmarshal(frame.Data, &v) == nil {
				select {
				case c.versionCh <- v:
				default:
				}
			}
		case schemas.EventMessage:
			c.handleMessage(frame.Data)
		}
	}
}

func (c *Client) handleMessage(data json.RawMessage) {
	var env schemas.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("client: dropping malformed envelope: %v", err)
		return
	}
	payload, err := schemas.DecodePayload(env)
	if err != nil {
		log.Printf("client: dropping envelope: %v", err)
		return
	}

	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	switch p := payload.(type) {
	case schemas.ChatPayload:
		if c.handlers.OnChat != nil {
			c.handlers.OnChat(env.From, env.Nick, string(p), env.History)
		}
	case schemas.ClientListPayload:
		room := envelopeRoom(env)
		c.mu.Lock()
		members := make(map[string]schemas.UserInfo, len(p))
		for _, info := range p {
			members[info.ResourceID] = info
		}
		c.roster[room] = members
		c.mu.Unlock()
		c.notifyRoster(room)
	case schemas.UserPayload:
		room := envelopeRoom(env)
		c.mu.Lock()
		if c.roster[room] == nil {
			c.roster[room] = make(map[string]schemas.UserInfo)
		}
		if env.Type == schemas.TypeRemoveUser {
			delete(c.roster[room], p.ResourceID)
		} else {
			c.roster[room][p.ResourceID] = schemas.UserInfo(p)
		}
		c.mu.Unlock()
		c.notifyRoster(room)
	case schemas.SharePayload:
		if engine != nil {
			if err := engine.HandleShare(env.From, p); err != nil {
				log.Printf("client: answering share offer: %v", err)
			}
		}
	case schemas.ResponsePayload:
		if engine != nil {
			engine.HandleResponse(env.From, p)
		}
	case schemas.EventPayload:
		if engine != nil {
			engine.HandleEvent(env.From, p)
		}
	case schemas.ExternalPayload:
		if c.handlers.OnExternal != nil {
			c.handlers.OnExternal(env)
		}
	}
}

func (c *Client) notifyRoster(room string) {
	if c.handlers.OnRoster == nil {
		return
	}
	c.handlers.OnRoster(room, c.Roster(room))
}

// envelopeRoom reads the room a relay notice belongs to off its
// from-address.
func envelopeRoom(env schemas.Envelope) string {
	for room := range env.From {
		return room
	}
	return ""
}
