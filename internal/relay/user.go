// Package relay is the server core: the session manager, the room
// registry with its bounded history, and the message router.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/coursechat/coursechat/internal/schemas"
)

// User is an identity bound to one live connection. The record outlives
// the connection: on disconnect it is archived by username and restored
// on the next successful authorization.
type User struct {
	mu         sync.Mutex
	Username   string
	Nick       string
	Status     string
	ResourceID string
	CourseID   string
	Logins     []time.Time
	Logouts    []time.Time
	rooms      []string
}

// PublicInfo returns the projection of the user shared with room peers.
func (u *User) PublicInfo() schemas.UserInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return schemas.UserInfo{
		Username:   u.Username,
		Nick:       u.Nick,
		ResourceID: u.ResourceID,
		Status:     u.Status,
	}
}

// SetNick updates the display name.
func (u *User) SetNick(nick string) {
	u.mu.Lock()
	u.Nick = nick
	u.mu.Unlock()
}

// SetStatus updates the free-text status line.
func (u *User) SetStatus(status string) {
	u.mu.Lock()
	u.Status = status
	u.mu.Unlock()
}

// CurrentNick returns the display name.
func (u *User) CurrentNick() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.Nick
}

func (u *User) addRoom(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.rooms {
		if r == name {
			return
		}
	}
	u.rooms = append(u.rooms, name)
}

func (u *User) removeRoom(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, r := range u.rooms {
		if r == name {
			u.rooms = append(u.rooms[:i], u.rooms[i+1:]...)
			return
		}
	}
}

func (u *User) roomNames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.rooms...)
}

// Session binds a user record to its websocket peer for the lifetime of
// one connection.
type Session struct {
	User *User
	peer *peer
}

// Send delivers a message envelope to this session's connection.
func (s *Session) Send(env schemas.Envelope) error {
	return s.peer.writeMessage(env)
}

// peer serializes writes to one websocket connection. Deliveries happen
// on the sender's goroutine, so the lock is what preserves frame
// integrity under concurrent fan-out.
type peer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{enc: json.NewEncoder(conn)}
}

func (p *peer) writeFrame(frame schemas.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(frame)
}

func (p *peer) writeEvent(event string, data any) error {
	frame, err := schemas.NewFrame(event, data)
	if err != nil {
		return err
	}
	return p.writeFrame(frame)
}

func (p *peer) writeMessage(env schemas.Envelope) error {
	return p.writeEvent(schemas.EventMessage, env)
}
