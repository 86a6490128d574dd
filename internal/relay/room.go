package relay

import (
	"fmt"
	"strings"
	"sync"

	"github.com/coursechat/coursechat/internal/schemas"
	"github.com/coursechat/coursechat/internal/validation"
)

// ServerNick is the sender identity of relay-originated notices.
const ServerNick = "Server"

// maxStoredHistory bounds the per-room history ring. The replay window
// shown to joining members is the smaller historyLength setting.
const maxStoredHistory = 1000

// Room tracks an ordered member list and a bounded chat history.
// Members are kept in join order.
type Room struct {
	mu      sync.Mutex
	name    string
	members []*Session
	history []schemas.Envelope

	registry      *Registry
	historyLength int
}

// Rooms is the room registry. Rooms are created lazily on first join and
// kept for the lifetime of the process.
type Rooms struct {
	mu            sync.Mutex
	rooms         map[string]*Room
	registry      *Registry
	historyLength int
}

func NewRooms(registry *Registry, historyLength int) *Rooms {
	return &Rooms{
		rooms:         make(map[string]*Room),
		registry:      registry,
		historyLength: historyLength,
	}
}

// Get resolves an existing room by name.
func (r *Rooms) Get(name string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

// Names lists the existing rooms.
func (r *Rooms) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

// Join adds the session to the named room, creating the room if needed.
func (r *Rooms) Join(name string, s *Session) *Room {
	r.mu.Lock()
	room, ok := r.rooms[name]
	if !ok {
		room = &Room{
			name:          name,
			registry:      r.registry,
			historyLength: r.historyLength,
		}
		r.rooms[name] = room
	}
	r.mu.Unlock()

	s.User.addRoom(name)
	room.join(s)
	return room
}

// LeaveAll removes the session from every room it belongs to, with the
// usual leave broadcasts. Called on disconnect.
func (r *Rooms) LeaveAll(s *Session) {
	for _, name := range s.User.roomNames() {
		if room, ok := r.Get(name); ok {
			room.leave(s)
		}
		s.User.removeRoom(name)
	}
}

// Route fans the envelope out to every room named in its to-address.
// Room keys the sender is not a member of resolve to nothing and are
// dropped silently.
func (r *Rooms) Route(env schemas.Envelope, sender *Session) {
	for name := range env.To {
		room, ok := r.Get(name)
		if !ok || !room.isMember(sender) {
			continue
		}
		room.route(env, sender)
	}
}

func (room *Room) isMember(s *Session) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	for _, member := range room.members {
		if member == s {
			return true
		}
	}
	return false
}

func (room *Room) serverEnvelope(typ schemas.MessageType, to schemas.Address, payload any) schemas.Envelope {
	env, err := schemas.NewEnvelope(schemas.SingleRoom(room.name, ServerNick), to, typ, payload, true)
	if err != nil {
		return schemas.Envelope{}
	}
	env.Nick = ServerNick
	return env
}

// join appends the member, announces it to the others, sends the new
// member the client list and replays recent eligible history.
func (room *Room) join(s *Session) {
	room.mu.Lock()
	room.members = append(room.members, s)
	members := append([]*Session(nil), room.members...)
	replay := room.historyTailLocked()
	room.mu.Unlock()

	info := s.User.PublicInfo()
	for _, member := range members {
		if member == s {
			continue
		}
		to := schemas.SingleRoom(room.name, member.User.ResourceID)
		_ = member.Send(room.serverEnvelope(schemas.TypeNewUser, to, info))
	}

	list := make(schemas.ClientListPayload, 0, len(members))
	for _, member := range members {
		list = append(list, member.User.PublicInfo())
	}
	to := schemas.SingleRoom(room.name, info.ResourceID)
	_ = s.Send(room.serverEnvelope(schemas.TypeClientList, to, list))

	for _, env := range replay {
		env.History = true
		_ = s.Send(env)
	}
}

// historyTailLocked selects the most recent replayable entries, oldest
// first: broadcasts to the whole room, or public chat. Caller holds
// room.mu.
func (room *Room) historyTailLocked() []schemas.Envelope {
	var picked []schemas.Envelope
	for i := len(room.history) - 1; i >= 0 && len(picked) < room.historyLength; i-- {
		env := room.history[i]
		broadcast := len(env.To[room.name]) == 0
		publicChat := env.Type == schemas.TypeChat && env.Public
		if broadcast || publicChat {
			picked = append(picked, env.Clone())
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// leave notifies the room, removes the member and updates the rest's
// client lists.
func (room *Room) leave(s *Session) {
	nick := s.User.CurrentNick()
	info := s.User.PublicInfo()

	room.mu.Lock()
	members := append([]*Session(nil), room.members...)
	for i, member := range room.members {
		if member == s {
			room.members = append(room.members[:i], room.members[i+1:]...)
			break
		}
	}
	remaining := append([]*Session(nil), room.members...)
	room.mu.Unlock()

	notice := fmt.Sprintf("%s left the room.", nick)
	for _, member := range members {
		to := schemas.SingleRoom(room.name, member.User.ResourceID)
		_ = member.Send(room.serverEnvelope(schemas.TypeChat, to, notice))
	}
	for _, member := range remaining {
		to := schemas.SingleRoom(room.name, member.User.ResourceID)
		_ = member.Send(room.serverEnvelope(schemas.TypeRemoveUser, to, info))
	}
}

// route delivers one envelope inside this room: command interception,
// history bookkeeping and recipient resolution.
func (room *Room) route(env schemas.Envelope, sender *Session) {
	if env.Type == schemas.TypeChat {
		if text, ok := chatText(env); ok && strings.HasPrefix(text, "/") {
			room.runCommand(text, sender)
			return
		}
	}

	env.Nick = sender.User.CurrentNick()

	if env.Type == schemas.TypeChat {
		room.appendHistory(env)
	}

	room.mu.Lock()
	members := append([]*Session(nil), room.members...)
	room.mu.Unlock()

	targets := members
	if !env.Public && len(env.To[room.name]) > 0 {
		wanted := make(map[string]struct{}, len(env.To[room.name]))
		for _, id := range env.To[room.name] {
			wanted[id] = struct{}{}
		}
		targets = targets[:0:0]
		for _, member := range members {
			if _, ok := wanted[member.User.ResourceID]; ok {
				targets = append(targets, member)
			}
		}
	}

	senderIncluded := false
	for _, member := range targets {
		if member == sender {
			senderIncluded = true
		}
		_ = member.Send(env)
	}

	// I hear what I say.
	if env.Type == schemas.TypeChat && !senderIncluded {
		_ = sender.Send(env)
	}
}

// appendHistory stores a chat message with its addresses rewritten to
// display nicknames, so replay never re-resolves identities that may
// have changed nick since.
func (room *Room) appendHistory(env schemas.Envelope) {
	stored := env.Clone()
	for _, address := range []schemas.Address{stored.From, stored.To} {
		for name, ids := range address {
			for i, id := range ids {
				if validation.IsResourceID(id) {
					ids[i] = room.registry.NickFor(id)
				}
			}
			address[name] = ids
		}
	}

	room.mu.Lock()
	room.history = append(room.history, stored)
	if len(room.history) > maxStoredHistory {
		room.history = room.history[len(room.history)-maxStoredHistory:]
	}
	room.mu.Unlock()
}

// runCommand handles in-band control commands. Commands never reach
// history or the other members except as userinfo updates.
func (room *Room) runCommand(text string, sender *Session) {
	switch {
	case strings.HasPrefix(text, "/nick "):
		candidate := strings.TrimSpace(text[len("/nick "):])
		if room.isNickAvailable(candidate) {
			sender.User.SetNick(candidate)
			room.broadcastUserinfo(sender)
			room.privateNotice(sender, fmt.Sprintf("<i>Your name is now %q</i>", candidate))
		} else {
			room.privateNotice(sender, "<i>Denied.</i>")
		}
	case strings.HasPrefix(text, "/status "):
		status := text[len("/status "):]
		sender.User.SetStatus(status)
		room.broadcastUserinfo(sender)
		room.privateNotice(sender, fmt.Sprintf("<i>Your status is now %q</i>", status))
	}
}

// isNickAvailable applies the shape rules and the per-room uniqueness
// check against every member's username and nick.
func (room *Room) isNickAvailable(candidate string) bool {
	if validation.ValidateNick(candidate) != nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	for _, member := range room.members {
		info := member.User.PublicInfo()
		if info.Username == candidate || info.Nick == candidate {
			return false
		}
	}
	return true
}

func (room *Room) broadcastUserinfo(subject *Session) {
	info := subject.User.PublicInfo()
	to := schemas.SingleRoom(room.name, info.ResourceID)

	room.mu.Lock()
	members := append([]*Session(nil), room.members...)
	room.mu.Unlock()

	for _, member := range members {
		_ = member.Send(room.serverEnvelope(schemas.TypeUpdateUserinfo, to, info))
	}
}

func (room *Room) privateNotice(s *Session, text string) {
	to := schemas.SingleRoom(room.name, s.User.ResourceID)
	_ = s.Send(room.serverEnvelope(schemas.TypeChat, to, text))
}

func chatText(env schemas.Envelope) (string, bool) {
	payload, err := schemas.DecodePayload(env)
	if err != nil {
		return "", false
	}
	text, ok := payload.(schemas.ChatPayload)
	return string(text), ok
}
