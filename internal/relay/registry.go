package relay

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coursechat/coursechat/internal/schemas"
)

// ErrResourceIDCollision rejects a connection whose session token is
// already bound to a live session. The existing session is untouched.
var ErrResourceIDCollision = errors.New("resource ID collision")

// Registry is the session manager: it owns the live session table and
// the archive of disconnected user records.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by resourceID
	archive  map[string]*User    // keyed by lowercased username
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		archive:  make(map[string]*User),
	}
}

// Register admits an authorized connection: it restores the archived
// record for the username if one exists, binds the new resourceID and
// appends a login timestamp. A resourceID already held by a live
// session fails the new connection.
func (r *Registry) Register(creds schemas.Credentials, p *peer) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[creds.ResourceID]; exists {
		return nil, ErrResourceIDCollision
	}

	key := strings.ToLower(creds.Username)
	user, archived := r.archive[key]
	if archived {
		delete(r.archive, key)
	} else {
		user = &User{
			Username: creds.Username,
			Nick:     creds.Username,
		}
	}
	user.mu.Lock()
	user.ResourceID = creds.ResourceID
	user.CourseID = creds.CourseID
	user.Logins = append(user.Logins, time.Now())
	user.rooms = nil
	user.mu.Unlock()

	session := &Session{User: user, peer: p}
	r.sessions[creds.ResourceID] = session
	return session, nil
}

// Unregister archives the session's user record: the resourceID is
// released, room membership is cleared and a logout timestamp appended.
// Room leave broadcasts are the caller's concern.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.User.mu.Lock()
	delete(r.sessions, s.User.ResourceID)
	s.User.ResourceID = ""
	s.User.rooms = nil
	s.User.Logouts = append(s.User.Logouts, time.Now())
	key := strings.ToLower(s.User.Username)
	s.User.mu.Unlock()

	r.archive[key] = s.User
}

// Lookup resolves a live session by resourceID.
func (r *Registry) Lookup(resourceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[resourceID]
	return s, ok
}

// NickFor maps a resourceID to its current display nick. Values that do
// not look like a resourceID, or that no live session holds, pass
// through unchanged so history rewriting never loses information.
func (r *Registry) NickFor(resourceID string) string {
	if s, ok := r.Lookup(resourceID); ok {
		return s.User.CurrentNick()
	}
	return resourceID
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
