// Package eventlog records UI interaction events in arrival order and
// tracks which local components are eligible for sharing.
//
// The log is process-wide state independent of any room or session:
// consumers read it through monotonic cursors and never mutate entries.
package eventlog

import (
	"sync"
	"time"

	"github.com/coursechat/coursechat/internal/schemas"
)

const (
	// ParamSenderID names the component an event originated from.
	ParamSenderID = "senderID"
	// ParamRemoteCommand marks an event that was replayed from a peer.
	// Such events are never logged, so they are never forwarded back.
	ParamRemoteCommand = "remoteCommand"
)

// Params carries the free-form arguments of an interaction event.
type Params map[string]any

// SenderID returns the originating component id, if set.
func (p Params) SenderID() string {
	s, _ := p[ParamSenderID].(string)
	return s
}

// IsRemote reports whether the event was injected by a remote peer.
func (p Params) IsRemote() bool {
	remote, _ := p[ParamRemoteCommand].(bool)
	return remote
}

// Clone returns a shallow copy safe for senderID rewriting.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Entry is one recorded interaction event. Entries are append-only and
// never mutated after insertion.
type Entry struct {
	Type      string
	Params    Params
	TimeStamp time.Time
}

// Log is the shared event record plus the attachable registry. Listeners
// registered with Subscribe are invoked after every append; the sharing
// engine uses this as its "check event queue" tick.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	attached  []schemas.Attachable
	listeners []func()
}

func New() *Log {
	return &Log{}
}

// Append records an event unless it is marked as a remote command.
// Reports whether the entry was stored.
func (l *Log) Append(eventType string, params Params) bool {
	if params.IsRemote() {
		return false
	}
	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		Type:      eventType,
		Params:    params,
		TimeStamp: time.Now(),
	})
	listeners := append([]func(){}, l.listeners...)
	l.mu.Unlock()

	for _, notify := range listeners {
		notify()
	}
	return true
}

// ReadSince returns the entries recorded at or after cursor, along with
// the cursor positioned past them. A consumer that stores the returned
// cursor observes every entry exactly once, in log order.
func (l *Log) ReadSince(cursor int) ([]Entry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(l.entries) {
		return nil, len(l.entries)
	}
	entries := append([]Entry(nil), l.entries[cursor:]...)
	return entries, len(l.entries)
}

// TotalCount returns the number of recorded entries.
func (l *Log) TotalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe registers a callback fired after each append.
func (l *Log) Subscribe(fn func()) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Announce registers a shareable component. Re-announcing an id replaces
// its descriptor.
func (l *Log) Announce(a schemas.Attachable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.attached {
		if l.attached[i].ID == a.ID {
			l.attached[i] = a
			return
		}
	}
	l.attached = append(l.attached, a)
}

// Detach removes a component from the attachable registry.
func (l *Log) Detach(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.attached {
		if l.attached[i].ID == id {
			l.attached = append(l.attached[:i], l.attached[i+1:]...)
			return
		}
	}
}

// Attachable looks up one registered component by id.
func (l *Log) Attachable(id string) (schemas.Attachable, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.attached {
		if a.ID == id {
			return a, true
		}
	}
	return schemas.Attachable{}, false
}

// Attachables lists every registered component.
func (l *Log) Attachables() []schemas.Attachable {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]schemas.Attachable(nil), l.attached...)
}
