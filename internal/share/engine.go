// Package share implements the object-sharing protocol: the
// offer/accept/decline handshake that mirrors a local component onto a
// peer, and the event relay that keeps the two sides in step.
package share

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coursechat/coursechat/internal/eventlog"
	"github.com/coursechat/coursechat/internal/schemas"
)

// Surface is the render collaborator: it instantiates named component
// types for incoming reflections and resolves already-present anchors.
// Implementations act as a capability registry; Invoke must reject action
// names the component does not advertise.
type Surface interface {
	Instantiate(componentType, id string) (Component, error)
	Lookup(id string) (Component, bool)
	Release(id string)
}

// Component is one interactive widget the surface manages.
type Component interface {
	Invoke(action string, params eventlog.Params) error
}

// Sender posts addressed messages on the caller's behalf.
type Sender interface {
	Send(to schemas.Address, typ schemas.MessageType, payload any, public bool) error
}

// OfferPolicy decides whether an incoming share offer is accepted.
type OfferPolicy func(from schemas.Address, offer schemas.SharePayload) bool

var (
	ErrNoPeers       = errors.New("share offer needs at least one target peer")
	ErrUnknownAnchor = errors.New("no attachable component with that id")
)

// SharedObject is one side of a live share. The reflection side carries
// the peer's anchor id in RemoteID; StartTime gates the event relay.
type SharedObject struct {
	ID            string
	RemoteID      string
	ComponentType string
	Events        []schemas.EventBinding
	IsReflection  bool
	SharedWith    schemas.Address
	ResponseID    string
	StartTime     time.Time
}

// Engine drives the sharing state machine for one client session.
//
// It subscribes to the event log so every locally recorded interaction
// triggers a relay check; CheckEventQueue may also be called explicitly.
type Engine struct {
	mu          sync.Mutex
	log         *eventlog.Log
	surface     Surface
	sender      Sender
	policy      OfferPolicy
	shared      []*SharedObject
	mirrors     map[string]Component
	pending     map[string]schemas.Attachable
	reflections int
	cursor      int
}

// NewEngine wires an engine to its event log, render surface and sender.
// Incoming offers are declined until AcceptOffers installs a policy.
func NewEngine(l *eventlog.Log, surface Surface, sender Sender) *Engine {
	e := &Engine{
		log:     l,
		surface: surface,
		sender:  sender,
		mirrors: make(map[string]Component),
		pending: make(map[string]schemas.Attachable),
	}
	l.Subscribe(e.CheckEventQueue)
	return e
}

// AcceptOffers installs the decision callback for incoming share offers.
func (e *Engine) AcceptOffers(policy OfferPolicy) {
	e.mu.Lock()
	e.policy = policy
	e.mu.Unlock()
}

// Offer posts a share offer for the given anchor to the chosen peers and
// returns the correlation id the responses will carry.
func (e *Engine) Offer(anchorID string, to schemas.Address) (string, error) {
	peers := 0
	for _, ids := range to {
		peers += len(ids)
	}
	if peers == 0 {
		return "", ErrNoPeers
	}
	attachable, ok := e.log.Attachable(anchorID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAnchor, anchorID)
	}

	msgid := uuid.NewString()
	e.mu.Lock()
	e.pending[msgid] = attachable
	e.mu.Unlock()

	payload := schemas.SharePayload{Attachable: attachable, MsgID: msgid}
	if err := e.sender.Send(to, schemas.TypeShare, payload, false); err != nil {
		e.mu.Lock()
		delete(e.pending, msgid)
		e.mu.Unlock()
		return "", err
	}
	return msgid, nil
}

// HandleShare processes an incoming offer: consult the policy, build the
// mirror on accept, and answer the offerer either way.
func (e *Engine) HandleShare(from schemas.Address, offer schemas.SharePayload) error {
	e.mu.Lock()
	policy := e.policy
	e.mu.Unlock()

	if policy == nil || !policy(from, offer) {
		return e.respond(from, offer.ID, offer.MsgID, false)
	}

	e.mu.Lock()
	id := fmt.Sprintf("reflection-%d", e.reflections)
	e.reflections++
	e.mu.Unlock()

	mirror, err := e.surface.Instantiate(offer.ComponentType, id)
	if err != nil {
		log.Printf("share: instantiate %s mirror: %v", offer.ComponentType, err)
		return e.respond(from, offer.ID, offer.MsgID, false)
	}

	e.mu.Lock()
	e.shared = append(e.shared, &SharedObject{
		ID:            id,
		RemoteID:      offer.ID,
		ComponentType: offer.ComponentType,
		Events:        append([]schemas.EventBinding(nil), offer.Events...),
		IsReflection:  true,
		SharedWith:    from.Clone(),
		StartTime:     time.Now(),
	})
	e.mirrors[id] = mirror
	e.mu.Unlock()

	return e.respond(from, offer.ID, offer.MsgID, true)
}

func (e *Engine) respond(to schemas.Address, id, responseID string, accepted bool) error {
	return e.sender.Send(to, schemas.TypeResponse, schemas.ResponsePayload{
		ID:         id,
		Reflection: false,
		ResponseID: responseID,
		Response:   accepted,
	}, false)
}

// HandleResponse processes a peer's answer to an offer, or a close
// notice for an established share.
func (e *Engine) HandleResponse(from schemas.Address, resp schemas.ResponsePayload) {
	if resp.Response {
		e.mu.Lock()
		attachable, ok := e.pending[resp.ResponseID]
		if !ok || attachable.ID != resp.ID {
			e.mu.Unlock()
			return
		}
		e.shared = append(e.shared, &SharedObject{
			ID:            attachable.ID,
			ComponentType: attachable.ComponentType,
			Events:        append([]schemas.EventBinding(nil), attachable.Events...),
			IsReflection:  false,
			SharedWith:    from.Clone(),
			ResponseID:    resp.ResponseID,
			StartTime:     time.Now(),
		})
		e.mu.Unlock()
		return
	}

	// Decline or close. Resolve the local twin; absence means the share
	// is already gone and the notice is a no-op. The pending entry stays:
	// one offer may address several peers, and a decline from one must
	// not cancel a later accept from another.
	e.mu.Lock()
	removed := e.removeLocked(func(so *SharedObject) bool {
		if resp.Reflection {
			return so.IsReflection && so.RemoteID == resp.ID
		}
		return !so.IsReflection && so.ID == resp.ID
	})
	e.mu.Unlock()

	for _, so := range removed {
		if so.IsReflection {
			e.surface.Release(so.ID)
		}
	}
}

// HandleEvent applies a relayed interaction to the matching local twin.
// Events for anchors with no active share are dropped silently.
func (e *Engine) HandleEvent(from schemas.Address, ev schemas.EventPayload) {
	params := eventlog.Params(ev.Params)
	senderID := params.SenderID()

	e.mu.Lock()
	var match *SharedObject
	for _, so := range e.shared {
		if ev.Reflection {
			// The reflection side reported; we hold the anchor.
			if !so.IsReflection && so.ID == senderID {
				match = so
				break
			}
		} else if so.IsReflection && so.RemoteID == senderID {
			match = so
			break
		}
	}
	var target Component
	if match != nil && match.IsReflection {
		target = e.mirrors[match.ID]
	}
	e.mu.Unlock()

	if match == nil {
		return
	}
	if target == nil {
		var ok bool
		target, ok = e.surface.Lookup(senderID)
		if !ok {
			return
		}
	}

	replay := params.Clone()
	replay[eventlog.ParamRemoteCommand] = true
	if err := target.Invoke(ev.Action, replay); err != nil {
		log.Printf("share: invoke %s on %s: %v", ev.Action, senderID, err)
	}
}

// CheckEventQueue advances the relay cursor and forwards every new log
// entry that belongs to an active share and postdates its acceptance.
// Each entry reaches a given peer at most once regardless of how often
// the check runs.
func (e *Engine) CheckEventQueue() {
	type outbound struct {
		to      schemas.Address
		payload schemas.EventPayload
	}

	e.mu.Lock()
	entries, next := e.log.ReadSince(e.cursor)
	e.cursor = next

	var queue []outbound
	for _, entry := range entries {
		senderID := entry.Params.SenderID()
		for _, so := range e.shared {
			if so.ID != senderID {
				continue
			}
			if !entry.TimeStamp.After(so.StartTime) {
				continue
			}
			action := actionFor(so.Events, entry.Type)
			if action == "" {
				continue
			}
			params := entry.Params.Clone()
			if so.IsReflection {
				params[eventlog.ParamSenderID] = so.RemoteID
			}
			queue = append(queue, outbound{
				to: so.SharedWith.Clone(),
				payload: schemas.EventPayload{
					Action:        action,
					Params:        params,
					ComponentType: so.ComponentType,
					Reflection:    so.IsReflection,
					TimeStamp:     entry.TimeStamp,
				},
			})
		}
	}
	e.mu.Unlock()

	for _, out := range queue {
		if err := e.sender.Send(out.to, schemas.TypeEvent, out.payload, false); err != nil {
			log.Printf("share: relay event: %v", err)
		}
	}
}

// Close tears down every share anchored at the given local id and sends
// the peers a close notice so they drop their twins. Closing an id with
// no active share is a no-op. The anchor's outstanding offer, if any, is
// withdrawn so stragglers can no longer accept it.
func (e *Engine) Close(localID string) error {
	e.mu.Lock()
	for msgid, attachable := range e.pending {
		if attachable.ID == localID {
			delete(e.pending, msgid)
		}
	}
	removed := e.removeLocked(func(so *SharedObject) bool {
		return so.ID == localID
	})
	e.mu.Unlock()

	var firstErr error
	for _, so := range removed {
		if so.IsReflection {
			e.surface.Release(so.ID)
		}
		wireID := so.ID
		if so.IsReflection {
			wireID = so.RemoteID
		}
		err := e.sender.Send(so.SharedWith, schemas.TypeResponse, schemas.ResponsePayload{
			ID:         wireID,
			Reflection: !so.IsReflection,
			Response:   false,
		}, false)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseAll closes every active share; called when the session ends.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.shared))
	for _, so := range e.shared {
		ids = append(ids, so.ID)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.Close(id); err != nil {
			log.Printf("share: close %s: %v", id, err)
		}
	}
}

// Shared returns a snapshot of the active shares.
func (e *Engine) Shared() []SharedObject {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SharedObject, 0, len(e.shared))
	for _, so := range e.shared {
		copied := *so
		copied.SharedWith = so.SharedWith.Clone()
		copied.Events = append([]schemas.EventBinding(nil), so.Events...)
		out = append(out, copied)
	}
	return out
}

// removeLocked deletes and returns every share matching the predicate.
// Caller holds e.mu.
func (e *Engine) removeLocked(match func(*SharedObject) bool) []*SharedObject {
	var removed []*SharedObject
	kept := e.shared[:0]
	for _, so := range e.shared {
		if match(so) {
			removed = append(removed, so)
			if so.IsReflection {
				delete(e.mirrors, so.ID)
			}
			continue
		}
		kept = append(kept, so)
	}
	e.shared = kept
	return removed
}

func actionFor(events []schemas.EventBinding, eventType string) string {
	for _, binding := range events {
		if binding.EventType == eventType {
			return binding.Action
		}
	}
	return ""
}
