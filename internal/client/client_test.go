package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/coursechat/coursechat/internal/auth"
	"github.com/coursechat/coursechat/internal/eventlog"
	"github.com/coursechat/coursechat/internal/relay"
	"github.com/coursechat/coursechat/internal/schemas"
	"github.com/coursechat/coursechat/internal/share"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	registry := relay.NewRegistry()
	rooms := relay.NewRooms(registry, 20)
	h := relay.NewHandler(registry, rooms, auth.AllowAll{}, false)
	srv := httptest.NewServer(websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.HandleConn,
	})
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *httptest.Server, username string, handlers Handlers) *Client {
	t.Helper()
	c, err := Dial(srv.URL, schemas.Credentials{Username: username, CourseID: "algebra-101"}, handlers)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitAuthorized(ctx); err != nil {
		t.Fatalf("authorize %s: %v", username, err)
	}
	if err := c.Join("math"); err != nil {
		t.Fatalf("join: %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recordedChat struct {
	nick, text string
	history    bool
}

type chatRecorder struct {
	mu    sync.Mutex
	chats []recordedChat
}

func (r *chatRecorder) onChat(_ schemas.Address, nick, text string, history bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, recordedChat{nick: nick, text: text, history: history})
}

func (r *chatRecorder) find(text string) (recordedChat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.text == text {
			return c, true
		}
	}
	return recordedChat{}, false
}

func TestChatRoundTrip(t *testing.T) {
	srv := startRelay(t)
	var aliceChats, bobChats chatRecorder
	alice := connect(t, srv, "alice", Handlers{OnChat: aliceChats.onChat})
	connect(t, srv, "bob", Handlers{OnChat: bobChats.onChat})

	waitFor(t, "bob in alice's roster", func() bool { return len(alice.Roster("math")) == 2 })

	if err := alice.SendChat("math", "hello"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	waitFor(t, "bob to receive the chat", func() bool {
		_, ok := bobChats.find("hello")
		return ok
	})
	got, _ := bobChats.find("hello")
	if got.nick != "alice" {
		t.Errorf("nick = %q, want alice", got.nick)
	}
	waitFor(t, "alice's own echo", func() bool {
		_, ok := aliceChats.find("hello")
		return ok
	})
}

func TestVersionRequest(t *testing.T) {
	srv := startRelay(t)
	alice := connect(t, srv, "alice", Handlers{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := alice.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != relay.CurrentVersion {
		t.Errorf("version = %+v, want %+v", v, relay.CurrentVersion)
	}
}

type testComponent struct {
	mu      sync.Mutex
	actions []string
}

func (c *testComponent) Invoke(action string, _ eventlog.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *testComponent) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

type testSurface struct {
	mu      sync.Mutex
	anchors map[string]*testComponent
	mirrors map[string]*testComponent
}

func newTestSurface() *testSurface {
	return &testSurface{anchors: make(map[string]*testComponent), mirrors: make(map[string]*testComponent)}
}

func (s *testSurface) Instantiate(componentType, id string) (share.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &testComponent{}
	s.mirrors[id] = c
	return c, nil
}

func (s *testSurface) Lookup(id string) (share.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.anchors[id]
	return c, ok
}

func (s *testSurface) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mirrors, id)
}

func (s *testSurface) mirror(id string) *testComponent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirrors[id]
}

func TestShareAcrossRelay(t *testing.T) {
	srv := startRelay(t)

	bob := connect(t, srv, "bob", Handlers{})
	bobLog := eventlog.New()
	bobSurface := newTestSurface()
	bobAnchor := &testComponent{}
	bobSurface.anchors["geo-1"] = bobAnchor
	bobEngine := share.NewEngine(bobLog, bobSurface, bob)
	bob.AttachEngine(bobEngine)
	bobLog.Announce(schemas.Attachable{
		ID:            "geo-1",
		ComponentType: "geoboard",
		Events:        []schemas.EventBinding{{EventType: "move", Action: "applyMove"}},
	})

	alice := connect(t, srv, "alice", Handlers{})
	aliceLog := eventlog.New()
	aliceSurface := newTestSurface()
	aliceEngine := share.NewEngine(aliceLog, aliceSurface, alice)
	alice.AttachEngine(aliceEngine)
	aliceEngine.AcceptOffers(func(schemas.Address, schemas.SharePayload) bool { return true })

	waitFor(t, "alice in bob's roster", func() bool { return len(bob.Roster("math")) == 2 })

	if _, err := bobEngine.Offer("geo-1", schemas.SingleRoom("math", alice.ResourceID())); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	waitFor(t, "the handshake to settle on both sides", func() bool {
		return len(bobEngine.Shared()) == 1 && len(aliceEngine.Shared()) == 1
	})
	reflection := aliceEngine.Shared()[0]
	if !reflection.IsReflection || reflection.RemoteID != "geo-1" {
		t.Fatalf("alice's share = %+v", reflection)
	}

	// Bob moves the board; alice's mirror follows.
	bobLog.Append("move", eventlog.Params{eventlog.ParamSenderID: "geo-1", "x": 4})
	waitFor(t, "alice's mirror to be invoked", func() bool {
		mirror := aliceSurface.mirror(reflection.ID)
		return mirror != nil && mirror.count() == 1
	})

	// Alice moves her mirror; bob's anchor follows.
	aliceLog.Append("move", eventlog.Params{eventlog.ParamSenderID: reflection.ID})
	waitFor(t, "bob's anchor to be invoked", func() bool { return bobAnchor.count() == 1 })

	// Bob closes; alice's reflection disappears.
	if err := bobEngine.Close("geo-1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitFor(t, "alice's share to be torn down", func() bool { return len(aliceEngine.Shared()) == 0 })
}
