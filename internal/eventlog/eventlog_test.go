package eventlog

import (
	"testing"

	"github.com/coursechat/coursechat/internal/schemas"
)

func TestAppendAndReadSince(t *testing.T) {
	l := New()
	if !l.Append("move", Params{ParamSenderID: "geo-1"}) {
		t.Fatal("local append should be stored")
	}
	l.Append("rotate", Params{ParamSenderID: "geo-1"})

	entries, cursor := l.ReadSince(0)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Type != "move" || entries[1].Type != "rotate" {
		t.Errorf("entries out of order: %q, %q", entries[0].Type, entries[1].Type)
	}
	if cursor != 2 {
		t.Errorf("cursor = %d, want 2", cursor)
	}

	// Nothing new: same cursor back, no entries.
	entries, cursor = l.ReadSince(cursor)
	if len(entries) != 0 || cursor != 2 {
		t.Errorf("got %d entries, cursor %d", len(entries), cursor)
	}

	l.Append("move", Params{ParamSenderID: "geo-1"})
	entries, cursor = l.ReadSince(cursor)
	if len(entries) != 1 || cursor != 3 {
		t.Errorf("got %d entries, cursor %d, want 1 and 3", len(entries), cursor)
	}
}

func TestAppendSkipsRemoteCommands(t *testing.T) {
	l := New()
	if l.Append("move", Params{ParamSenderID: "geo-1", ParamRemoteCommand: true}) {
		t.Fatal("remote command must not be stored")
	}
	if l.TotalCount() != 0 {
		t.Errorf("TotalCount = %d, want 0", l.TotalCount())
	}
}

func TestSubscribeFiresAfterAppend(t *testing.T) {
	l := New()
	var seen int
	l.Subscribe(func() {
		// The entry must be visible to the listener.
		seen = l.TotalCount()
	})
	l.Append("move", Params{ParamSenderID: "geo-1"})
	if seen != 1 {
		t.Errorf("listener saw %d entries, want 1", seen)
	}
}

func TestSubscribeNotifiesEveryListener(t *testing.T) {
	l := New()
	var first, second int
	l.Subscribe(func() { first++ })
	l.Subscribe(func() { second++ })

	l.Append("move", Params{ParamSenderID: "geo-1"})
	l.Append("rotate", Params{ParamSenderID: "geo-1"})

	if first != 2 || second != 2 {
		t.Errorf("listeners fired %d and %d times, want 2 each", first, second)
	}
}

func TestAttachableRegistry(t *testing.T) {
	l := New()
	a := schemas.Attachable{ID: "geo-1", ComponentType: "geoboard"}
	l.Announce(a)
	l.Announce(schemas.Attachable{ID: "quiz-1", ComponentType: "quiz"})

	got, ok := l.Attachable("geo-1")
	if !ok || got.ComponentType != "geoboard" {
		t.Fatalf("Attachable(geo-1) = %+v, %v", got, ok)
	}

	// Re-announcing replaces in place.
	l.Announce(schemas.Attachable{ID: "geo-1", ComponentType: "geoboard-v2"})
	got, _ = l.Attachable("geo-1")
	if got.ComponentType != "geoboard-v2" {
		t.Errorf("re-announce did not replace: %+v", got)
	}
	if len(l.Attachables()) != 2 {
		t.Errorf("Attachables() = %d, want 2", len(l.Attachables()))
	}

	l.Detach("geo-1")
	if _, ok := l.Attachable("geo-1"); ok {
		t.Error("geo-1 should be gone after Detach")
	}
}
