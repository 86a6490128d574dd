package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coursechat/coursechat/internal/crypto"
	"github.com/coursechat/coursechat/internal/dal"
	"github.com/coursechat/coursechat/internal/db"
	"github.com/coursechat/coursechat/internal/schemas"
)

func TestWebhookAccepts(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"type":     r.PostFormValue("type"),
			"username": r.PostFormValue("username"),
			"userkey":  r.PostFormValue("userkey"),
			"courseid": r.PostFormValue("courseid"),
		}
		_, _ = w.Write([]byte("OK"))
	}))
	t.Cleanup(srv.Close)

	w := NewWebhook(srv.URL)
	err := w.Check(context.Background(), schemas.Credentials{
		Username: "alice",
		Password: "secret",
		CourseID: "algebra-101",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	want := map[string]string{"type": "12", "username": "alice", "userkey": "secret", "courseid": "algebra-101"}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, form[k], v)
		}
	}
}

func TestWebhookDeniesVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User not enrolled in this course"))
	}))
	t.Cleanup(srv.Close)

	err := NewWebhook(srv.URL).Check(context.Background(), schemas.Credentials{Username: "alice"})
	var denial *Denial
	if !errors.As(err, &denial) {
		t.Fatalf("got %v, want a Denial", err)
	}
	if denial.Cause != "User not enrolled in this course" {
		t.Errorf("cause = %q, want the backend body verbatim", denial.Cause)
	}
}

func TestWebhookRejectsAlmostOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK\n"))
	}))
	t.Cleanup(srv.Close)

	err := NewWebhook(srv.URL).Check(context.Background(), schemas.Credentials{Username: "alice"})
	if err == nil {
		t.Fatal("a body other than exactly OK must be a denial")
	}
}

func TestWebhookTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // force a connection error

	err := NewWebhook(srv.URL).Check(context.Background(), schemas.Credentials{Username: "alice"})
	if err == nil {
		t.Fatal("transport errors must fail the check")
	}
	var denial *Denial
	if errors.As(err, &denial) {
		t.Error("transport errors are not denials, they have no backend cause")
	}
}

func TestLocalCheck(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "accounts.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	hashed, err := crypto.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := dal.CreateAccount(database, "alice", hashed); err != nil {
		t.Fatalf("create account: %v", err)
	}

	local := &Local{DB: database}
	if err := local.Check(context.Background(), schemas.Credentials{Username: "alice", Password: "hunter2"}); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}

	err = local.Check(context.Background(), schemas.Credentials{Username: "alice", Password: "wrong"})
	var denial *Denial
	if !errors.As(err, &denial) {
		t.Fatalf("wrong password: got %v, want a Denial", err)
	}

	err = local.Check(context.Background(), schemas.Credentials{Username: "nobody", Password: "hunter2"})
	if !errors.As(err, &denial) {
		t.Fatalf("unknown user: got %v, want a Denial", err)
	}
	if !strings.Contains(denial.Cause, "unknown user") {
		t.Errorf("cause = %q", denial.Cause)
	}
}

func TestAllowAll(t *testing.T) {
	if err := (AllowAll{}).Check(context.Background(), schemas.Credentials{}); err != nil {
		t.Errorf("AllowAll.Check = %v", err)
	}
}
