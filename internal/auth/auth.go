// Package auth runs the authorization check for new connections. The
// relay treats the backend as an opaque pass/fail collaborator keyed by
// credentials; a failed check is fatal to the connection.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursechat/coursechat/internal/crypto"
	"github.com/coursechat/coursechat/internal/dal"
	"github.com/coursechat/coursechat/internal/schemas"
)

// okBody is the exact webhook response meaning "authorized". Anything
// else is a denial whose body is forwarded to the client verbatim.
const okBody = "OK"

// Denial is a rejected check. Cause reaches the client untouched.
type Denial struct {
	Cause string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("authorization denied: %s", d.Cause)
}

// Authenticator validates the credentials from an authorize-reply.
// A nil return admits the connection; *Denial rejects it.
type Authenticator interface {
	Check(ctx context.Context, creds schemas.Credentials) error
}

// AllowAll admits every connection; used when no backend is configured.
type AllowAll struct{}

func (AllowAll) Check(context.Context, schemas.Credentials) error { return nil }

// Webhook posts credentials to an external HTTP endpoint.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook builds a webhook check with a bounded request timeout.
func NewWebhook(endpoint string) *Webhook {
	return &Webhook{
		URL:    endpoint,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *Webhook) Check(ctx context.Context, creds schemas.Credentials) error {
	form := url.Values{
		"type":     {"12"},
		"username": {creds.Username},
		"userkey":  {creds.Password},
		"courseid": {creds.CourseID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build authentication request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("call authentication backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read authentication response: %w", err)
	}
	if string(body) == okBody {
		return nil
	}
	return &Denial{Cause: string(body)}
}

// Local checks credentials against the sqlite account store.
type Local struct {
	DB *sql.DB
}

func (l *Local) Check(_ context.Context, creds schemas.Credentials) error {
	account, err := dal.GetAccountByUsername(l.DB, creds.Username)
	if err != nil {
		return &Denial{Cause: "unknown user"}
	}
	if crypto.CompareHashAndPassword(account.Password, creds.Password) != nil {
		return &Denial{Cause: "invalid credentials"}
	}
	return nil
}
