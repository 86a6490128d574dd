package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/websocket"

	"github.com/coursechat/coursechat/internal/auth"
	"github.com/coursechat/coursechat/internal/db"
	"github.com/coursechat/coursechat/internal/middleware"
	"github.com/coursechat/coursechat/internal/relay"
)

// Config carries everything CreateAndListen needs to stand up the relay.
type Config struct {
	Debug bool
	Host  string
	Port  int

	// AuthURL points at the external credential check. When empty the
	// local account store (LocalAuth) or an allow-all fallback is used.
	AuthURL   string
	LocalAuth bool
	DBPath    string

	// HistoryLength bounds how many stored messages a joining client
	// gets replayed.
	HistoryLength int

	TLSCert string
	TLSKey  string
}

func CreateAndListen(cfg Config) {
	authenticator, cleanup := buildAuthenticator(cfg)
	defer cleanup()

	registry := relay.NewRegistry()
	rooms := relay.NewRooms(registry, cfg.HistoryLength)
	h := relay.NewHandler(registry, rooms, authenticator, cfg.Debug)

	mux := http.NewServeMux()
	createRoutes(mux, h)

	// apply middlewares
	var handler http.Handler = mux
	if cfg.Debug {
		handler = middleware.DebugLogging(mux)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ReadHeaderTimeout: 500 * time.Millisecond,
		Handler:           handler,
	}

	// graceful shutdown channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// run server
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
		log.Println("Stopped serving new connections.")
	}()

	// recieve stop signals
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("http shutdown error: %v", err)
	}
	log.Println("Graceful shutdown complete.")
}

// buildAuthenticator picks the credential backend from the config. The
// returned cleanup closes the account database when one was opened.
func buildAuthenticator(cfg Config) (auth.Authenticator, func()) {
	if cfg.AuthURL != "" {
		log.Printf("authorizing against %s", cfg.AuthURL)
		return auth.NewWebhook(cfg.AuthURL), func() {}
	}
	if cfg.LocalAuth {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("error opening account database: %v", err)
		}
		log.Printf("authorizing against local account store (%s)", cfg.DBPath)
		return &auth.Local{DB: database}, func() { _ = database.Close() }
	}
	log.Println("WARNING: no auth backend configured, accepting all credentials")
	return auth.AllowAll{}, func() {}
}

// createRoutes creates the routing rules for the webserver
func createRoutes(mux *http.ServeMux, h *relay.Handler) {
	chatHandler := websocket.Server{
		Handshake: websocketHandshake,
		Handler:   h.HandleConn,
	}
	mux.Handle("GET /chat", chatHandler)
}

func websocketHandshake(_ *websocket.Config, _ *http.Request) error { return nil }
