// Package restapi serves the diagnostics API of a live bridge: its tables,
// recent events, metrics and a live log stream.
package restapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relativeprotocol/peerbridge/bridge"
	V "github.com/relativeprotocol/peerbridge/internal/version"
	"github.com/relativeprotocol/peerbridge/log"
)

// Server is the diagnostics HTTP server.
type Server struct {
	bridge *bridge.Bridge
	hub    *log.Hub
	token  string

	mu  sync.Mutex
	srv *http.Server
}

// New builds a server over b. hub may be nil, which disables /logs. A
// non-empty token requires "Authorization: Bearer <token>".
func New(b *bridge.Bridge, hub *log.Hub, token string) *Server {
	return &Server{bridge: b, hub: hub, token: token}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.authenticator)

	r.Get("/", hello)
	r.Get("/version", version)
	r.Get("/hosts", s.hosts)
	r.Get("/peers", s.peers)
	r.Get("/connects", s.connects)
	r.Get("/events", s.events)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.bridge.Registry(), promhttp.HandlerOpts{}))
	r.Get("/logs", s.logs)
	return r
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := s.prepare()
	log.Infow("diagnostics api listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.prepare()
	go func() {
		if err := s.Serve(ln); err != nil {
			log.Warnw("diagnostics api stopped", "err", err)
		}
	}()
	return ln.Addr(), nil
}

func (s *Server) prepare() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		s.srv = &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s.srv
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			// Browsers cannot set headers on websocket upgrades.
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, newError("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hello(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, render.M{"hello": V.Name})
}

func version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, render.M{"version": V.Version, "commit": V.GitCommit})
}

type apiError struct {
	Message string `json:"message"`
}

func newError(msg string) apiError {
	return apiError{Message: msg}
}
