// Package server implements the gochat HTTP front end.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/NicolasHaas/gochat/pkg/dispatch"
	"github.com/NicolasHaas/gochat/pkg/logging"
	"github.com/NicolasHaas/gochat/pkg/session"
	"github.com/NicolasHaas/gochat/pkg/store"
	"github.com/NicolasHaas/gochat/pkg/token"
)

// Config holds server configuration.
type Config struct {
	HTTPAddr      string        // HTTP bind address (e.g. ":4567")
	DBPath        string        // SQLite database path
	SingleServer  bool          // every channel shares one websocket endpoint
	WebsocketPort string        // shared websocket port in single-server mode
	EnvPort       string        // fallback port, normally $PORT
	Sessions      string        // "memory" or "redis"
	RedisAddr     string        // Redis address when Sessions is "redis"
	SessionTTL    time.Duration // idle session lifetime
	CookieName    string        // session cookie name
	CookieSecure  bool          // mark the session cookie Secure
	ChannelsFile  string        // YAML file defining channels to import on startup
	LoginRate     int           // login attempts per minute per client IP (0 = unlimited)
	MetricsLog    time.Duration // periodic metrics log interval (0 = disabled)
	LogLevel      string
	LogFormat     string

	// CLI-only actions (run and exit)
	ExportUsers    bool // export all users as YAML and exit
	ExportChannels bool // export all channels as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:     ":4567",
		DBPath:       "gochat.db",
		Sessions:     "memory",
		RedisAddr:    "localhost:6379",
		SessionTTL:   session.DefaultTTL,
		CookieName:   "gochat_session",
		LoginRate:    10,
		MetricsLog:   60 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
		SingleServer: true,
	}
}

// Topology returns the deployment topology described by the config.
func (c Config) Topology() dispatch.Topology {
	return dispatch.NewTopology(c.SingleServer, c.WebsocketPort, c.EnvPort)
}

// Validate rejects unusable configurations.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("server: config: http address must not be empty")
	}
	if err := c.Topology().Validate(); err != nil {
		return fmt.Errorf("server: config: %w", err)
	}
	switch c.Sessions {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("server: config: redis sessions need a redis address")
		}
	default:
		return fmt.Errorf("server: config: unknown session store %q (valid: memory, redis)", c.Sessions)
	}
	if c.LoginRate < 0 {
		return fmt.Errorf("server: config: login rate must not be negative")
	}
	if c.CookieName == "" {
		return fmt.Errorf("server: config: cookie name must not be empty")
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		return fmt.Errorf("server: config: %w", err)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return fmt.Errorf("server: config: %w", err)
	}
	return nil
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store    store.DataStore
	Sessions session.Store
}

// Server is the gochat HTTP front end.
type Server struct {
	cfg      Config
	store    store.DataStore
	sessions session.Store
	resolver *dispatch.Resolver
	tokens   *token.Manager
	metrics  *Metrics
	limiter  *loginLimiter
	router   *mux.Router
	httpSrv  *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance. A nil Sessions dependency selects an
// in-memory session store.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	}
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		resolver: dispatch.NewResolver(cfg.Topology(), deps.Store),
		tokens:   token.NewManager(deps.Store, sessions),
		metrics:  NewMetrics(),
		limiter:  newLoginLimiter(cfg.LoginRate),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Resolver returns the channel endpoint resolver.
func (s *Server) Resolver() *dispatch.Resolver {
	return s.resolver
}

// Tokens returns the auth token manager.
func (s *Server) Tokens() *token.Manager {
	return s.tokens
}
