package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/rbac"
	"github.com/NicolasHaas/gochat/pkg/session"
)

// loginLimiter throttles login attempts per client IP.
type loginLimiter struct {
	perMinute int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterIdle is how long an unused per-IP limiter is kept.
const limiterIdle = 10 * time.Minute

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{perMinute: perMinute, limiters: make(map[string]*limiterEntry)}
}

// Allow reports whether ip may attempt another login now.
func (l *loginLimiter) Allow(ip string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.limiters[ip]
	if !ok {
		l.prune(now)
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.perMinute)/60, l.perMinute)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *loginLimiter) prune(now time.Time) {
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.limiters, ip)
		}
	}
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request once it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.Requests.Add(1)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// withSession loads the caller's session, creating one on first contact, and
// attaches a per-request identity resolver to the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *model.Session
		if c, err := r.Cookie(s.cfg.CookieName); err == nil && c.Value != "" {
			loaded, err := s.sessions.Load(r.Context(), c.Value)
			if err != nil {
				slog.Error("load session", "err", err)
				writeError(w, http.StatusInternalServerError, codeInternal)
				return
			}
			sess = loaded
		}
		if sess == nil {
			sess = session.New()
			if err := s.sessions.Save(r.Context(), sess); err != nil {
				slog.Error("create session", "err", err)
				writeError(w, http.StatusInternalServerError, codeInternal)
				return
			}
			s.metrics.SessionsCreated.Add(1)
			s.setSessionCookie(w, sess.Key)
		}

		id := session.NewIdentity(s.store, sess)
		next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// identity returns the request's identity resolver. withSession guarantees one.
func identity(r *http.Request) *session.Identity {
	return session.FromContext(r.Context())
}

// currentUser resolves the logged-in user, or nil.
func currentUser(r *http.Request) (*model.User, error) {
	return identity(r).Resolve(r.Context())
}

// isProgrammatic reports whether the caller is a script rather than a browser
// navigating pages.
func isProgrammatic(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authorize resolves the current user and runs the authorization gate. On
// denial it writes the response and returns false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, op rbac.Operation, target rbac.Target) (*model.User, bool) {
	u, err := currentUser(r)
	if err != nil {
		writeStoreError(w, r, err)
		return nil, false
	}

	d := rbac.Authorize(u, op, target)
	switch d.Reason() {
	case rbac.ReasonNone:
		return u, true
	case rbac.ReasonLoginRequired:
		s.metrics.LoginRequired.Add(1)
		s.loginRequired(w, r)
	default:
		s.metrics.Forbidden.Add(1)
		slog.Debug("request forbidden", "user_id", u.ID, "op", op, "resource", target.Resource, "rule", d.Rule())
		w.WriteHeader(http.StatusUnauthorized)
	}
	return nil, false
}

// loginRequired answers 401 to programmatic callers. Browsers are sent to the
// login page and brought back to the requested path afterwards.
func (s *Server) loginRequired(w http.ResponseWriter, r *http.Request) {
	if isProgrammatic(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	sess := identity(r).Session()
	sess.ReturnTo = r.URL.Path
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		slog.Error("save session", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	http.Redirect(w, r, "/auth", http.StatusFound)
}
