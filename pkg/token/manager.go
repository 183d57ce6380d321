// Package token issues and checks the opaque auth tokens that chat clients
// present to a websocket backend.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
)

// ErrAnonymous is returned by IssueToken when no user is given.
var ErrAnonymous = errors.New("token: no authenticated user")

// Users is the slice of the data store the manager needs.
type Users interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByAuthToken(ctx context.Context, token string) (*model.User, error)
	SetUserAuthToken(ctx context.Context, userID int64, token string, issuedAt time.Time) error
}

// Sessions persists a session after RememberName changes it.
type Sessions interface {
	Save(ctx context.Context, sess *model.Session) error
}

// Identity is what a client learns about itself before opening a socket.
// Exactly one of AuthToken and Name is meaningful.
type Identity struct {
	AuthToken string `json:"auth_token,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Authenticated reports whether the identity carries a token.
func (i Identity) Authenticated() bool {
	return i.AuthToken != ""
}

// lockShards is the number of mutexes user IDs are spread over.
const lockShards = 64

// Manager issues tokens. Issuance is serialized per user so a concurrent
// reader sees either the previous or the new token, never a mix. Users share
// a fixed set of lock shards, so memory does not grow with the user count.
type Manager struct {
	users    Users
	sessions Sessions
	now      func() time.Time
	generate func() (string, error)

	locks [lockShards]sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the issue-time clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithGenerator overrides the random token source.
func WithGenerator(gen func() (string, error)) Option {
	return func(m *Manager) { m.generate = gen }
}

// NewManager creates a Manager.
func NewManager(users Users, sessions Sessions, opts ...Option) *Manager {
	m := &Manager{
		users:    users,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
		generate: crypto.GenerateToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lockFor(userID int64) *sync.Mutex {
	return &m.locks[uint64(userID)%lockShards] //nolint:gosec // wraparound only picks a shard
}

// IssueToken generates a fresh token for u, replacing any previous one, and
// returns it. The previous token stops authenticating immediately.
func (m *Manager) IssueToken(ctx context.Context, u *model.User) (string, error) {
	if u == nil {
		return "", ErrAnonymous
	}

	l := m.lockFor(u.ID)
	l.Lock()
	defer l.Unlock()

	tok, err := m.generate()
	if err != nil {
		return "", fmt.Errorf("token: issue: %w", err)
	}
	issuedAt := m.now()
	if err := m.users.SetUserAuthToken(ctx, u.ID, tok, issuedAt); err != nil {
		return "", fmt.Errorf("token: issue: %w", err)
	}
	u.AuthToken = tok
	u.AuthTokenIssuedAt = issuedAt

	slog.Debug("auth token issued", "user_id", u.ID)
	return tok, nil
}

// CurrentIdentity returns the bound user's live token, or the session's
// remembered name for an anonymous session. It never issues a token; a bound
// user without one gets an empty identity.
func (m *Manager) CurrentIdentity(ctx context.Context, sess *model.Session) (Identity, error) {
	if sess == nil {
		return Identity{}, nil
	}
	if !sess.Authenticated() {
		return Identity{Name: sess.Name}, nil
	}

	l := m.lockFor(sess.UserID)
	l.Lock()
	defer l.Unlock()

	u, err := m.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("token: current identity: %w", err)
	}
	if u == nil {
		return Identity{Name: sess.Name}, nil
	}
	return Identity{AuthToken: u.AuthToken}, nil
}

// RememberName stores name on the session for anonymous chat participation.
// An empty name leaves the session untouched.
func (m *Manager) RememberName(ctx context.Context, sess *model.Session, name string) error {
	if name == "" || sess == nil {
		return nil
	}
	sess.Name = name
	if m.sessions == nil {
		return nil
	}
	if err := m.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("token: remember name: %w", err)
	}
	return nil
}

// Authenticate maps a presented token back to its user. Only the most
// recently issued token of a user matches; anything else yields (nil, nil).
func (m *Manager) Authenticate(ctx context.Context, tok string) (*model.User, error) {
	if tok == "" {
		return nil, nil
	}
	u, err := m.users.GetUserByAuthToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("token: authenticate: %w", err)
	}
	if u == nil || !crypto.TokensEqual(u.AuthToken, tok) {
		return nil, nil
	}
	return u, nil
}
