// Package session stores the server-side session records behind the session
// cookie and resolves the user bound to a session.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// DefaultTTL is the idle lifetime of a session.
const DefaultTTL = 14 * 24 * time.Hour

// ErrUnavailable is returned when the backing session store cannot be reached.
var ErrUnavailable = errors.New("session: store unavailable")

// Store persists session records by key. Load returns (nil, nil) for an
// unknown or expired key. Every successful Load or Save restarts the idle TTL.
type Store interface {
	Load(ctx context.Context, key string) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh random session key.
func NewKey() string {
	return uuid.NewString()
}

// New returns an empty anonymous session with a fresh key.
func New() *model.Session {
	return &model.Session{Key: NewKey()}
}
