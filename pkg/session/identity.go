package session

import (
	"context"
	"sync"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// UserLookup is the slice of the data store the identity resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// Identity resolves the user bound to one request's session. The lookup runs
// at most once; later calls return the cached result until Reset.
type Identity struct {
	users UserLookup
	sess  *model.Session

	mu       sync.Mutex
	resolved bool
	user     *model.User
	err      error
}

// NewIdentity creates a resolver for sess.
func NewIdentity(users UserLookup, sess *model.Session) *Identity {
	return &Identity{users: users, sess: sess}
}

// Session returns the session record this identity resolves.
func (i *Identity) Session() *model.Session {
	return i.sess
}

// Resolve returns the bound user, or nil for an anonymous session. A session
// bound to a user that no longer exists resolves to nil.
func (i *Identity) Resolve(ctx context.Context) (*model.User, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.resolved {
		return i.user, i.err
	}
	i.resolved = true
	if i.sess == nil || !i.sess.Authenticated() {
		return nil, nil
	}
	i.user, i.err = i.users.GetUserByID(ctx, i.sess.UserID)
	return i.user, i.err
}

// Reset drops the cached result. Call it after the session binding changes.
func (i *Identity) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.resolved = false
	i.user = nil
	i.err = nil
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
