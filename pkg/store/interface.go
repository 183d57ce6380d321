package store

import (
	"context"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// DataStore defines the persistence interface for users, channels, and bans.
// Implementations include the default SQLite store and an in-memory store for
// tests. Lookups return (nil, nil) when the record does not exist; mutations of
// a missing record return model.ErrNotFound.
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Users ----

	// CreateUser validates and inserts u, assigning its ID and CreatedAt.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// GetUserByAuthToken retrieves the user whose current auth token is token.
	GetUserByAuthToken(ctx context.Context, token string) (*model.User, error)

	// UpdateUser replaces the mutable attributes of u, including its channel-admin grants.
	UpdateUser(ctx context.Context, u *model.User) error

	// SetUserAuthToken overwrites the user's auth token and issue time in one write.
	SetUserAuthToken(ctx context.Context, userID int64, token string, issuedAt time.Time) error

	// DeleteUser removes a user. It returns model.ErrEndOfWorld if the user is the last one.
	DeleteUser(ctx context.Context, id int64) error

	// ListUsers returns all users ordered by ID.
	ListUsers(ctx context.Context) ([]model.User, error)

	// CountUsers returns the number of users.
	CountUsers(ctx context.Context) (int, error)

	// ---- Channels ----

	// CreateChannel validates and inserts ch, assigning its ID and CreatedAt.
	CreateChannel(ctx context.Context, ch *model.Channel) error

	// UpdateChannel replaces the mutable attributes of ch, including its admin list.
	UpdateChannel(ctx context.Context, ch *model.Channel) error

	// SetChannelBackend reassigns the backend server of a channel in one write.
	SetChannelBackend(ctx context.Context, id int64, backendServer string) error

	// DeleteChannel deletes a channel by ID.
	DeleteChannel(ctx context.Context, id int64) error

	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, id int64) (*model.Channel, error)

	// GetChannelByPermalink retrieves a channel by permalink.
	GetChannelByPermalink(ctx context.Context, permalink string) (*model.Channel, error)

	// ListChannels returns all channels ordered by ID.
	ListChannels(ctx context.Context) ([]model.Channel, error)

	// ---- Bans ----

	// CreateBan validates and inserts b, assigning its ID and CreatedAt.
	CreateBan(ctx context.Context, b *model.Ban) error

	// GetBan retrieves a ban by ID.
	GetBan(ctx context.Context, id int64) (*model.Ban, error)

	// UpdateBan replaces the mutable attributes of b.
	UpdateBan(ctx context.Context, b *model.Ban) error

	// DeleteBan deletes a ban by ID.
	DeleteBan(ctx context.Context, id int64) error

	// ListBans returns all bans ordered by ID.
	ListBans(ctx context.Context) ([]model.Ban, error)

	// IsUserBanned checks if a user ID is currently banned.
	IsUserBanned(ctx context.Context, userID int64) (bool, error)

	// IsIPBanned checks if an IP address is currently banned.
	IsIPBanned(ctx context.Context, ip string) (bool, error)
}

// Compile-time check: *Store implements DataStore.
var _ DataStore = (*Store)(nil)
