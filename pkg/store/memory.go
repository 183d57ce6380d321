package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID    int64
	nextChannelID int64
	nextBanID     int64

	usersByID    map[int64]*model.User
	channelsByID map[int64]*model.Channel
	bansByID     map[int64]*model.Ban

	// channel_admins pairs, keyed by channel then user.
	admins map[int64]map[int64]bool
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:           now,
		nextUserID:    1,
		nextChannelID: 1,
		nextBanID:     1,
		usersByID:     make(map[int64]*model.User),
		channelsByID:  make(map[int64]*model.Channel),
		bansByID:      make(map[int64]*model.Ban),
		admins:        make(map[int64]map[int64]bool),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// ---- Users ----

func (s *MemoryStore) userByName(username string) *model.User {
	for _, u := range s.usersByID {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) channelsAdministeredBy(userID int64) []int64 {
	var ids []int64
	for chID, users := range s.admins {
		if users[userID] {
			ids = append(ids, chID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *MemoryStore) adminsOf(channelID int64) []int64 {
	var ids []int64
	for userID := range s.admins[channelID] {
		ids = append(ids, userID)
	}
	slices.Sort(ids)
	return ids
}

func (s *MemoryStore) grant(channelID, userID int64) {
	if s.admins[channelID] == nil {
		s.admins[channelID] = make(map[int64]bool)
	}
	s.admins[channelID][userID] = true
}

func (s *MemoryStore) copyUser(u *model.User) *model.User {
	cp := *u
	cp.AdminChannelIDs = s.channelsAdministeredBy(u.ID)
	return &cp
}

func (s *MemoryStore) checkUser(u *model.User) error {
	if other := s.userByName(u.Username); other != nil && other.ID != u.ID {
		errs := model.ValidationErrors{}
		errs.Add("name", msgTaken)
		return errs
	}
	for _, id := range u.AdminChannelIDs {
		if _, ok := s.channelsByID[id]; !ok {
			errs := model.ValidationErrors{}
			errs.Add("admin_channels", fmt.Sprintf("references unknown id %d", id))
			return errs
		}
	}
	return nil
}

// CreateUser creates a new user and assigns its ID.
func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUser(u); err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}

	u.ID = s.nextUserID
	s.nextUserID++
	u.CreatedAt = s.now().Truncate(time.Second)

	stored := *u
	stored.AdminChannelIDs = nil
	s.usersByID[u.ID] = &stored
	for _, chID := range u.AdminChannelIDs {
		s.grant(chID, u.ID)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *MemoryStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, nil
	}
	return s.copyUser(u), nil
}

// GetUserByUsername retrieves a user by username.
func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.userByName(username)
	if u == nil {
		return nil, nil
	}
	return s.copyUser(u), nil
}

// GetUserByAuthToken retrieves a user by their current auth token.
func (s *MemoryStore) GetUserByAuthToken(_ context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if u.AuthToken == token {
			return s.copyUser(u), nil
		}
	}
	return nil, nil
}

// UpdateUser replaces a user's name, password hash, admin flag, and channel grants.
func (s *MemoryStore) UpdateUser(_ context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[u.ID]
	if !ok {
		return fmt.Errorf("store: update user: %w", model.ErrNotFound)
	}
	if err := s.checkUser(u); err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}

	existing.Username = u.Username
	existing.PasswordHash = u.PasswordHash
	existing.Admin = u.Admin
	for _, users := range s.admins {
		delete(users, u.ID)
	}
	for _, chID := range u.AdminChannelIDs {
		s.grant(chID, u.ID)
	}
	return nil
}

// SetUserAuthToken overwrites the user's auth token and issue time.
func (s *MemoryStore) SetUserAuthToken(_ context.Context, userID int64, token string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("store: set auth token: %w", model.ErrNotFound)
	}
	if token != "" {
		for id, other := range s.usersByID {
			if id != userID && other.AuthToken == token {
				return fmt.Errorf("store: set auth token: token already in use")
			}
		}
	}
	u.AuthToken = token
	if issuedAt.IsZero() {
		u.AuthTokenIssuedAt = time.Time{}
	} else {
		u.AuthTokenIssuedAt = issuedAt.UTC().Truncate(time.Second)
	}
	return nil
}

// DeleteUser removes a user unless it is the last one.
func (s *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return fmt.Errorf("store: delete user: %w", model.ErrNotFound)
	}
	if len(s.usersByID) <= 1 {
		return fmt.Errorf("store: delete user: %w", model.ErrEndOfWorld)
	}
	delete(s.usersByID, id)
	for _, users := range s.admins {
		delete(users, id)
	}
	return nil
}

// ListUsers returns all users ordered by ID.
func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, *s.copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CountUsers returns the number of users.
func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByID), nil
}

// ---- Channels ----

func (s *MemoryStore) copyChannel(ch *model.Channel) *model.Channel {
	cp := *ch
	cp.AdminIDs = s.adminsOf(ch.ID)
	return &cp
}

func (s *MemoryStore) checkChannel(ch *model.Channel) error {
	for _, other := range s.channelsByID {
		if other.Permalink == ch.Permalink && other.ID != ch.ID {
			errs := model.ValidationErrors{}
			errs.Add("permalink", msgTaken)
			return errs
		}
	}
	for _, id := range ch.AdminIDs {
		if _, ok := s.usersByID[id]; !ok {
			errs := model.ValidationErrors{}
			errs.Add("admin_ids", fmt.Sprintf("references unknown id %d", id))
			return errs
		}
	}
	return nil
}

// CreateChannel creates a new channel and assigns its ID.
func (s *MemoryStore) CreateChannel(_ context.Context, ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkChannel(ch); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}

	ch.ID = s.nextChannelID
	s.nextChannelID++
	ch.CreatedAt = s.now().Truncate(time.Second)

	stored := *ch
	stored.AdminIDs = nil
	s.channelsByID[ch.ID] = &stored
	for _, userID := range ch.AdminIDs {
		s.grant(ch.ID, userID)
	}
	return nil
}

// UpdateChannel replaces a channel's permalink, description, backend, and admins.
func (s *MemoryStore) UpdateChannel(_ context.Context, ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: update channel: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.channelsByID[ch.ID]
	if !ok {
		return fmt.Errorf("store: update channel: %w", model.ErrNotFound)
	}
	if err := s.checkChannel(ch); err != nil {
		return fmt.Errorf("store: update channel: %w", err)
	}

	existing.Permalink = ch.Permalink
	existing.Description = ch.Description
	existing.BackendServer = ch.BackendServer
	delete(s.admins, ch.ID)
	for _, userID := range ch.AdminIDs {
		s.grant(ch.ID, userID)
	}
	return nil
}

// SetChannelBackend reassigns a channel to another backend server.
func (s *MemoryStore) SetChannelBackend(_ context.Context, id int64, backendServer string) error {
	if len(backendServer) > model.MaxBackendServerLength {
		errs := model.ValidationErrors{}
		errs.Add("backend_server", model.ErrBackendServerTooLong.Error())
		return fmt.Errorf("store: set backend: %w", errs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channelsByID[id]
	if !ok {
		return fmt.Errorf("store: set backend: %w", model.ErrNotFound)
	}
	ch.BackendServer = backendServer
	return nil
}

// DeleteChannel deletes a channel by ID.
func (s *MemoryStore) DeleteChannel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channelsByID[id]; !ok {
		return fmt.Errorf("store: delete channel: %w", model.ErrNotFound)
	}
	delete(s.channelsByID, id)
	delete(s.admins, id)
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *MemoryStore) GetChannel(_ context.Context, id int64) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channelsByID[id]
	if !ok {
		return nil, nil
	}
	return s.copyChannel(ch), nil
}

// GetChannelByPermalink retrieves a channel by permalink.
func (s *MemoryStore) GetChannelByPermalink(_ context.Context, permalink string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.channelsByID {
		if ch.Permalink == permalink {
			return s.copyChannel(ch), nil
		}
	}
	return nil, nil
}

// ListChannels returns all channels ordered by ID.
func (s *MemoryStore) ListChannels(_ context.Context) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]model.Channel, 0, len(s.channelsByID))
	for _, ch := range s.channelsByID {
		channels = append(channels, *s.copyChannel(ch))
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

// ---- Bans ----

// CreateBan adds a ban record.
func (s *MemoryStore) CreateBan(_ context.Context, b *model.Ban) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("store: create ban: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.nextBanID
	s.nextBanID++
	b.CreatedAt = s.now().Truncate(time.Second)
	if !b.ExpiresAt.IsZero() {
		b.ExpiresAt = b.ExpiresAt.UTC().Truncate(time.Second)
	}
	stored := *b
	s.bansByID[b.ID] = &stored
	return nil
}

// GetBan retrieves a ban by ID.
func (s *MemoryStore) GetBan(_ context.Context, id int64) (*model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bansByID[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// UpdateBan replaces a ban's target, reason, and expiry.
func (s *MemoryStore) UpdateBan(_ context.Context, b *model.Ban) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("store: update ban: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bansByID[b.ID]
	if !ok {
		return fmt.Errorf("store: update ban: %w", model.ErrNotFound)
	}
	existing.UserID = b.UserID
	existing.IP = b.IP
	existing.Reason = b.Reason
	existing.ExpiresAt = time.Time{}
	if !b.ExpiresAt.IsZero() {
		existing.ExpiresAt = b.ExpiresAt.UTC().Truncate(time.Second)
	}
	return nil
}

// DeleteBan deletes a ban by ID.
func (s *MemoryStore) DeleteBan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bansByID[id]; !ok {
		return fmt.Errorf("store: delete ban: %w", model.ErrNotFound)
	}
	delete(s.bansByID, id)
	return nil
}

// ListBans returns all bans ordered by ID.
func (s *MemoryStore) ListBans(_ context.Context) ([]model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bans := make([]model.Ban, 0, len(s.bansByID))
	for _, b := range s.bansByID {
		bans = append(bans, *b)
	}
	sort.Slice(bans, func(i, j int) bool { return bans[i].ID < bans[j].ID })
	return bans, nil
}

// IsIPBanned checks if an IP address is currently banned.
func (s *MemoryStore) IsIPBanned(_ context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for _, b := range s.bansByID {
		if b.IP == ip && b.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// IsUserBanned checks if a user ID is currently banned.
func (s *MemoryStore) IsUserBanned(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for _, b := range s.bansByID {
		if b.UserID == userID && b.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// Compile-time check: *MemoryStore implements DataStore.
var _ DataStore = (*MemoryStore)(nil)
