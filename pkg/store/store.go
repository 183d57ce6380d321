// Package store provides SQLite-backed persistence for users, channels, and bans.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/gochat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

const msgTaken = "has already been taken"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides database access for all persisted entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		username             TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		password_hash        TEXT    NOT NULL DEFAULT '',
		admin                INTEGER NOT NULL DEFAULT 0,
		auth_token           TEXT,
		auth_token_issued_at TEXT,
		created_at           TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS channels (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		permalink      TEXT    NOT NULL UNIQUE,
		description    TEXT    NOT NULL DEFAULT '',
		backend_server TEXT    NOT NULL DEFAULT '',
		created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS channel_admins (
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS bans (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL DEFAULT 0,
		ip         TEXT    NOT NULL DEFAULT '',
		reason     TEXT    NOT NULL DEFAULT '',
		banned_by  INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_auth_token ON users(auth_token) WHERE auth_token IS NOT NULL",
				"CREATE INDEX IF NOT EXISTS idx_channel_admins_user ON channel_admins(user_id)",
			},
		},
		{
			version: 3,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_bans_ip ON bans(ip) WHERE ip != ''",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func parseDBTimePtr(value sql.NullString) (time.Time, error) {
	if !value.Valid || value.String == "" {
		return time.Time{}, nil
	}
	return parseDBTime(value.String)
}

func nullTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := formatDBTime(t)
	return &v
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- Users ----

const userColumns = "id, username, password_hash, admin, auth_token, auth_token_issued_at, created_at"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var adminInt int
	var token, issuedAt sql.NullString
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &adminInt, &token, &issuedAt, &createdAt); err != nil {
		return nil, err
	}
	u.Admin = adminInt != 0
	u.AuthToken = token.String
	var err error
	if u.AuthTokenIssuedAt, err = parseDBTimePtr(issuedAt); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) getUser(ctx context.Context, op, where string, arg any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	if u.AdminChannelIDs, err = adminChannelsOf(ctx, s.db, u.ID); err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return u, nil
}

func adminChannelsOf(ctx context.Context, q queryer, userID int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT channel_id FROM channel_admins WHERE user_id = ? ORDER BY channel_id", userID)
}

func adminsOf(ctx context.Context, q queryer, channelID int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT user_id FROM channel_admins WHERE channel_id = ? ORDER BY user_id", channelID)
}

func queryIDs(ctx context.Context, q queryer, query string, arg int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// adminPairs loads the whole channel_admins table keyed by column.
func adminPairs(ctx context.Context, q queryer, byUser bool) (map[int64][]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT channel_id, user_id FROM channel_admins ORDER BY channel_id, user_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]int64)
	for rows.Next() {
		var channelID, userID int64
		if err := rows.Scan(&channelID, &userID); err != nil {
			return nil, err
		}
		if byUser {
			out[userID] = append(out[userID], channelID)
		} else {
			out[channelID] = append(out[channelID], userID)
		}
	}
	return out, rows.Err()
}

// validateRefs reports ids missing from table as a validation error on field.
func validateRefs(ctx context.Context, q queryer, table, field string, ids []int64) error {
	for _, id := range ids {
		ok, err := exists(ctx, q, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id)
		if err != nil {
			return err
		}
		if !ok {
			errs := model.ValidationErrors{}
			errs.Add(field, fmt.Sprintf("references unknown id %d", id))
			return errs
		}
	}
	return nil
}

// CreateUser creates a new user and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		taken, err := exists(ctx, tx, "SELECT COUNT(*) FROM users WHERE username = ?", u.Username)
		if err != nil {
			return err
		}
		if taken {
			errs := model.ValidationErrors{}
			errs.Add("name", msgTaken)
			return errs
		}
		if err := validateRefs(ctx, tx, "channels", "admin_channels", u.AdminChannelIDs); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, admin, auth_token, auth_token_issued_at, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			u.Username, u.PasswordHash, boolInt(u.Admin), nullString(u.AuthToken), nullTime(u.AuthTokenIssuedAt), formatDBTime(now))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, chID := range u.AdminChannelIDs {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO channel_admins (channel_id, user_id) VALUES (?, ?)", chID, id); err != nil {
				return err
			}
		}
		u.ID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	u.CreatedAt = now.Truncate(time.Second)
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser(ctx, "get user", "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, "get user by name", "username = ?", username)
}

// GetUserByAuthToken retrieves a user by their current auth token.
func (s *Store) GetUserByAuthToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.getUser(ctx, "get user by token", "auth_token = ?", token)
}

// UpdateUser replaces a user's name, password hash, admin flag, and channel grants.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		taken, err := exists(ctx, tx, "SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?", u.Username, u.ID)
		if err != nil {
			return err
		}
		if taken {
			errs := model.ValidationErrors{}
			errs.Add("name", msgTaken)
			return errs
		}
		if err := validateRefs(ctx, tx, "channels", "admin_channels", u.AdminChannelIDs); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "UPDATE users SET username = ?, password_hash = ?, admin = ? WHERE id = ?",
			u.Username, u.PasswordHash, boolInt(u.Admin), u.ID)
		if err != nil {
			return err
		}
		if err := checkAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM channel_admins WHERE user_id = ?", u.ID); err != nil {
			return err
		}
		for _, chID := range u.AdminChannelIDs {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO channel_admins (channel_id, user_id) VALUES (?, ?)", chID, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	return nil
}

// SetUserAuthToken overwrites the user's auth token and issue time.
func (s *Store) SetUserAuthToken(ctx context.Context, userID int64, token string, issuedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET auth_token = ?, auth_token_issued_at = ? WHERE id = ?",
		nullString(token), nullTime(issuedAt), userID)
	if err != nil {
		return fmt.Errorf("store: set auth token: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("store: set auth token: %w", err)
	}
	return nil
}

// DeleteUser removes a user unless it is the last one.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "SELECT COUNT(*) FROM users WHERE id = ?", id)
		if err != nil {
			return err
		}
		if !found {
			return model.ErrNotFound
		}
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			return err
		}
		if count <= 1 {
			return model.ErrEndOfWorld
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	return nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}

	grants, err := adminPairs(ctx, s.db, true)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	for i := range users {
		users[i].AdminChannelIDs = grants[users[i].ID]
	}
	return users, nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count users: %w", err)
	}
	return count, nil
}

// ---- Channels ----

const channelColumns = "id, permalink, description, backend_server, created_at"

func scanChannel(row interface{ Scan(...any) error }) (*model.Channel, error) {
	ch := &model.Channel{}
	var createdAt string
	if err := row.Scan(&ch.ID, &ch.Permalink, &ch.Description, &ch.BackendServer, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	ch.CreatedAt = parsed
	return ch, nil
}

func (s *Store) getChannel(ctx context.Context, op, where string, arg any) (*model.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	if ch.AdminIDs, err = adminsOf(ctx, s.db, ch.ID); err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return ch, nil
}

func (s *Store) checkPermalink(ctx context.Context, q queryer, ch *model.Channel) error {
	taken, err := exists(ctx, q, "SELECT COUNT(*) FROM channels WHERE permalink = ? AND id <> ?", ch.Permalink, ch.ID)
	if err != nil {
		return err
	}
	if taken {
		errs := model.ValidationErrors{}
		errs.Add("permalink", msgTaken)
		return errs
	}
	return validateRefs(ctx, q, "users", "admin_ids", ch.AdminIDs)
}

// CreateChannel creates a new channel and assigns its ID.
func (s *Store) CreateChannel(ctx context.Context, ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkPermalink(ctx, tx, ch); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO channels (permalink, description, backend_server, created_at) VALUES (?, ?, ?, ?)",
			ch.Permalink, ch.Description, ch.BackendServer, formatDBTime(now))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, userID := range ch.AdminIDs {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO channel_admins (channel_id, user_id) VALUES (?, ?)", id, userID); err != nil {
				return err
			}
		}
		ch.ID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	ch.CreatedAt = now.Truncate(time.Second)
	return nil
}

// UpdateChannel replaces a channel's permalink, description, backend, and admins.
func (s *Store) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: update channel: %w", err)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkPermalink(ctx, tx, ch); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE channels SET permalink = ?, description = ?, backend_server = ? WHERE id = ?",
			ch.Permalink, ch.Description, ch.BackendServer, ch.ID)
		if err != nil {
			return err
		}
		if err := checkAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM channel_admins WHERE channel_id = ?", ch.ID); err != nil {
			return err
		}
		for _, userID := range ch.AdminIDs {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO channel_admins (channel_id, user_id) VALUES (?, ?)", ch.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update channel: %w", err)
	}
	return nil
}

// SetChannelBackend reassigns a channel to another backend server.
func (s *Store) SetChannelBackend(ctx context.Context, id int64, backendServer string) error {
	if len(backendServer) > model.MaxBackendServerLength {
		errs := model.ValidationErrors{}
		errs.Add("backend_server", model.ErrBackendServerTooLong.Error())
		return fmt.Errorf("store: set backend: %w", errs)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE channels SET backend_server = ? WHERE id = ?", backendServer, id)
	if err != nil {
		return fmt.Errorf("store: set backend: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("store: set backend: %w", err)
	}
	return nil
}

// DeleteChannel deletes a channel by ID.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete channel: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("store: delete channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	return s.getChannel(ctx, "get channel", "id = ?", id)
}

// GetChannelByPermalink retrieves a channel by permalink.
func (s *Store) GetChannelByPermalink(ctx context.Context, permalink string) (*model.Channel, error) {
	return s.getChannel(ctx, "get channel by permalink", "permalink = ?", permalink)
}

// ListChannels returns all channels.
func (s *Store) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+channelColumns+" FROM channels ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}

	admins, err := adminPairs(ctx, s.db, false)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	for i := range channels {
		channels[i].AdminIDs = admins[channels[i].ID]
	}
	return channels, nil
}

// ---- Bans ----

const banColumns = "id, user_id, ip, reason, banned_by, expires_at, created_at"

func scanBan(row interface{ Scan(...any) error }) (*model.Ban, error) {
	b := &model.Ban{}
	var expiresAt sql.NullString
	var createdAt string
	if err := row.Scan(&b.ID, &b.UserID, &b.IP, &b.Reason, &b.BannedBy, &expiresAt, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if b.ExpiresAt, err = parseDBTimePtr(expiresAt); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBan adds a ban record.
func (s *Store) CreateBan(ctx context.Context, b *model.Ban) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("store: create ban: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO bans (user_id, ip, reason, banned_by, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		b.UserID, b.IP, b.Reason, b.BannedBy, nullTime(b.ExpiresAt), formatDBTime(now))
	if err != nil {
		return fmt.Errorf("store: create ban: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: create ban: %w", err)
	}
	b.ID = id
	b.CreatedAt = now.Truncate(time.Second)
	return nil
}

// GetBan retrieves a ban by ID.
func (s *Store) GetBan(ctx context.Context, id int64) (*model.Ban, error) {
	b, err := scanBan(s.db.QueryRowContext(ctx, "SELECT "+banColumns+" FROM bans WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get ban: %w", err)
	}
	return b, nil
}

// UpdateBan replaces a ban's target, reason, and expiry.
func (s *Store) UpdateBan(ctx context.Context, b *model.Ban) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("store: update ban: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE bans SET user_id = ?, ip = ?, reason = ?, expires_at = ? WHERE id = ?",
		b.UserID, b.IP, b.Reason, nullTime(b.ExpiresAt), b.ID)
	if err != nil {
		return fmt.Errorf("store: update ban: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("store: update ban: %w", err)
	}
	return nil
}

// DeleteBan deletes a ban by ID.
func (s *Store) DeleteBan(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete ban: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("store: delete ban: %w", err)
	}
	return nil
}

// ListBans returns all bans.
func (s *Store) ListBans(ctx context.Context) ([]model.Ban, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+banColumns+" FROM bans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list bans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []model.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		bans = append(bans, *b)
	}
	return bans, rows.Err()
}

// IsIPBanned checks if an IP address is currently banned.
func (s *Store) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	banned, err := exists(ctx, s.db,
		"SELECT COUNT(*) FROM bans WHERE ip = ? AND (expires_at IS NULL OR expires_at > ?)",
		ip, formatDBTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("store: check ip ban: %w", err)
	}
	return banned, nil
}

// IsUserBanned checks if a user ID is currently banned.
func (s *Store) IsUserBanned(ctx context.Context, userID int64) (bool, error) {
	banned, err := exists(ctx, s.db,
		"SELECT COUNT(*) FROM bans WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)",
		userID, formatDBTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("store: check ban: %w", err)
	}
	return banned, nil
}
