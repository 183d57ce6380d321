package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/store"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML application config. Empty fields leave the
// corresponding Config value unchanged.
type FileConfig struct {
	SingleServer  *bool  `yaml:"single_server,omitempty"`
	WebsocketPort string `yaml:"websocket_port,omitempty"`
	HTTPAddr      string `yaml:"http_addr,omitempty"`
	DBPath        string `yaml:"db,omitempty"`
	Sessions      string `yaml:"sessions,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	SessionTTL    string `yaml:"session_ttl,omitempty"`
	CookieSecure  *bool  `yaml:"cookie_secure,omitempty"`
	ChannelsFile  string `yaml:"channels_file,omitempty"`
	LoginRate     *int   `yaml:"login_rate,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogFormat     string `yaml:"log_format,omitempty"`
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

// Apply overlays the file values onto cfg. Settings named in explicit (by
// command-line flag name) were given on the command line and are kept.
func (fc FileConfig) Apply(cfg *Config, explicit map[string]bool) error {
	setString := func(flag, value string, dst *string) {
		if value != "" && !explicit[flag] {
			*dst = value
		}
	}
	setString("websocket-port", fc.WebsocketPort, &cfg.WebsocketPort)
	setString("http", fc.HTTPAddr, &cfg.HTTPAddr)
	setString("db", fc.DBPath, &cfg.DBPath)
	setString("sessions", fc.Sessions, &cfg.Sessions)
	setString("redis", fc.RedisAddr, &cfg.RedisAddr)
	setString("channels-file", fc.ChannelsFile, &cfg.ChannelsFile)
	setString("log-level", fc.LogLevel, &cfg.LogLevel)
	setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if fc.SingleServer != nil && !explicit["single-server"] {
		cfg.SingleServer = *fc.SingleServer
	}
	if fc.CookieSecure != nil && !explicit["cookie-secure"] {
		cfg.CookieSecure = *fc.CookieSecure
	}
	if fc.LoginRate != nil && !explicit["login-rate"] {
		cfg.LoginRate = *fc.LoginRate
	}
	if fc.SessionTTL != "" && !explicit["session-ttl"] {
		ttl, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("parse config: session_ttl: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	return nil
}

// ChannelYAML represents a channel in YAML config.
type ChannelYAML struct {
	Permalink     string   `yaml:"permalink"`
	Description   string   `yaml:"description,omitempty"`
	BackendServer string   `yaml:"backend_server,omitempty"`
	Admins        []string `yaml:"admins,omitempty"` // usernames
}

// ChannelsConfig is the top-level YAML config for channels.
type ChannelsConfig struct {
	Channels []ChannelYAML `yaml:"channels"`
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID            int64    `yaml:"id"`
	Username      string   `yaml:"username"`
	Admin         bool     `yaml:"admin"`
	AdminChannels []string `yaml:"admin_channels,omitempty"` // permalinks
	CreatedAt     string   `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// LoadChannelsFromYAML reads a channels YAML file and creates/updates channels in the store.
func LoadChannelsFromYAML(ctx context.Context, path string, st store.DataStore) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return 0, fmt.Errorf("read channels config: %w", err)
	}
	return ImportChannelsFromYAML(ctx, data, st)
}

// ImportChannelsFromYAML parses YAML data and creates/updates channels in the
// store. Existing channels, matched by permalink, get their description,
// backend assignment and admin list replaced. It returns the number of
// channels applied; a bad entry is logged and skipped.
func ImportChannelsFromYAML(ctx context.Context, data []byte, st store.DataStore) (int, error) {
	var cfg ChannelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parse channels config: %w", err)
	}

	applied := 0
	for _, ch := range cfg.Channels {
		if err := ensureChannel(ctx, st, ch); err != nil {
			slog.Error("failed to apply channel from config", "permalink", ch.Permalink, "err", err)
			continue
		}
		applied++
	}

	slog.Info("imported channels from YAML", "count", applied)
	return applied, nil
}

func ensureChannel(ctx context.Context, st store.DataStore, entry ChannelYAML) error {
	var adminIDs []int64
	for _, name := range entry.Admins {
		u, err := st.GetUserByUsername(ctx, name)
		if err != nil {
			return err
		}
		if u == nil {
			slog.Warn("unknown channel admin in config", "permalink", entry.Permalink, "username", name)
			continue
		}
		adminIDs = append(adminIDs, u.ID)
	}

	existing, err := st.GetChannelByPermalink(ctx, entry.Permalink)
	if err != nil {
		return err
	}
	if existing == nil {
		ch := &model.Channel{
			Permalink:     entry.Permalink,
			Description:   entry.Description,
			BackendServer: entry.BackendServer,
			AdminIDs:      adminIDs,
		}
		if err := st.CreateChannel(ctx, ch); err != nil {
			return err
		}
		slog.Debug("created channel from config", "permalink", ch.Permalink, "backend", ch.BackendServer)
		return nil
	}

	if existing.BackendServer != entry.BackendServer {
		if err := st.SetChannelBackend(ctx, existing.ID, entry.BackendServer); err != nil {
			return err
		}
		slog.Info("reassigned channel backend", "permalink", existing.Permalink,
			"from", existing.BackendServer, "to", entry.BackendServer)
		existing.BackendServer = entry.BackendServer
	}
	existing.Description = entry.Description
	existing.AdminIDs = adminIDs
	return st.UpdateChannel(ctx, existing)
}

// ExportChannelsYAML exports all channels as YAML.
func ExportChannelsYAML(ctx context.Context, st store.DataStore) ([]byte, error) {
	channels, err := st.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	cfg := ChannelsConfig{}
	for _, ch := range channels {
		entry := ChannelYAML{
			Permalink:     ch.Permalink,
			Description:   ch.Description,
			BackendServer: ch.BackendServer,
		}
		for _, id := range ch.AdminIDs {
			entry.Admins = append(entry.Admins, names[id])
		}
		cfg.Channels = append(cfg.Channels, entry)
	}
	return yaml.Marshal(&cfg)
}

// ExportUsersYAML exports all users as YAML.
func ExportUsersYAML(ctx context.Context, st store.DataStore) ([]byte, error) {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := st.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	permalinks := make(map[int64]string, len(channels))
	for _, ch := range channels {
		permalinks[ch.ID] = ch.Permalink
	}

	export := UsersExport{}
	for _, u := range users {
		entry := UserYAML{
			ID:        u.ID,
			Username:  u.Username,
			Admin:     u.Admin,
			CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		for _, id := range u.AdminChannelIDs {
			entry.AdminChannels = append(entry.AdminChannels, permalinks[id])
		}
		export.Users = append(export.Users, entry)
	}
	return yaml.Marshal(&export)
}
