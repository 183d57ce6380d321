package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/store"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	valid.WebsocketPort = "8080"

	tcases := map[string]struct {
		mutate    func(*Config)
		expectErr bool
	}{
		"defaults_with_port":    {mutate: func(*Config) {}},
		"env_port_fallback":     {mutate: func(c *Config) { c.WebsocketPort = ""; c.EnvPort = "9000" }},
		"single_without_port":   {mutate: func(c *Config) { c.WebsocketPort = "" }, expectErr: true},
		"multi_without_port":    {mutate: func(c *Config) { c.WebsocketPort = ""; c.SingleServer = false }},
		"redis_sessions":        {mutate: func(c *Config) { c.Sessions = "redis" }},
		"redis_without_address": {mutate: func(c *Config) { c.Sessions = "redis"; c.RedisAddr = "" }, expectErr: true},
		"unknown_sessions":      {mutate: func(c *Config) { c.Sessions = "cookie" }, expectErr: true},
		"negative_login_rate":   {mutate: func(c *Config) { c.LoginRate = -1 }, expectErr: true},
		"empty_http_addr":       {mutate: func(c *Config) { c.HTTPAddr = "" }, expectErr: true},
		"empty_cookie_name":     {mutate: func(c *Config) { c.CookieName = "" }, expectErr: true},
		"bad_log_level":         {mutate: func(c *Config) { c.LogLevel = "loud" }, expectErr: true},
		"bad_log_format":        {mutate: func(c *Config) { c.LogFormat = "xml" }, expectErr: true},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFileConfigApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gochat.yaml")
	data := []byte(`
single_server: false
websocket_port: "9001"
http_addr: ":8000"
sessions: redis
redis_addr: "cache:6379"
session_ttl: 1h
login_rate: 3
log_level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fc, err := LoadConfigFile(path)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.HTTPAddr = ":1234"
	require.NoError(t, fc.Apply(&cfg, map[string]bool{"http": true}))

	assert.False(t, cfg.SingleServer)
	assert.Equal(t, "9001", cfg.WebsocketPort)
	assert.Equal(t, ":1234", cfg.HTTPAddr, "explicit flags win over the file")
	assert.Equal(t, "redis", cfg.Sessions)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.LoginRate)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)

	bad := FileConfig{SessionTTL: "soon"}
	assert.Error(t, bad.Apply(&cfg, nil))
}

func TestImportChannelsFromYAML(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	alice := &model.User{Username: "alice", PasswordHash: "h"}
	require.NoError(t, st.CreateUser(ctx, alice))

	n, err := ImportChannelsFromYAML(ctx, []byte(`
channels:
  - permalink: lobby
    description: front door
    backend_server: ws1:9000
    admins: [alice, ghost]
  - permalink: "Bad Name"
  - permalink: dev
`), st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lobby, err := st.GetChannelByPermalink(ctx, "lobby")
	require.NoError(t, err)
	require.NotNil(t, lobby)
	assert.Equal(t, "ws1:9000", lobby.BackendServer)
	assert.Equal(t, []int64{alice.ID}, lobby.AdminIDs)

	// Re-importing reassigns the backend in place.
	n, err = ImportChannelsFromYAML(ctx, []byte(`
channels:
  - permalink: lobby
    backend_server: ws2:9001
`), st)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	moved, err := st.GetChannel(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, "ws2:9001", moved.BackendServer)
	assert.Empty(t, moved.AdminIDs)

	_, err = ImportChannelsFromYAML(ctx, []byte("channels: [unterminated"), st)
	assert.Error(t, err)
}

func TestExportYAML(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	lobby := &model.Channel{Permalink: "lobby", BackendServer: "ws1:9000"}
	require.NoError(t, st.CreateChannel(ctx, lobby))
	alice := &model.User{Username: "alice", PasswordHash: "h", AdminChannelIDs: []int64{lobby.ID}}
	require.NoError(t, st.CreateUser(ctx, alice))

	data, err := ExportChannelsYAML(ctx, st)
	require.NoError(t, err)
	var channels ChannelsConfig
	require.NoError(t, yaml.Unmarshal(data, &channels))
	want := ChannelsConfig{Channels: []ChannelYAML{{Permalink: "lobby", BackendServer: "ws1:9000", Admins: []string{"alice"}}}}
	if diff := cmp.Diff(want, channels); diff != "" {
		t.Errorf("ExportChannelsYAML mismatch (-want +got):\n%s", diff)
	}

	data, err = ExportUsersYAML(ctx, st)
	require.NoError(t, err)
	var users UsersExport
	require.NoError(t, yaml.Unmarshal(data, &users))
	require.Len(t, users.Users, 1)
	assert.Equal(t, "alice", users.Users[0].Username)
	assert.Equal(t, []string{"lobby"}, users.Users[0].AdminChannels)
}
