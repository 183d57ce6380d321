package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/NicolasHaas/gochat/pkg/dispatch"
	"github.com/NicolasHaas/gochat/pkg/logging"
	"github.com/NicolasHaas/gochat/pkg/server"
	"github.com/NicolasHaas/gochat/pkg/session"
	"github.com/NicolasHaas/gochat/pkg/store"
	"github.com/NicolasHaas/gochat/pkg/version"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := server.DefaultConfig()

	configFile := flag.String("config", "", "YAML application config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.BoolVar(&cfg.SingleServer, "single-server", cfg.SingleServer, "Serve every channel from one shared websocket endpoint")
	flag.StringVar(&cfg.WebsocketPort, "websocket-port", "", "Shared websocket port in single-server mode (falls back to $PORT)")
	flag.StringVar(&cfg.Sessions, "sessions", cfg.Sessions, "Session store: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the redis session store")
	flag.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Idle session lifetime")
	flag.BoolVar(&cfg.CookieSecure, "cookie-secure", false, "Mark the session cookie Secure")
	flag.IntVar(&cfg.LoginRate, "login-rate", cfg.LoginRate, "Login attempts per minute per client IP (0 = unlimited)")
	flag.StringVar(&cfg.ChannelsFile, "channels-file", "", "YAML file defining channels to create on startup")
	flag.DurationVar(&cfg.MetricsLog, "metrics-log", cfg.MetricsLog, "Periodic metrics log interval (0 to disable)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: "+logging.LevelNames())
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: "+logging.FormatNames())
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")
	flag.BoolVar(&cfg.ExportChannels, "export-channels", false, "Export all channels as YAML and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if *configFile != "" {
		explicit := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		fc, err := server.LoadConfigFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if err := fc.Apply(&cfg, explicit); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	cfg.EnvPort = os.Getenv(dispatch.EnvPort)

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Handle export commands (run and exit)
	if cfg.ExportUsers || cfg.ExportChannels {
		if err := export(cfg); err != nil {
			slog.Error("export", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	deps := server.Dependencies{Store: st}
	if cfg.Sessions == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		sessions := session.NewRedisStore(client, cfg.SessionTTL)
		if err := sessions.Ping(context.Background()); err != nil {
			slog.Warn("redis not reachable yet", "addr", cfg.RedisAddr, "err", err)
		}
		deps.Sessions = sessions
	}

	srv := server.New(cfg, deps)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func export(cfg server.Config) error {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if cfg.ExportUsers {
		data, err := server.ExportUsersYAML(ctx, st)
		if err != nil {
			return fmt.Errorf("export users: %w", err)
		}
		fmt.Print(string(data))
	}
	if cfg.ExportChannels {
		data, err := server.ExportChannelsYAML(ctx, st)
		if err != nil {
			return fmt.Errorf("export channels: %w", err)
		}
		fmt.Print(string(data))
	}
	return nil
}
