package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Request counters
	Requests        atomic.Int64 // requests served by the app router
	SessionsCreated atomic.Int64 // sessions created on first contact

	// Auth counters
	LoginsSucceeded atomic.Int64 // successful password logins
	LoginsFailed    atomic.Int64 // rejected password logins
	LoginsThrottled atomic.Int64 // logins refused by the rate limiter
	Logouts         atomic.Int64 // explicit logouts
	TokensIssued    atomic.Int64 // socket auth tokens issued
	NamesRemembered atomic.Int64 // anonymous display names stored
	LoginRequired   atomic.Int64 // requests denied for lack of a login
	Forbidden       atomic.Int64 // requests denied for lack of privilege

	// Dispatch counters
	ResolveErrors atomic.Int64 // endpoint resolutions that failed

	// Admin counters
	UsersCreated    atomic.Int64
	UsersDeleted    atomic.Int64
	ChannelsCreated atomic.Int64
	ChannelsUpdated atomic.Int64
	ChannelsDeleted atomic.Int64
	BansCreated     atomic.Int64
	BansDeleted     atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Requests        int64 `json:"requests"`
	SessionsCreated int64 `json:"sessions_created"`

	LoginsSucceeded int64 `json:"logins_succeeded"`
	LoginsFailed    int64 `json:"logins_failed"`
	LoginsThrottled int64 `json:"logins_throttled"`
	Logouts         int64 `json:"logouts"`
	TokensIssued    int64 `json:"tokens_issued"`
	NamesRemembered int64 `json:"names_remembered"`
	LoginRequired   int64 `json:"login_required"`
	Forbidden       int64 `json:"forbidden"`

	ResolveErrors int64 `json:"resolve_errors"`

	UsersCreated    int64 `json:"users_created"`
	UsersDeleted    int64 `json:"users_deleted"`
	ChannelsCreated int64 `json:"channels_created"`
	ChannelsUpdated int64 `json:"channels_updated"`
	ChannelsDeleted int64 `json:"channels_deleted"`
	BansCreated     int64 `json:"bans_created"`
	BansDeleted     int64 `json:"bans_deleted"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:          uptime.Truncate(time.Second).String(),
		UptimeSeconds:   int64(uptime.Seconds()),
		Requests:        m.Requests.Load(),
		SessionsCreated: m.SessionsCreated.Load(),
		LoginsSucceeded: m.LoginsSucceeded.Load(),
		LoginsFailed:    m.LoginsFailed.Load(),
		LoginsThrottled: m.LoginsThrottled.Load(),
		Logouts:         m.Logouts.Load(),
		TokensIssued:    m.TokensIssued.Load(),
		NamesRemembered: m.NamesRemembered.Load(),
		LoginRequired:   m.LoginRequired.Load(),
		Forbidden:       m.Forbidden.Load(),
		ResolveErrors:   m.ResolveErrors.Load(),
		UsersCreated:    m.UsersCreated.Load(),
		UsersDeleted:    m.UsersDeleted.Load(),
		ChannelsCreated: m.ChannelsCreated.Load(),
		ChannelsUpdated: m.ChannelsUpdated.Load(),
		ChannelsDeleted: m.ChannelsDeleted.Load(),
		BansCreated:     m.BansCreated.Load(),
		BansDeleted:     m.BansDeleted.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"requests", s.Requests,
		"sessions_created", s.SessionsCreated,
		"logins", s.LoginsSucceeded,
		"logins_failed", s.LoginsFailed,
		"tokens_issued", s.TokensIssued,
		"resolve_errors", s.ResolveErrors,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
