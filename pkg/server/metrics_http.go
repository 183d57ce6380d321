package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NicolasHaas/gochat/pkg/version"
)

// Registry returns a Prometheus registry exposing m. Counters are read
// straight from the atomics at scrape time.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gochat_uptime_seconds",
		Help: "Server uptime in seconds.",
	}, func() float64 { return time.Since(m.startTime).Seconds() }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "gochat_build_info",
		Help:        "Build information; always 1.",
		ConstLabels: prometheus.Labels{"version": version.String()},
	}, func() float64 { return 1 }))

	counter := func(name, help string, v *atomic.Int64) {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, func() float64 { return float64(v.Load()) }))
	}

	counter("gochat_requests_total", "Requests served by the app router.", &m.Requests)
	counter("gochat_sessions_created_total", "Sessions created on first contact.", &m.SessionsCreated)

	counter("gochat_logins_total", "Successful password logins.", &m.LoginsSucceeded)
	counter("gochat_logins_failed_total", "Rejected password logins.", &m.LoginsFailed)
	counter("gochat_logins_throttled_total", "Logins refused by the rate limiter.", &m.LoginsThrottled)
	counter("gochat_logouts_total", "Explicit logouts.", &m.Logouts)
	counter("gochat_auth_tokens_issued_total", "Socket auth tokens issued.", &m.TokensIssued)
	counter("gochat_names_remembered_total", "Anonymous display names stored.", &m.NamesRemembered)
	counter("gochat_login_required_total", "Requests denied for lack of a login.", &m.LoginRequired)
	counter("gochat_forbidden_total", "Requests denied for lack of privilege.", &m.Forbidden)

	counter("gochat_resolve_errors_total", "Channel endpoint resolutions that failed.", &m.ResolveErrors)

	counter("gochat_users_created_total", "Users created.", &m.UsersCreated)
	counter("gochat_users_deleted_total", "Users deleted.", &m.UsersDeleted)
	counter("gochat_channels_created_total", "Channels created.", &m.ChannelsCreated)
	counter("gochat_channels_updated_total", "Channels updated.", &m.ChannelsUpdated)
	counter("gochat_channels_deleted_total", "Channels deleted.", &m.ChannelsDeleted)
	counter("gochat_bans_created_total", "Bans created.", &m.BansCreated)
	counter("gochat_bans_deleted_total", "Bans deleted.", &m.BansDeleted)

	return reg
}

// metricsHandler serves /metrics in Prometheus text exposition format.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.sessions.(interface{ Ping(ctx context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
