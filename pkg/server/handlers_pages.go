package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/rbac"
)

// handleIndex lists every channel with the endpoint its chat socket lives at.
// Anonymous visitors may join channels, so no login is needed.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	infos := make([]model.ChannelInfo, 0, len(channels))
	for i := range channels {
		ch := &channels[i]
		infos = append(infos, ch.Info(s.endpointFor(r.Context(), ch), false))
	}

	resp := map[string]any{
		"channels": infos,
		"topology": s.resolver.Topology().Mode.String(),
		"name":     nullable(identity(r).Session().Name),
	}
	if u != nil {
		resp["user"] = u.Info(false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRoom shows one channel by ID or permalink with its resolved endpoint.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["id"]
	ctx := r.Context()

	var (
		ch       *model.Channel
		endpoint string
		err      error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		ch, endpoint, err = s.resolver.ResolveByID(ctx, id)
	} else {
		ch, endpoint, err = s.resolver.ResolveByPermalink(ctx, ref)
	}
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":  ch.Info(endpoint, false),
		"endpoint": endpoint,
	})
}

// adminTab is one entry of the admin navigation.
type adminTab struct {
	ID    string `json:"id"`
	Class string `json:"class"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// adminTabs lists the admin sections u may open. Global admins see every
// section and channel; channel admins see only their channels.
func adminTabs(u *model.User, channels []model.Channel) []adminTab {
	tabs := []adminTab{{ID: "admin", Class: "admin", Name: "Admin", URL: "/admin"}}
	if u.Admin {
		tabs = append(tabs,
			adminTab{ID: "admin_users", Class: "admin", Name: "Users", URL: "/admin/users"},
			adminTab{ID: "admin_bans", Class: "admin", Name: "Bans", URL: "/admin/bans"},
			adminTab{ID: "admin_channels", Class: "admin", Name: "Channels", URL: "/admin/channels"},
		)
	}
	for _, ch := range channels {
		if !u.AdministersChannel(ch.ID) && !ch.HasAdmin(u.ID) {
			continue
		}
		id := strconv.FormatInt(ch.ID, 10)
		tabs = append(tabs, adminTab{ID: "chan_" + id, Class: "room", Name: ch.Permalink, URL: "/admin/channels/" + id})
	}
	return tabs
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r, rbac.OpRead, rbac.AdminPanel())
	if !ok {
		return
	}
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    u.Info(true),
		"subpath": mux.Vars(r)["rest"],
		"tabs":    adminTabs(u, channels),
	})
}

// channelStats is one row of the stats page.
type channelStats struct {
	ID            int64  `json:"id"`
	Permalink     string `json:"permalink"`
	BackendServer string `json:"backend_server,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	Admins        int    `json:"admins"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.OpRead, rbac.Stats()); !ok {
		return
	}
	ctx := r.Context()
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	rows := make([]channelStats, 0, len(channels))
	for i := range channels {
		ch := &channels[i]
		rows = append(rows, channelStats{
			ID:            ch.ID,
			Permalink:     ch.Permalink,
			BackendServer: ch.BackendServer,
			Endpoint:      s.endpointFor(ctx, ch),
			Admins:        len(ch.AdminIDs),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":  s.metrics.Snapshot(),
		"topology": s.resolver.Topology().Mode.String(),
		"users":    users,
		"channels": rows,
	})
}
