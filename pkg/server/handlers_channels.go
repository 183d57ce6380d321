package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NicolasHaas/gochat/pkg/dispatch"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/rbac"
)

// channelPayload is the create/update body. Absent fields are left unchanged.
type channelPayload struct {
	Permalink     *string  `json:"permalink"`
	Description   *string  `json:"description"`
	BackendServer *string  `json:"backend_server"`
	AdminIDs      *[]int64 `json:"admin_ids"`
}

// touchesPrivileges reports whether p changes how the channel is addressed,
// where it is served, or who administers it.
func (p channelPayload) touchesPrivileges() bool {
	return p.Permalink != nil || p.BackendServer != nil || p.AdminIDs != nil
}

func (p channelPayload) apply(ch *model.Channel) {
	if p.Permalink != nil {
		ch.Permalink = *p.Permalink
	}
	if p.Description != nil {
		ch.Description = *p.Description
	}
	if p.BackendServer != nil {
		ch.BackendServer = *p.BackendServer
	}
	if p.AdminIDs != nil {
		ch.AdminIDs = *p.AdminIDs
	}
}

// endpointFor resolves ch, logging and counting failures. An unassigned
// backend yields an empty endpoint rather than a substitute.
func (s *Server) endpointFor(ctx context.Context, ch *model.Channel) string {
	endpoint, err := s.resolver.ResolveEndpoint(ch)
	if err != nil {
		s.metrics.ResolveErrors.Add(1)
		slog.WarnContext(ctx, "channel has no endpoint", "channel_id", ch.ID, "permalink", ch.Permalink, "err", err)
		return ""
	}
	return endpoint
}

// loadChannel returns the channel for {id}, or a placeholder carrying only the
// ID when it does not exist so the authorization gate can still run first.
func (s *Server) loadChannel(w http.ResponseWriter, r *http.Request) (*model.Channel, bool, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false, false
	}
	ch, err := s.store.GetChannel(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return nil, false, false
	}
	if ch == nil {
		return &model.Channel{ID: id}, false, true
	}
	return ch, true, true
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.OpList, rbac.Channels(nil)); !ok {
		return
	}
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]model.ChannelInfo, 0, len(channels))
	for i := range channels {
		ch := &channels[i]
		out = append(out, ch.Info(s.endpointFor(r.Context(), ch), true))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.OpCreate, rbac.Channels(nil))
	if !ok {
		return
	}
	var p channelPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	ch := &model.Channel{}
	p.apply(ch)
	if err := s.store.CreateChannel(r.Context(), ch); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.ChannelsCreated.Add(1)
	slog.Info("channel created", "channel_id", ch.ID, "permalink", ch.Permalink, "backend", ch.BackendServer, "by", actor.ID)
	writeJSON(w, http.StatusCreated, ch.Info(s.endpointFor(r.Context(), ch), true))
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, found, ok := s.loadChannel(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, rbac.OpRead, rbac.Channels(ch)); !ok {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ch.Info(s.endpointFor(r.Context(), ch), true))
}

// handleUpdateChannel lets global admins and the channel's own admins edit
// it. Renaming, backend reassignment and admin grants stay with global admins.
func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	ch, found, ok := s.loadChannel(w, r)
	if !ok {
		return
	}
	actor, ok := s.authorize(w, r, rbac.OpUpdate, rbac.Channels(ch))
	if !ok {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	var p channelPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if p.touchesPrivileges() && !actor.Admin {
		s.metrics.Forbidden.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	previous := ch.BackendServer
	p.apply(ch)
	if err := s.store.UpdateChannel(r.Context(), ch); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.ChannelsUpdated.Add(1)
	if previous != ch.BackendServer {
		slog.Info("reassigned channel backend", "channel_id", ch.ID, "from", previous, "to", ch.BackendServer, "by", actor.ID)
	}
	writeJSON(w, http.StatusOK, ch.Info(s.endpointFor(r.Context(), ch), true))
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	ch, found, ok := s.loadChannel(w, r)
	if !ok {
		return
	}
	actor, ok := s.authorize(w, r, rbac.OpDelete, rbac.Channels(ch))
	if !ok {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	if err := s.store.DeleteChannel(r.Context(), ch.ID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.ChannelsDeleted.Add(1)
	slog.Info("channel deleted", "channel_id", ch.ID, "permalink", ch.Permalink, "by", actor.ID)
	writeJSON(w, http.StatusOK, struct{}{})
}

// writeResolveError maps a resolver failure to its HTTP response.
func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dispatch.ErrUnassignedBackend) {
		s.metrics.ResolveErrors.Add(1)
		slog.Error("channel has no backend server", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	writeStoreError(w, r, err)
}
