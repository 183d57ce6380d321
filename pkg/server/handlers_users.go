package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/rbac"
)

// pathID parses the {id} route variable. An unparsable id writes 404.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, codeNotFound)
		return 0, false
	}
	return id, true
}

// userPayload is the create/update body. Absent fields are left unchanged.
type userPayload struct {
	Name          *string  `json:"name"`
	Password      *string  `json:"password"`
	Admin         *bool    `json:"admin"`
	AdminChannels *[]int64 `json:"admin_channels"`
}

// touchesPrivileges reports whether p changes admin rights.
func (p userPayload) touchesPrivileges() bool {
	return p.Admin != nil || p.AdminChannels != nil
}

// apply copies the payload onto u, hashing a new password.
func (p userPayload) apply(u *model.User) error {
	if p.Name != nil {
		u.Username = *p.Name
	}
	if p.Password != nil && *p.Password != "" {
		hash, err := crypto.HashPassword(*p.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	if p.Admin != nil {
		u.Admin = *p.Admin
	}
	if p.AdminChannels != nil {
		u.AdminChannelIDs = *p.AdminChannels
	}
	return nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.OpList, rbac.Users(0)); !ok {
		return
	}
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]model.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, users[i].Info(true))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.OpCreate, rbac.Users(0))
	if !ok {
		return
	}
	var p userPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	u := &model.User{}
	if err := p.apply(u); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.UsersCreated.Add(1)
	slog.Info("user created", "user_id", u.ID, "name", u.Username, "by", actor.ID)
	writeJSON(w, http.StatusCreated, u.Info(true))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, rbac.OpRead, rbac.Users(id)); !ok {
		return
	}
	u, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u.Info(true))
}

// handleUpdateUser lets admins edit anyone and users edit themselves. Only
// global admins may change admin rights.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := s.authorize(w, r, rbac.OpUpdate, rbac.Users(id))
	if !ok {
		return
	}
	var p userPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if p.touchesPrivileges() && !actor.Admin {
		s.metrics.Forbidden.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	if err := p.apply(u); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if actor.ID == u.ID {
		identity(r).Reset()
	}
	slog.Info("user updated", "user_id", u.ID, "by", actor.ID)
	writeJSON(w, http.StatusOK, u.Info(true))
}

// handleDeleteUser removes another user. Deleting oneself or the last user
// is refused with EndOfWorld.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := s.authorize(w, r, rbac.OpDelete, rbac.Users(id))
	if !ok {
		return
	}

	ctx := r.Context()
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	if u.ID == actor.ID {
		writeError(w, http.StatusNotAcceptable, codeEndOfWorld)
		return
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.UsersDeleted.Add(1)
	slog.Info("user deleted", "user_id", id, "by", actor.ID)
	writeJSON(w, http.StatusOK, struct{}{})
}
