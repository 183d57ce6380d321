package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/rbac"
)

var timeNow = time.Now

// banInfo is the JSON view of a ban.
type banInfo struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	Reason    string `json:"reason"`
	BannedBy  int64  `json:"banned_by"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func newBanInfo(b *model.Ban) banInfo {
	info := banInfo{
		ID:        b.ID,
		UserID:    b.UserID,
		IP:        b.IP,
		Reason:    b.Reason,
		BannedBy:  b.BannedBy,
		Active:    b.Active(timeNow()),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !b.ExpiresAt.IsZero() {
		info.ExpiresAt = b.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return info
}

// banPayload is the create/update body. Absent fields are left unchanged; an
// empty expires_at makes the ban permanent.
type banPayload struct {
	UserID    *int64  `json:"user_id"`
	IP        *string `json:"ip"`
	Reason    *string `json:"reason"`
	ExpiresAt *string `json:"expires_at"`
}

func (p banPayload) apply(b *model.Ban) error {
	if p.UserID != nil {
		b.UserID = *p.UserID
	}
	if p.IP != nil {
		b.IP = *p.IP
	}
	if p.Reason != nil {
		b.Reason = *p.Reason
	}
	if p.ExpiresAt != nil {
		if *p.ExpiresAt == "" {
			b.ExpiresAt = time.Time{}
		} else {
			t, err := time.Parse(time.RFC3339, *p.ExpiresAt)
			if err != nil {
				errs := model.ValidationErrors{}
				errs.Add("expires_at", "must be an RFC 3339 timestamp")
				return errs
			}
			b.ExpiresAt = t
		}
	}
	return nil
}

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.OpList, rbac.Bans()); !ok {
		return
	}
	bans, err := s.store.ListBans(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]banInfo, 0, len(bans))
	for i := range bans {
		out = append(out, newBanInfo(&bans[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBan(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.OpCreate, rbac.Bans())
	if !ok {
		return
	}
	var p banPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	b := &model.Ban{BannedBy: actor.ID}
	if err := p.apply(b); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.CreateBan(r.Context(), b); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.BansCreated.Add(1)
	slog.Info("ban created", "ban_id", b.ID, "user_id", b.UserID, "ip", b.IP, "by", actor.ID)
	writeJSON(w, http.StatusCreated, newBanInfo(b))
}

func (s *Server) handleGetBan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, rbac.OpRead, rbac.Bans()); !ok {
		return
	}
	b, err := s.store.GetBan(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newBanInfo(b))
}

func (s *Server) handleUpdateBan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, rbac.OpUpdate, rbac.Bans()); !ok {
		return
	}
	var p banPayload
	if !decodeJSON(r, &p) {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	ctx := r.Context()
	b, err := s.store.GetBan(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	if err := p.apply(b); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.UpdateBan(ctx, b); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBanInfo(b))
}

func (s *Server) handleDeleteBan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := s.authorize(w, r, rbac.OpDelete, rbac.Bans())
	if !ok {
		return
	}
	if err := s.store.DeleteBan(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.BansDeleted.Add(1)
	slog.Info("ban deleted", "ban_id", id, "by", actor.ID)
	writeJSON(w, http.StatusOK, struct{}{})
}
