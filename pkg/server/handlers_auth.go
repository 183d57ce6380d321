package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/session"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON decodes an optional JSON body into v. An empty or malformed body
// leaves v untouched and reports false.
func decodeJSON(r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		return false
	}
	return json.Unmarshal(body, v) == nil
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	resp := map[string]any{"login": "/auth", "fields": []string{"name", "password"}}
	if u != nil {
		resp["user"] = u.Info(false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogin checks a name and password and binds the session to the user.
// The session key is replaced on success.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		s.metrics.LoginsThrottled.Add(1)
		writeError(w, http.StatusTooManyRequests, codeRateLimited)
		return
	}

	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decodeJSON(r, &req) {
			writeError(w, http.StatusBadRequest, codeBadRequest)
			return
		}
	} else {
		req.Name = r.PostFormValue("name")
		req.Password = r.PostFormValue("password")
	}

	ctx := r.Context()
	u, err := s.store.GetUserByUsername(ctx, req.Name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	ok := false
	if u != nil {
		ok, err = crypto.VerifyPassword(u.PasswordHash, req.Password)
		if err != nil && !errors.Is(err, crypto.ErrInvalidHash) {
			writeStoreError(w, r, err)
			return
		}
	}
	if !ok {
		s.metrics.LoginsFailed.Add(1)
		slog.Info("login failed", "name", req.Name, "ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials)
		return
	}

	banned, err := s.isBanned(r, u.ID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if banned {
		s.metrics.LoginsFailed.Add(1)
		slog.Info("login refused for banned user", "user_id", u.ID, "ip", clientIP(r))
		writeError(w, http.StatusForbidden, codeBanned)
		return
	}

	id := identity(r)
	old := id.Session()
	fresh := &model.Session{Key: session.NewKey(), Name: old.Name}
	fresh.BindUser(u.ID)
	returnTo := old.TakeReturnTo("/")

	if err := s.sessions.Save(ctx, fresh); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.sessions.Delete(ctx, old.Key); err != nil {
		slog.Warn("delete replaced session", "err", err)
	}
	s.setSessionCookie(w, fresh.Key)
	s.metrics.LoginsSucceeded.Add(1)
	slog.Info("user logged in", "user_id", u.ID, "name", u.Username)

	if isProgrammatic(r) {
		writeJSON(w, http.StatusOK, map[string]any{"user": u.Info(true), "return_to": returnTo})
		return
	}
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

func (s *Server) isBanned(r *http.Request, userID int64) (bool, error) {
	ctx := r.Context()
	banned, err := s.store.IsUserBanned(ctx, userID)
	if err != nil || banned {
		return banned, err
	}
	return s.store.IsIPBanned(ctx, clientIP(r))
}

// handleLogout clears the user binding. The remembered name survives.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	sess := id.Session()
	if sess.Authenticated() {
		sess.Logout()
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			writeStoreError(w, r, err)
			return
		}
		id.Reset()
		s.metrics.Logouts.Add(1)
	}
	if isProgrammatic(r) {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSocketToken issues a fresh socket token to a logged-in user, or
// returns the remembered display name to an anonymous caller.
func (s *Server) handleSocketToken(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	if u == nil {
		ident, err := s.tokens.CurrentIdentity(r.Context(), identity(r).Session())
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": nullable(ident.Name)})
		return
	}

	tok, err := s.tokens.IssueToken(r.Context(), u)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.TokensIssued.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"auth_token": tok})
}

// handleRememberName stores the display name used by anonymous participants.
func (s *Server) handleRememberName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	decodeJSON(r, &body)

	if body.Name != "" {
		if err := s.tokens.RememberName(r.Context(), identity(r).Session(), body.Name); err != nil {
			writeStoreError(w, r, err)
			return
		}
		s.metrics.NamesRemembered.Add(1)
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// nullable maps an empty string to JSON null.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
