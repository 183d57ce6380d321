package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// routes builds the HTTP router. Operational endpoints sit outside the
// session middleware so health checks and scrapers never create sessions.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	app := r.PathPrefix("/").Subrouter()
	app.Use(s.logRequests, s.withSession)

	app.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	app.HandleFunc("/r/{id}", s.handleRoom).Methods(http.MethodGet)

	app.HandleFunc("/auth", s.handleLoginPage).Methods(http.MethodGet)
	app.HandleFunc("/auth", s.handleLogin).Methods(http.MethodPost)
	app.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	app.HandleFunc("/auth/socket_token", s.handleSocketToken).Methods(http.MethodPost)
	app.HandleFunc("/auth/name", s.handleRememberName).Methods(http.MethodPost)

	app.HandleFunc("/admin", s.handleAdmin).Methods(http.MethodGet)
	app.HandleFunc("/admin/{rest:.*}", s.handleAdmin).Methods(http.MethodGet)
	app.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	app.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	app.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	app.HandleFunc("/users/{id:[0-9]+}", s.handleGetUser).Methods(http.MethodGet)
	app.HandleFunc("/users/{id:[0-9]+}", s.handleUpdateUser).Methods(http.MethodPut)
	app.HandleFunc("/users/{id:[0-9]+}", s.handleDeleteUser).Methods(http.MethodDelete)

	app.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	app.HandleFunc("/channels", s.handleCreateChannel).Methods(http.MethodPost)
	app.HandleFunc("/channels/{id:[0-9]+}", s.handleGetChannel).Methods(http.MethodGet)
	app.HandleFunc("/channels/{id:[0-9]+}", s.handleUpdateChannel).Methods(http.MethodPut)
	app.HandleFunc("/channels/{id:[0-9]+}", s.handleDeleteChannel).Methods(http.MethodDelete)

	app.HandleFunc("/bans", s.handleListBans).Methods(http.MethodGet)
	app.HandleFunc("/bans", s.handleCreateBan).Methods(http.MethodPost)
	app.HandleFunc("/bans/{id:[0-9]+}", s.handleGetBan).Methods(http.MethodGet)
	app.HandleFunc("/bans/{id:[0-9]+}", s.handleUpdateBan).Methods(http.MethodPut)
	app.HandleFunc("/bans/{id:[0-9]+}", s.handleDeleteBan).Methods(http.MethodDelete)

	return r
}
