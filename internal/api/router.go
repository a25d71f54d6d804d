// Package api assembles the HTTP surface of the server.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/api/accounts"
	"github.com/Vasu1712/chatwise-backend/internal/api/dms"
	"github.com/Vasu1712/chatwise-backend/internal/api/render"
	"github.com/Vasu1712/chatwise-backend/internal/auth"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/middleware"
	"github.com/Vasu1712/chatwise-backend/internal/ws"
)

// Deps are the services the routes are built on.
type Deps struct {
	Chat       chat.Services
	Auth       *auth.Service
	Hub        *ws.Hub
	Location   *time.Location
	CORSOrigin string
	Log        zerolog.Logger
}

// NewRouter wires every route. CORS wraps the router so preflights are
// answered before method matching.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logger(d.Log))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authHandler := &accounts.AuthHandler{
		Service:   d.Auth,
		Log:       d.Log,
		OnSignOut: func(token string) { d.Hub.EndSession(token) },
	}
	accounts.RegisterAuthRoutes(r.PathPrefix("/api/v1/auth").Subrouter(), authHandler)

	requireAuth := middleware.RequireAuth(d.Auth)

	dmRoutes := r.PathPrefix("/api/v1/dms").Subrouter()
	dmRoutes.Use(requireAuth)
	dms.RegisterDMRoutes(dmRoutes, &dms.DMHandler{
		Store:    d.Chat.Store,
		Creator:  d.Chat.Creator,
		Receipts: d.Chat.Receipts,
		Location: d.Location,
		Log:      d.Log,
	})

	wsHandler := &ws.Handler{
		Services: d.Chat,
		Hub:      d.Hub,
		Location: d.Location,
		Upgrader: ws.NewUpgrader(d.CORSOrigin),
		Log:      d.Log,
	}
	r.Handle("/ws/dms", requireAuth(http.HandlerFunc(wsHandler.ServeWS))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return middleware.CORS(d.CORSOrigin, d.Log)(r)
}
