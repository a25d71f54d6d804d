// Package ws serves the live chat view over WebSocket.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/api/render"
	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
	"github.com/Vasu1712/chatwise-backend/internal/middleware"
	"github.com/Vasu1712/chatwise-backend/internal/session"
)

// Handler upgrades authenticated requests and runs a chat.View per
// connection.
type Handler struct {
	Services chat.Services
	Hub      *Hub
	Location *time.Location
	Upgrader websocket.Upgrader
	Log      zerolog.Logger
}

// ServeWS must run behind middleware.RequireAuth.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		render.Error(w, h.Log, apperr.Auth("missing token"))
		return
	}
	loc, err := session.ParseLocation(r.URL.Query().Get("tz"), h.Location)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}

	sess := session.New()
	if err := sess.Start(id, loc); err != nil {
		render.Error(w, h.Log, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	token := middleware.BearerToken(r)
	h.Hub.Register(token, sess)
	defer h.Hub.Unregister(token, sess)

	client := NewClient(id.Email, conn, h.Log.With().Str("user", id.Email).Logger())
	client.Start()
	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	view := chat.NewView(r.Context(), h.Services, sess, client.Emit)
	defer view.Close()
	if err := view.Start(); err != nil {
		client.Emit(chat.ErrorEvent(err))
		client.Close(websocket.CloseInternalServerErr, "subscription failed")
		return
	}

	go func() {
		select {
		case <-sess.Done():
			client.Close(websocket.CloseNormalClosure, "signed out")
		case <-client.Done():
		}
	}()

	client.log.Info().Msg("client connected")
	client.readLoop(func(in inbound) {
		if err := dispatch(view, in); err != nil {
			client.Emit(chat.ErrorEvent(err))
		}
	})
	client.Close(websocket.CloseNormalClosure, "")
	sess.Invalidate()
	client.log.Info().Msg("client disconnected")
}

func dispatch(view *chat.View, in inbound) error {
	switch in.Type {
	case "select":
		return view.Select(in.DMID)
	case "filter":
		view.Filter(in.Term)
	case "search":
		_, err := view.Search(in.Email)
		return err
	case "compose":
		view.Compose(in.Text)
	case "send":
		return view.Send(in.Text)
	case "retry":
		return view.Retry()
	default:
		return apperr.Validation("unknown message type " + in.Type)
	}
	return nil
}

// NewUpgrader accepts connections from origin, or from any origin when
// origin is "*".
func NewUpgrader(origin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			got := r.Header.Get("Origin")
			return origin == "*" || got == "" || got == origin
		},
	}
}
