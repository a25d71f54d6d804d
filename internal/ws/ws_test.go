package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/config"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/middleware"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage/memory"
)

// tokens maps a token straight to the identity with that email.
type tokens struct{}

func (tokens) Verify(token string) (models.Identity, error) {
	if !strings.Contains(token, "@") {
		return models.Identity{}, apperr.Auth("invalid token")
	}
	return models.Identity{Email: token}, nil
}

func newTestServer(t *testing.T, users ...string) (*httptest.Server, *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	feed := livequery.NewHub()
	go feed.Run(ctx)

	logger := zerolog.Nop()
	store := memory.NewDMStore(feed, logger)
	for _, email := range users {
		require.NoError(t, store.CreateUser(ctx, &models.User{Identity: models.Identity{Email: email}}))
	}

	hub := NewHub()
	h := &Handler{
		Services: chat.Services{
			Store:    store,
			Creator:  chat.NewCreator(store, config.ChatIDPair, logger),
			Receipts: chat.NewReconciler(store, logger),
			Log:      logger,
		},
		Hub:      hub,
		Location: time.UTC,
		Upgrader: NewUpgrader("*"),
		Log:      logger,
	}
	srv := httptest.NewServer(middleware.RequireAuth(tokens{})(http.HandlerFunc(h.ServeWS)))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dms?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads events until one satisfies match.
func next(t *testing.T, conn *websocket.Conn, match func(chat.Event) bool) chat.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev chat.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}

func TestLiveConversation(t *testing.T) {
	srv, _ := newTestServer(t, "alice@x.com", "bob@x.com")
	alice := dial(t, srv, "alice@x.com")
	bob := dial(t, srv, "bob@x.com")

	next(t, alice, func(ev chat.Event) bool { return ev.Kind == chat.EventChats && !ev.Chats.Loading })

	require.NoError(t, alice.WriteJSON(inbound{Type: "search", Email: "bob@x.com"}))
	opened := next(t, alice, func(ev chat.Event) bool {
		return ev.Kind == chat.EventTranscript && ev.Transcript.ChatID != ""
	})
	chatID := opened.Transcript.ChatID
	require.Equal(t, "bob@x.com", opened.Transcript.Title)

	require.NoError(t, alice.WriteJSON(inbound{Type: "send", Text: "hello"}))
	next(t, alice, func(ev chat.Event) bool { return ev.Kind == chat.EventCompose && *ev.Text == "" })

	next(t, bob, func(ev chat.Event) bool {
		return ev.Kind == chat.EventChats && len(ev.Chats.Entries) == 1
	})
	require.NoError(t, bob.WriteJSON(inbound{Type: "select", DMID: chatID}))
	got := next(t, bob, func(ev chat.Event) bool {
		return ev.Kind == chat.EventTranscript && len(ev.Transcript.Items) == 1
	})
	require.Equal(t, "hello", got.Transcript.Items[0].Message.Text)

	// Bob's view marks the message read and Alice sees it flip.
	next(t, alice, func(ev chat.Event) bool {
		return ev.Kind == chat.EventTranscript && len(ev.Transcript.Items) == 1 &&
			ev.Transcript.Items[0].Message.Status == models.StatusRead
	})
}

func TestErrorsAreReported(t *testing.T) {
	srv, _ := newTestServer(t, "alice@x.com")
	conn := dial(t, srv, "alice@x.com")

	require.NoError(t, conn.WriteJSON(inbound{Type: "search", Email: "alice@x.com"}))
	ev := next(t, conn, func(ev chat.Event) bool { return ev.Kind == chat.EventError })
	require.Equal(t, "validation", ev.ErrorKind)

	require.NoError(t, conn.WriteJSON(inbound{Type: "dance"}))
	ev = next(t, conn, func(ev chat.Event) bool { return ev.Kind == chat.EventError })
	require.Contains(t, ev.Message, "unknown message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev = next(t, conn, func(ev chat.Event) bool { return ev.Kind == chat.EventError })
	require.Equal(t, "malformed message", ev.Message)
}

func TestEndSessionClosesConnection(t *testing.T) {
	srv, hub := newTestServer(t, "alice@x.com")
	conn := dial(t, srv, "alice@x.com")
	next(t, conn, func(ev chat.Event) bool { return ev.Kind == chat.EventChats })

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, hub.EndSession("alice@x.com"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
	}
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRejectsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dms?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubEndSession(t *testing.T) {
	hub := NewHub()
	a, b, other := session.New(), session.New(), session.New()
	hub.Register("t1", a)
	hub.Register("t1", b)
	hub.Register("t2", other)
	require.Equal(t, 3, hub.Count())

	require.Equal(t, 2, hub.EndSession("t1"))
	require.Equal(t, session.SignedOut, a.Status())
	require.Equal(t, session.SignedOut, b.Status())
	require.Equal(t, session.Loading, other.Status())

	hub.Unregister("t2", other)
	require.Zero(t, hub.Count())
}
