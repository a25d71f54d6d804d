package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/auth"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/config"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/storage/memory"
	"github.com/Vasu1712/chatwise-backend/internal/ws"
)

const password = "Secr3t!pass"

type testServer struct {
	*httptest.Server
	store *memory.DMStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := livequery.NewHub()
	go hub.Run(ctx)

	logger := zerolog.Nop()
	store := memory.NewDMStore(hub, logger)
	handler := NewRouter(Deps{
		Chat: chat.Services{
			Store:    store,
			Creator:  chat.NewCreator(store, config.ChatIDPair, logger),
			Receipts: chat.NewReconciler(store, logger),
			Log:      logger,
		},
		Auth:       auth.NewService(store, "test-secret", time.Hour, auth.LogNotifier{Log: logger}, logger),
		Hub:        ws.NewHub(),
		Location:   time.UTC,
		CORSOrigin: "http://localhost:5173",
		Log:        logger,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) signUpAndIn(t *testing.T, email string) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/auth/signup", "",
		map[string]string{"email": email, "password": password}, nil))

	var out struct {
		Token string          `json:"token"`
		User  models.Identity `json:"user"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/auth/signin", "",
		map[string]string{"email": email, "password": password}, &out))
	require.NotEmpty(t, out.Token)
	require.Equal(t, email, out.User.Email)
	return out.Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var out map[string]string
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil, &out))
	require.Equal(t, "ok", out["status"])
}

func TestDMRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/dms/list", "", nil, nil))
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/dms/list", "garbage", nil, nil))
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.signUpAndIn(t, "alice@x.com")
	bobTok := s.signUpAndIn(t, "bob@x.com")

	var conv models.Chat
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/dms/start", aliceTok,
		map[string]string{"email": "bob@x.com"}, &conv))
	var again models.Chat
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/dms/start", bobTok,
		map[string]string{"email": "alice@x.com"}, &again))
	require.Equal(t, conv.ID, again.ID)

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/dms/start", aliceTok,
		map[string]string{"email": "alice@x.com"}, nil))
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/dms/start", aliceTok,
		map[string]string{"email": "ghost@x.com"}, nil))

	var msg models.Message
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/dms/send", aliceTok,
		map[string]string{"dm_id": conv.ID, "text": "hi bob"}, &msg))
	require.Equal(t, models.StatusSent, msg.Status)
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/dms/send", aliceTok,
		map[string]string{"dm_id": conv.ID, "text": "   "}, nil))

	var list chat.DirectoryState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/dms/list?q=ALI", bobTok, nil, &list))
	require.Len(t, list.Entries, 1)
	require.Equal(t, "alice@x.com", list.Entries[0].Label)

	// Bob reading the transcript marks Alice's message read.
	var tr chat.Transcript
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/dms/messages?dm_id="+conv.ID+"&tz=Europe/Berlin", bobTok, nil, &tr))
	require.Len(t, tr.Items, 1)
	require.True(t, tr.Items[0].NewDay)
	require.Equal(t, "alice@x.com", tr.Title)

	msgs, err := s.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRead, msgs[0].Status)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/dms/read", bobTok,
		map[string]string{"dm_id": conv.ID, "message_id": msg.ID}, nil))
}

func TestSenderCannotMarkOwnMessageRead(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.signUpAndIn(t, "alice@x.com")
	s.signUpAndIn(t, "bob@x.com")

	var conv models.Chat
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/dms/start", aliceTok,
		map[string]string{"email": "bob@x.com"}, &conv))
	var msg models.Message
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/dms/send", aliceTok,
		map[string]string{"dm_id": conv.ID, "text": "hi bob"}, &msg))

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/dms/read", aliceTok,
		map[string]string{"dm_id": conv.ID, "message_id": msg.ID}, nil))

	msgs, err := s.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSent, msgs[0].Status)
}

func TestNonParticipantCannotReadChat(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.signUpAndIn(t, "alice@x.com")
	s.signUpAndIn(t, "bob@x.com")
	carolTok := s.signUpAndIn(t, "carol@x.com")

	var conv models.Chat
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/dms/start", aliceTok,
		map[string]string{"email": "bob@x.com"}, &conv))

	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/dms/messages?dm_id="+conv.ID, carolTok, nil, nil))
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/dms/send", carolTok,
		map[string]string{"dm_id": conv.ID, "text": "sneaky"}, nil))
}

func TestSignOutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	tok := s.signUpAndIn(t, "alice@x.com")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/dms/list", tok, nil, nil))
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/auth/signout", tok, nil, nil))
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/dms/list", tok, nil, nil))
}

func TestCORSPreflightBeforeRouting(t *testing.T) {
	s := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/v1/dms/send", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
