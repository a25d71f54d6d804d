package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/config"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
)

type viewEvents struct {
	recorder[Event]
}

func (e *viewEvents) lastOf(kind EventKind) (Event, bool) {
	all := e.history()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind {
			return all[i], true
		}
	}
	return Event{}, false
}

func newTestView(t *testing.T, store *testStore, sess *session.Session) (*View, *viewEvents) {
	t.Helper()
	svc := Services{
		Store:    store,
		Creator:  NewCreator(store, config.ChatIDPair, zerolog.Nop()),
		Receipts: NewReconciler(store, zerolog.Nop()),
		Log:      zerolog.Nop(),
	}
	events := &viewEvents{}
	v := NewView(context.Background(), svc, sess, events.record)
	t.Cleanup(v.Close)
	require.NoError(t, v.Start())
	return v, events
}

func TestViewConversationRoundTrip(t *testing.T) {
	store := newTestStore(t, alice, bob)

	av, aEvents := newTestView(t, store, signedIn(t, alice))
	bv, bEvents := newTestView(t, store, signedIn(t, bob))

	chat, err := av.Search(bob)
	require.NoError(t, err)
	require.Equal(t, chat.ID, av.Transcript().ChatID)
	require.True(t, av.Directory().Entries[0].Active)

	require.NoError(t, av.Send("hello bob"))
	require.Empty(t, av.Draft())

	require.Eventually(t, func() bool {
		ev, ok := bEvents.lastOf(EventChats)
		return ok && len(ev.Chats.Entries) == 1 && ev.Chats.Entries[0].Label == alice
	}, waitFor, tick)

	require.NoError(t, bv.Select(chat.ID))

	// Bob seeing the message flips it to read on Alice's side.
	require.Eventually(t, func() bool {
		ev, ok := aEvents.lastOf(EventTranscript)
		if !ok || len(ev.Transcript.Items) != 1 {
			return false
		}
		return ev.Transcript.Items[0].Message.Status == models.StatusRead
	}, waitFor, tick)
}

func TestViewSendWithoutChat(t *testing.T) {
	store := newTestStore(t, alice)
	v, events := newTestView(t, store, signedIn(t, alice))

	err := v.Send("hi")
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, "hi", v.Draft())

	ev, ok := events.lastOf(EventCompose)
	require.True(t, ok)
	require.Equal(t, "hi", *ev.Text)
}

func TestViewSearchSelfLeavesStateAlone(t *testing.T) {
	store := newTestStore(t, alice)
	v, _ := newTestView(t, store, signedIn(t, alice))

	_, err := v.Search(alice)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Empty(t, v.Transcript().ChatID)

	ev := ErrorEvent(err)
	require.Equal(t, EventError, ev.Kind)
	require.Equal(t, "validation", ev.ErrorKind)
}

func TestViewClosesWhenSessionEnds(t *testing.T) {
	store := newTestStore(t, alice, bob)
	chat := seedChat(t, store, alice)
	sess := signedIn(t, alice)
	v, _ := newTestView(t, store, sess)
	require.NoError(t, v.Select(chat.ID))

	sess.Invalidate()
	require.Eventually(t, func() bool { return v.ctx.Err() != nil }, waitFor, tick)
	require.Empty(t, v.stream.Active())
}
