package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// EventKind tags a View event.
type EventKind string

const (
	EventChats      EventKind = "chats"
	EventTranscript EventKind = "transcript"
	EventCompose    EventKind = "compose"
	EventError      EventKind = "error"
)

// Event is a state change pushed to the client of a View.
type Event struct {
	Kind       EventKind       `json:"type"`
	Chats      *DirectoryState `json:"chats,omitempty"`
	Transcript *Transcript     `json:"transcript,omitempty"`
	Text       *string         `json:"text,omitempty"`
	ErrorKind  string          `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// ErrorEvent describes err for the client.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, ErrorKind: apperr.KindOf(err), Message: err.Error()}
}

// Services are the collaborators shared by every View.
type Services struct {
	Store    storage.Store
	Creator  *Creator
	Receipts *Reconciler
	Log      zerolog.Logger
}

// View is the chat screen of one signed-in client: the chat list, the
// open chat and the draft.
type View struct {
	ctx     context.Context
	cancel  context.CancelFunc
	session *session.Session
	creator *Creator
	log     zerolog.Logger
	emit    func(Event)

	dir      *Directory
	stream   *Stream
	composer Composer

	closeOnce sync.Once
}

// NewView builds a view for sess. emit receives every state change and
// must not block; it is called from subscription goroutines.
func NewView(ctx context.Context, svc Services, sess *session.Session, emit func(Event)) *View {
	ctx, cancel := context.WithCancel(ctx)
	logger := svc.Log.With().Str("user", sess.Email()).Logger()
	v := &View{
		ctx:     ctx,
		cancel:  cancel,
		session: sess,
		creator: svc.Creator,
		log:     logger,
		emit:    emit,
	}
	v.dir = NewDirectory(svc.Store, sess, logger, func(s DirectoryState) {
		v.emit(Event{Kind: EventChats, Chats: &s})
	})
	v.stream = NewStream(svc.Store, sess, svc.Receipts, logger, func(t Transcript) {
		v.emit(Event{Kind: EventTranscript, Transcript: &t})
	})
	return v
}

// Start subscribes to the chat list and tears the view down when the
// session ends.
func (v *View) Start() error {
	if err := v.dir.Subscribe(v.ctx); err != nil {
		return err
	}
	go func() {
		select {
		case <-v.session.Done():
			v.Close()
		case <-v.ctx.Done():
		}
	}()
	return nil
}

func (v *View) Filter(term string) { v.dir.SetFilter(term) }

// Select opens chatID.
func (v *View) Select(chatID string) error {
	if err := v.stream.Open(v.ctx, chatID); err != nil {
		return err
	}
	v.dir.Select(chatID)
	return nil
}

// Search finds or creates the chat with email and opens it.
func (v *View) Search(email string) (*models.Chat, error) {
	chat, _, err := v.creator.FindOrCreate(v.ctx, v.session.Email(), email)
	if err != nil {
		return nil, err
	}
	v.dir.Insert(*chat)
	if err := v.Select(chat.ID); err != nil {
		return nil, err
	}
	return chat, nil
}

// Compose replaces the draft.
func (v *View) Compose(text string) { v.composer.Set(text) }

// Send submits the draft to the open chat. If text is non-empty it
// replaces the draft first.
func (v *View) Send(text string) error {
	if text != "" {
		v.composer.Set(text)
	}
	err := v.composer.Submit(v.ctx, func(ctx context.Context, text string) error {
		_, err := v.stream.Send(ctx, v.stream.Active(), text)
		return err
	})
	draft := v.composer.Text()
	v.emit(Event{Kind: EventCompose, Text: &draft})
	return err
}

// Retry refetches both live queries.
func (v *View) Retry() error {
	v.stream.Refresh()
	return v.dir.Retry(v.ctx)
}

// Directory returns the chat list state.
func (v *View) Directory() DirectoryState { return v.dir.State() }

// Transcript returns the open chat.
func (v *View) Transcript() Transcript { return v.stream.Transcript() }

// Draft returns the composer text.
func (v *View) Draft() string { return v.composer.Text() }

// Close releases every subscription. It is safe to call more than once.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.stream.Close()
		v.dir.Close()
		v.cancel()
	})
}
