package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// UnknownLabel names a chat with no participant other than the viewer.
const UnknownLabel = "Unknown"

const (
	activityActive = "Active now"
	activityIdle   = "Tap to chat"
)

// Entry is one row of the chat list.
type Entry struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Initial   string    `json:"initial"`
	Activity  string    `json:"activity"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// DirectoryState is what a client renders for the chat list. On a
// subscription failure Entries is empty and Retryable is set.
type DirectoryState struct {
	Entries   []Entry `json:"entries"`
	Filter    string  `json:"filter"`
	Loading   bool    `json:"loading"`
	Error     string  `json:"error,omitempty"`
	Retryable bool    `json:"retryable,omitempty"`
}

// Directory keeps a live list of the viewer's chats.
type Directory struct {
	store    storage.Store
	session  *session.Session
	log      zerolog.Logger
	onChange func(DirectoryState)

	mu       sync.Mutex
	gen      uint64
	sub      *livequery.Subscription
	chats    []models.Chat
	pending  map[string]models.Chat // inserted locally, not yet in a snapshot
	filter   string
	selected string
	loading  bool
	err      error

	emitMu sync.Mutex
}

func NewDirectory(store storage.Store, sess *session.Session, logger zerolog.Logger, onChange func(DirectoryState)) *Directory {
	if onChange == nil {
		onChange = func(DirectoryState) {}
	}
	return &Directory{
		store:    store,
		session:  sess,
		log:      logger,
		onChange: onChange,
		pending:  make(map[string]models.Chat),
	}
}

// Subscribe starts the live chat list of the signed-in user, replacing
// any earlier subscription.
func (d *Directory) Subscribe(ctx context.Context) error {
	id, err := d.session.Identity()
	if err != nil {
		return err
	}

	d.mu.Lock()
	prev := d.sub
	d.sub = nil
	d.gen++
	gen := d.gen
	d.loading = true
	d.err = nil
	d.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	email := id.Email
	sub, err := livequery.Watch(ctx, d.store.Feed(), livequery.ChatsTopic(email),
		func(ctx context.Context) ([]models.Chat, error) {
			return d.store.ListChats(ctx, email)
		},
		func(chats []models.Chat, err error) {
			d.apply(gen, chats, err)
		})
	if err != nil {
		d.apply(gen, nil, err)
		return err
	}

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		sub.Close()
		return nil
	}
	d.sub = sub
	d.mu.Unlock()
	return nil
}

func (d *Directory) apply(gen uint64, chats []models.Chat, err error) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.loading = false
	if err != nil {
		d.chats = nil
		d.err = apperr.Subscription(err)
		metrics.SubscriptionErrors.WithLabelValues("chats").Inc()
		d.log.Warn().Err(err).Msg("chat list subscription failed")
	} else {
		d.chats = chats
		d.err = nil
		for _, c := range chats {
			delete(d.pending, c.ID)
		}
	}
	d.mu.Unlock()
	d.emit(gen)
}

// emit hands the current state to onChange unless a newer subscription
// took over. Emissions are serialized so a stale state never lands after
// a fresh one.
func (d *Directory) emit(gen uint64) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	state := d.stateLocked()
	d.mu.Unlock()
	d.onChange(state)
}

func (d *Directory) current() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// SetFilter narrows the list to entries whose label contains term, case
// insensitively.
func (d *Directory) SetFilter(term string) {
	d.mu.Lock()
	d.filter = term
	d.mu.Unlock()
	d.emit(d.current())
}

// Select marks chatID as the active entry.
func (d *Directory) Select(chatID string) {
	d.mu.Lock()
	d.selected = chatID
	d.mu.Unlock()
	d.emit(d.current())
}

// Insert shows chat immediately, before a snapshot carries it.
func (d *Directory) Insert(chat models.Chat) {
	d.mu.Lock()
	known := false
	for _, c := range d.chats {
		if c.ID == chat.ID {
			known = true
			break
		}
	}
	if !known {
		d.pending[chat.ID] = chat
	}
	d.mu.Unlock()
	d.emit(d.current())
}

// Retry refetches after a failure, resubscribing if no subscription is
// open.
func (d *Directory) Retry(ctx context.Context) error {
	d.mu.Lock()
	sub := d.sub
	if sub != nil {
		d.loading = true
	}
	d.mu.Unlock()
	if sub == nil {
		return d.Subscribe(ctx)
	}
	sub.Refresh()
	return nil
}

// Close releases the subscription. Later deliveries are dropped.
func (d *Directory) Close() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.gen++
	d.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// State returns the current list.
func (d *Directory) State() DirectoryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

func (d *Directory) stateLocked() DirectoryState {
	state := DirectoryState{
		Entries: []Entry{},
		Filter:  d.filter,
		Loading: d.loading,
	}
	if d.err != nil {
		state.Error = d.err.Error()
		state.Retryable = true
		return state
	}

	chats := make([]models.Chat, 0, len(d.chats)+len(d.pending))
	chats = append(chats, d.chats...)
	for _, c := range d.pending {
		chats = append(chats, c)
	}
	state.Entries = BuildEntries(chats, d.session.Email(), d.filter, d.selected)
	return state
}

// BuildEntries renders chats as list rows for viewer, newest first, keeping
// those whose label contains filter case insensitively. The row of
// selected is marked active.
func BuildEntries(chats []models.Chat, viewer, filter, selected string) []Entry {
	sorted := slices.Clone(chats)
	models.SortChats(sorted)

	term := strings.ToLower(strings.TrimSpace(filter))
	entries := []Entry{}
	for _, c := range sorted {
		label := Label(c, viewer)
		if term != "" && !strings.Contains(strings.ToLower(label), term) {
			continue
		}
		active := c.ID == selected
		activity := activityIdle
		if active {
			activity = activityActive
		}
		entries = append(entries, Entry{
			ID:        c.ID,
			Label:     label,
			Initial:   initial(label),
			Activity:  activity,
			Active:    active,
			CreatedAt: c.CreatedAt,
		})
	}
	return entries
}

// Label is the participant of chat other than viewer, or UnknownLabel.
func Label(chat models.Chat, viewer string) string {
	if other := chat.Other(viewer); other != "" {
		return other
	}
	return UnknownLabel
}

func initial(label string) string {
	r, _ := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
