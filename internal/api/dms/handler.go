package dms

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/api/render"
	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/middleware"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// DMHandler serves one-shot reads and writes of the caller's chats. Live
// updates go over the WebSocket endpoint.
type DMHandler struct {
	Store    storage.Store
	Creator  *chat.Creator
	Receipts *chat.Reconciler
	Location *time.Location
	Log      zerolog.Logger
}

func (h *DMHandler) StartOrGetConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var req struct {
		Email string `json:"email"`
	}
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}

	conv, created, err := h.Creator.FindOrCreate(r.Context(), id.Email, req.Email)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	render.JSON(w, status, conv)
}

func (h *DMHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	convs, err := h.Store.ListChats(r.Context(), id.Email)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	filter := r.URL.Query().Get("q")
	render.JSON(w, http.StatusOK, chat.DirectoryState{
		Entries: chat.BuildEntries(convs, id.Email, filter, ""),
		Filter:  filter,
	})
}

// GetMessages returns the grouped transcript and marks the caller's
// unread messages as read.
func (h *DMHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	conv, err := h.participantChat(r, id, r.URL.Query().Get("dm_id"))
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	loc, err := h.location(r)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}

	msgs, err := h.Store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	h.Receipts.Reconcile(r.Context(), conv.ID, id.Email, msgs)

	render.JSON(w, http.StatusOK, chat.Transcript{
		ChatID: conv.ID,
		Title:  chat.Label(*conv, id.Email),
		Items:  chat.GroupByDay(msgs, id.Email, loc),
	})
}

func (h *DMHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var req struct {
		DMID string `json:"dm_id"`
		Text string `json:"text"`
	}
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}

	msg, err := chat.SendAs(r.Context(), h.Store, id.Email, req.DMID, req.Text, h.Log)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	render.JSON(w, http.StatusCreated, msg)
}

func (h *DMHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var req struct {
		DMID      string `json:"dm_id"`
		MessageID string `json:"message_id"`
	}
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	conv, err := h.participantChat(r, id, req.DMID)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	if err := h.Receipts.MarkRead(r.Context(), conv.ID, req.MessageID, id.Email); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// participantChat loads dmID and hides it from non-participants.
func (h *DMHandler) participantChat(r *http.Request, id models.Identity, dmID string) (*models.Chat, error) {
	if dmID == "" {
		return nil, apperr.Validation("dm_id is required")
	}
	conv, err := h.Store.GetChat(r.Context(), dmID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(id.Email) {
		return nil, apperr.NotFound("chat " + dmID)
	}
	return conv, nil
}

// location reads the viewer's timezone from the tz query parameter.
func (h *DMHandler) location(r *http.Request) (*time.Location, error) {
	return session.ParseLocation(r.URL.Query().Get("tz"), h.Location)
}
