package dms

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterDMRoutes registers the DM endpoints on r. The caller is
// expected to have installed the auth middleware on r.
func RegisterDMRoutes(r *mux.Router, handler *DMHandler) {
	r.HandleFunc("/start", handler.StartOrGetConversation).Methods(http.MethodPost)
	r.HandleFunc("/list", handler.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/messages", handler.GetMessages).Methods(http.MethodGet)
	r.HandleFunc("/send", handler.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/read", handler.MarkRead).Methods(http.MethodPost)
}
