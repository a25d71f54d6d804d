package accounts

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterAuthRoutes registers the sign-up, sign-in and reset endpoints.
func RegisterAuthRoutes(r *mux.Router, handler *AuthHandler) {
	r.HandleFunc("/signup", handler.SignUp).Methods(http.MethodPost)
	r.HandleFunc("/signin", handler.SignIn).Methods(http.MethodPost)
	r.HandleFunc("/signout", handler.SignOut).Methods(http.MethodPost)
	r.HandleFunc("/reset", handler.RequestReset).Methods(http.MethodPost)
	r.HandleFunc("/reset/confirm", handler.ConfirmReset).Methods(http.MethodPost)
}
