package accounts

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/api/render"
	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/auth"
	"github.com/Vasu1712/chatwise-backend/internal/middleware"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

// AuthHandler exposes the identity service over HTTP.
type AuthHandler struct {
	Service *auth.Service
	Log     zerolog.Logger
	// OnSignOut runs after a token is revoked, ending the live sessions
	// opened with it.
	OnSignOut func(token string)
}

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	id, err := h.Service.SignUp(r.Context(), req.Email, req.Password, models.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	render.JSON(w, http.StatusCreated, id)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	tok, id, err := h.Service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		render.Error(w, h.Log, err)
		return
	}
	render.JSON(w, http.StatusOK, struct {
		auth.Token
		User models.Identity `json:"user"`
	}{tok, id})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		render.Error(w, h.Log, apperr.Auth("missing token"))
		return
	}
	if err := h.Service.SignOut(token); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	if h.OnSignOut != nil {
		h.OnSignOut(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	if err := h.Service.SendPasswordReset(r.Context(), req.Email); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	render.JSON(w, http.StatusAccepted, map[string]string{"status": "reset email sent"})
}

func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	if err := h.Service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		render.Error(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
