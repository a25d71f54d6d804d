package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Verifier resolves a session token to the identity it was issued for.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

// RequireAuth rejects requests without a valid token. The token is read
// from the Authorization bearer header, or from the token query parameter
// for WebSocket upgrades where browsers cannot set headers.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "missing token")
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				jsonError(w, apperr.HTTPStatus(err), err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// BearerToken extracts the request's session token or "".
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity RequireAuth attached.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
