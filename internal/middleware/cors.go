package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
)

// CORS allows browser requests from origin and answers preflights.
func CORS(origin string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				logger.Debug().Str("path", r.URL.Path).Msg("handled preflight")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
