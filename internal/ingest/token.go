package ingest

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tidemark-io/tidemark/internal/platform/httpx"
)

// TokenMiddleware guards the collaborator load surface with a shared bearer
// token. Only the bcrypt hash of the token is configured; the plaintext never
// touches the environment.
func TokenMiddleware(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				httpx.Problem(w, http.StatusServiceUnavailable, "Ingest Disabled", "no ingest token configured")
				return
			}
			token := bearerToken(r)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
