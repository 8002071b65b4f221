package middleware

import (
	"net/http"
	"strings"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/auth"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authentication requires a valid bearer token and stores its claims in
// the request context.
func Authentication(v TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(v, true)
}

// OptionalAuthentication stores the claims of a valid bearer token when
// one is sent. Requests without an Authorization header pass through
// anonymously; a token that is present but invalid is still rejected.
func OptionalAuthentication(v TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(v, false)
}

func authenticate(v TokenVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					errors.WriteError(w, errors.NewAuthError(GetRequestID(r.Context()), "Missing bearer token", nil))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				errors.WriteError(w, errors.NewAuthError(GetRequestID(r.Context()), "Malformed Authorization header", nil))
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				errors.WriteError(w, errors.NewAuthError(GetRequestID(r.Context()), "Invalid or expired token", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
