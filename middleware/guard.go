package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goToken "github.com/MrEthical07/goToken"
)

type authResultContextKey struct{}

// Validator is the subset of [goToken.Engine] the guards need.
type Validator interface {
	Validate(ctx context.Context, accessToken string) (*goToken.AuthResult, error)
}

func AuthResultFromContext(ctx context.Context) (*goToken.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goToken.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid, non-revoked access token. A store
// outage is answered with 503 so clients do not discard a good token.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := v.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, goToken.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run behind Guard.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if res.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
