package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/edubridge/ltibridge/internal/principal"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal.Principal)
	return p, ok
}

// Middleware authenticates requests via the bearer token and attaches
// the recovered Principal to the request context. Each decode failure
// kind maps to its own rejection.
func Middleware(codec *Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := codec.DecodeRequest(r)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			case errors.Is(err, ErrMissingSessionToken):
				http.Error(w, "missing session token", http.StatusUnauthorized)
			case errors.Is(err, ErrExpiredSessionToken):
				http.Error(w, "expired session token", http.StatusUnauthorized)
			default:
				http.Error(w, "invalid session token", http.StatusForbidden)
			}
		})
	}
}
