package auth

import (
	"context"
	"net/http"
	"strings"

	"prep/internal/interview"
)

type ctxKey string

const ownerKey ctxKey = "owner"

func OwnerFromContext(ctx context.Context) (interview.Owner, bool) {
	o, ok := ctx.Value(ownerKey).(interview.Owner)
	return o, ok
}

func WithOwner(ctx context.Context, o interview.Owner) context.Context {
	return context.WithValue(ctx, ownerKey, o)
}

func RequireAuth(jwtSvc *JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(h, "Bearer ")

			owner, err := jwtSvc.Verify(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
