package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Authenticator identifica al usuario de un token
type Authenticator interface {
	Identify(token string) (tenantID, userID uuid.UUID, err error)
}

type identityKey struct{}

// Identity es el usuario autenticado de una petición
type Identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// BearerAuth exige un token Bearer válido y guarda la identidad en el contexto
func BearerAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			tenantID, userID, err := authenticator.Identify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, Identity{TenantID: tenantID, UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom devuelve la identidad guardada por BearerAuth
func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
