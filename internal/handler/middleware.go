package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"finpay-ledger/internal/auth"
	"finpay-ledger/internal/errors"
)

// Authenticate resolves the bearer token to an identity stored in the request
// context. Requests without a valid token are rejected.
func Authenticate(authenticator *auth.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, errors.ErrUnauthorized)
				return
			}

			id, err := authenticator.Verify(token)
			if err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
