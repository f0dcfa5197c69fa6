package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mlhubdev/mlhub/internal/apperrors"
	"github.com/mlhubdev/mlhub/internal/store"
	"github.com/mlhubdev/mlhub/internal/store/models"
)

type contextKey string

const accountKey contextKey = "account"

// PrivateTokenAuth resolves the calling account from its permanent token,
// taken from the PRIVATE-TOKEN header or an Authorization bearer value.
func PrivateTokenAuth(st *store.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get("PRIVATE-TOKEN")
			if secret == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					secret = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if secret == "" {
				writeError(w, apperrors.AuthenticationFailed(http.StatusUnauthorized, "missing token", nil))
				return
			}

			account, err := st.FindAccountByPermanentToken(r.Context(), secret)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, apperrors.AuthenticationFailed(http.StatusUnauthorized, "invalid token", nil))
					return
				}
				writeError(w, apperrors.Internal(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

func withAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFrom returns the authenticated account, if any.
func AccountFrom(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountKey).(*models.Account)
	return account, ok
}
