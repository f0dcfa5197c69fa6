// Package api is the HTTP facade: request decoding and validation, service
// invocation, and mapping of results and typed errors onto responses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mlhubdev/mlhub/internal/apperrors"
	"github.com/mlhubdev/mlhub/internal/service"
	"github.com/mlhubdev/mlhub/internal/token"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterHandler handles POST /api/v1/auth/register.
func RegisterHandler(svc service.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}

		view, err := svc.Register(r.Context(), service.RegisterParams{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			FullName: req.Name,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

// LoginHandler handles POST /api/v1/auth/login.
func LoginHandler(svc service.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Username == "" && req.Email == "" {
			writeError(w, apperrors.Validation("at least one of username or email is required"))
			return
		}

		view, err := svc.Login(r.Context(), service.LoginParams{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

// WhoamiHandler handles GET /api/v1/auth/whoami for a PRIVATE-TOKEN caller.
func WhoamiHandler(tokens *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFrom(r.Context())
		if !ok {
			writeError(w, apperrors.AuthenticationFailed(http.StatusUnauthorized, "missing token", nil))
			return
		}

		view := service.UserView{
			ID:       account.ID,
			Username: account.Username,
			Email:    account.Email,
		}
		if cached, err := tokens.Tokens(r.Context(), account.ID); err == nil {
			view.Token = cached.Permanent
			view.AccessToken = cached.AccessToken
			view.RefreshToken = cached.RefreshToken
		}

		writeJSON(w, http.StatusOK, view)
	}
}

// UpdateUserHandler handles PUT /api/v1/auth/user.
func UpdateUserHandler(svc service.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFrom(r.Context())
		if !ok {
			writeError(w, apperrors.AuthenticationFailed(http.StatusUnauthorized, "missing token", nil))
			return
		}

		var req UpdateUserRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}

		view, err := svc.Update(r.Context(), account.ID, service.UpdateParams{
			Name:  req.Name,
			Email: req.Email,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

// decode unmarshals and validates a request body, classifying every failure
// as ValidationFailed.
func decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperrors.Validation("malformed request body")
	}
	if err := validate.Struct(into); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return apperrors.Internal(err)
		}
		return apperrors.Validation("invalid request: %v", err)
	}
	return nil
}
