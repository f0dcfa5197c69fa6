package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mlhubdev/mlhub/internal/apperrors"
)

// writeError converts a service error into its transport representation. This
// is the only place taxonomy codes become HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.CodeDuplicateUser:
		status = http.StatusConflict
	case apperrors.CodeUserNotFound:
		status = http.StatusNotFound
	case apperrors.CodeAuthenticationFailed:
		status = http.StatusForbidden
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.ProviderStatus == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
	}

	message := "internal failure"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && code != apperrors.CodeInternalFailure {
		message = appErr.Message
	}

	writeJSON(w, status, ErrorResponse{
		ErrorName: code.Name(),
		ErrorCode: int(code),
		Message:   message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
