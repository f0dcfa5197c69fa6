package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := &Error{Code: CodeDuplicateUser, Message: "username taken"}
	if !errors.Is(err, ErrDuplicateUser) {
		t.Error("expected match against ErrDuplicateUser sentinel")
	}
	if errors.Is(err, ErrUserNotFound) {
		t.Error("unexpected match against ErrUserNotFound")
	}
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", ErrUserNotFound)
	if !errors.Is(wrapped, ErrUserNotFound) {
		t.Error("expected match through fmt.Errorf wrapping")
	}
	if CodeOf(wrapped) != CodeUserNotFound {
		t.Errorf("CodeOf = %v, want UserNotFound", CodeOf(wrapped))
	}
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	if got := CodeOf(errors.New("disk on fire")); got != CodeInternalFailure {
		t.Errorf("CodeOf = %v, want InternalFailure", got)
	}
}

func TestAuthenticationFailedCarriesProviderStatus(t *testing.T) {
	cause := errors.New("oauth2: cannot fetch token")
	err := AuthenticationFailed(403, "Incorrect user or password", cause)

	if err.ProviderStatus != 403 {
		t.Errorf("provider status = %d", err.ProviderStatus)
	}
	if !errors.Is(err, cause) {
		t.Error("expected unwrap to reach the cause")
	}
	if err.Code.Name() != "AuthenticationFailed" {
		t.Errorf("name = %q", err.Code.Name())
	}
}

func TestValidationMessage(t *testing.T) {
	err := Validation("password must be at least %d characters", 6)
	if err.Message != "password must be at least 6 characters" {
		t.Errorf("message = %q", err.Message)
	}
	if CodeOf(err) != CodeValidationFailed {
		t.Errorf("code = %v", CodeOf(err))
	}
}
