package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mlhubdev/mlhub/internal/apperrors"
)

// newFakeProvider stands in for a Gitlab instance. Credentials other than
// user/password are rejected with the provider's 401 envelope.
func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") != "user" || r.Form.Get("password") != "password" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"The provided authorization grant is invalid"}`)
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "refreshtoken1234567" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
			return
		}

		fmt.Fprint(w, `{"access_token":"accesstoken12345","refresh_token":"refreshtoken1234567","token_type":"bearer","scope":"api","created_at":1585910424}`)
	})

	mux.HandleFunc("/api/v4/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer accesstoken12345" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":1,"username":"user","name":"user name","email":"user@example.org"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginOAuth_Success(t *testing.T) {
	srv := newFakeProvider(t)
	client := NewRESTClient(srv.URL, "", "", 5*time.Second)

	token, err := client.LoginOAuth(context.Background(), "user", "password")
	if err != nil {
		t.Fatalf("LoginOAuth: %v", err)
	}

	if token.AccessToken != "accesstoken12345" {
		t.Errorf("access token = %q", token.AccessToken)
	}
	if token.RefreshToken != "refreshtoken1234567" {
		t.Errorf("refresh token = %q", token.RefreshToken)
	}
	if token.TokenType != "bearer" {
		t.Errorf("token type = %q", token.TokenType)
	}
	if token.Scope != "api" {
		t.Errorf("scope = %q", token.Scope)
	}
	if token.CreatedAt != 1585910424 {
		t.Errorf("created_at = %d, want 1585910424", token.CreatedAt)
	}
}

func TestLoginOAuth_Rejection(t *testing.T) {
	srv := newFakeProvider(t)
	client := NewRESTClient(srv.URL, "", "", 5*time.Second)

	_, err := client.LoginOAuth(context.Background(), "user", "wrong")
	if err == nil {
		t.Fatal("expected rejection")
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *apperrors.Error", err)
	}
	if appErr.Code != apperrors.CodeAuthenticationFailed {
		t.Errorf("code = %v, want AuthenticationFailed", appErr.Code)
	}
	if appErr.ProviderStatus != http.StatusUnauthorized {
		t.Errorf("provider status = %d, want 401", appErr.ProviderStatus)
	}
}

func TestRefreshOAuth(t *testing.T) {
	srv := newFakeProvider(t)
	client := NewRESTClient(srv.URL, "", "", 5*time.Second)

	token, err := client.RefreshOAuth(context.Background(), "refreshtoken1234567")
	if err != nil {
		t.Fatalf("RefreshOAuth: %v", err)
	}
	if token.AccessToken != "accesstoken12345" {
		t.Errorf("access token = %q", token.AccessToken)
	}

	_, err = client.RefreshOAuth(context.Background(), "dead-grant")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed for dead grant, got %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	srv := newFakeProvider(t)
	client := NewRESTClient(srv.URL, "", "", 5*time.Second)

	user, err := client.CurrentUser(context.Background(), "accesstoken12345")
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if user.ID != 1 || user.Username != "user" {
		t.Errorf("user = %+v", user)
	}

	if _, err := client.CurrentUser(context.Background(), "bogus"); err == nil {
		t.Fatal("expected error for bogus token")
	}
}

func TestLoginOAuth_ProviderDown(t *testing.T) {
	srv := newFakeProvider(t)
	url := srv.URL
	srv.Close()

	client := NewRESTClient(url, "", "", time.Second)
	_, err := client.LoginOAuth(context.Background(), "user", "password")

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed for unreachable provider, got %v", err)
	}
}

func TestOAuthTokenExpiresAt(t *testing.T) {
	tok := &OAuthToken{CreatedAt: 1585910424}
	want := time.Unix(1585910424, 0).Add(2 * time.Hour)
	if !tok.ExpiresAt().Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt(), want)
	}
}
