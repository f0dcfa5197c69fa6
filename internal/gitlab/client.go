// Package gitlab talks to the external Gitlab-compatible identity provider.
// The provider is the source of truth for credential validity; every login and
// refresh goes through the resource-owner password / refresh-token grants on
// its /oauth/token endpoint.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mlhubdev/mlhub/internal/apperrors"
)

// OAuthToken is the transient token pair returned by the provider. It is never
// persisted verbatim; callers map it into an AccountToken or a response DTO.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"` // seconds since epoch
}

// ExpiresAt derives the wall-clock expiry from created_at. Gitlab access
// tokens live two hours unless the provider says otherwise.
func (t *OAuthToken) ExpiresAt() time.Time {
	return time.Unix(t.CreatedAt, 0).Add(2 * time.Hour)
}

// User is the provider-side user record backing a local Person.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Client is the identity provider contract. The real implementation is
// RESTClient; tests substitute a fake.
type Client interface {
	// LoginOAuth exchanges identifier+password for a token pair. A provider
	// rejection surfaces as an AuthenticationFailed apperrors.Error.
	LoginOAuth(ctx context.Context, identifier, password string) (*OAuthToken, error)

	// RefreshOAuth rotates a token pair from its refresh token.
	RefreshOAuth(ctx context.Context, refreshToken string) (*OAuthToken, error)

	// CurrentUser fetches the provider user owning the access token.
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
}

// RESTClient implements Client against a live Gitlab instance.
type RESTClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewRESTClient builds a client for the Gitlab instance at baseURL.
func NewRESTClient(baseURL, clientID, clientSecret string, timeout time.Duration) *RESTClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Scopes:       []string{"api"},
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *RESTClient) ctxWithClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// LoginOAuth performs the password grant. No local retry: a rejection is
// terminal for the request.
func (c *RESTClient) LoginOAuth(ctx context.Context, identifier, password string) (*OAuthToken, error) {
	token, err := c.oauthConfig().PasswordCredentialsToken(c.ctxWithClient(ctx), identifier, password)
	if err != nil {
		return nil, translateOAuthError(err)
	}
	return fromOAuth2Token(token), nil
}

// RefreshOAuth rotates tokens through the refresh-token grant.
func (c *RESTClient) RefreshOAuth(ctx context.Context, refreshToken string) (*OAuthToken, error) {
	src := c.oauthConfig().TokenSource(c.ctxWithClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, translateOAuthError(err)
	}
	return fromOAuth2Token(token), nil
}

// CurrentUser calls GET /api/v4/user with the bearer token.
func (c *RESTClient) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v4/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.AuthenticationFailed(0, "identity provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.AuthenticationFailed(resp.StatusCode,
			fmt.Sprintf("identity provider returned %d", resp.StatusCode), nil)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func fromOAuth2Token(token *oauth2.Token) *OAuthToken {
	out := &OAuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		CreatedAt:    time.Now().Unix(),
	}
	if scope, ok := token.Extra("scope").(string); ok {
		out.Scope = scope
	}
	switch created := token.Extra("created_at").(type) {
	case float64:
		out.CreatedAt = int64(created)
	case int64:
		out.CreatedAt = created
	}
	return out
}

// translateOAuthError maps transport-level failures into the documented
// AuthenticationFailed envelope without leaking the provider's raw payload.
func translateOAuthError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		msg := retrieve.ErrorDescription
		if msg == "" {
			msg = "identity provider rejected credentials"
		}
		return apperrors.AuthenticationFailed(status, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.AuthenticationFailed(0, "identity provider timed out", err)
	}
	return apperrors.AuthenticationFailed(0, "identity provider unreachable", err)
}
