// Package token manages AccountToken lifecycle: minting the permanent token
// at registration, replacing the OAuth pair on login, and rotating expiring
// OAuth tokens in the background.
package token

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlhubdev/mlhub/internal/apperrors"
	"github.com/mlhubdev/mlhub/internal/gitlab"
	"github.com/mlhubdev/mlhub/internal/store"
	"github.com/mlhubdev/mlhub/internal/store/models"
	"github.com/mlhubdev/mlhub/internal/util"
)

// Manager owns token rows and a small in-memory view cache.
type Manager struct {
	store  *store.Store
	client gitlab.Client

	cache map[string]*CachedTokens // keyed by account id
	mu    sync.RWMutex

	stop chan struct{}
}

// CachedTokens is the in-memory token view for one account.
type CachedTokens struct {
	Permanent    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// NewManager creates a token manager over the given store and provider client.
func NewManager(st *store.Store, client gitlab.Client) *Manager {
	return &Manager{
		store:  st,
		client: client,
		cache:  make(map[string]*CachedTokens),
		stop:   make(chan struct{}),
	}
}

// MintPermanent creates the account's long-lived opaque token. Called once at
// registration inside the registration transaction.
func (m *Manager) MintPermanent(ctx context.Context, st *store.Store, accountID string) (*models.AccountToken, error) {
	tok := &models.AccountToken{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      models.TokenKindPermanent,
		Token:     "mlh-" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		TokenType: "private",
	}
	if err := st.SaveToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// StoreOAuth replaces the account's OAuth token row with the fresh pair.
// Last write wins: repeated logins rotate the same row instead of appending.
func (m *Manager) StoreOAuth(ctx context.Context, accountID string, oauth *gitlab.OAuthToken) (*models.AccountToken, error) {
	tok := &models.AccountToken{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Kind:         models.TokenKindOAuth,
		Token:        oauth.AccessToken,
		RefreshToken: oauth.RefreshToken,
		TokenType:    oauth.TokenType,
		Scope:        oauth.Scope,
		ExpiresAt:    oauth.ExpiresAt(),
	}
	if err := m.store.UpsertToken(ctx, tok); err != nil {
		return nil, err
	}
	log.Printf("🎫 Stored OAuth token %s for account %s", util.MaskSecret(tok.Token), accountID)
	return tok, nil
}

// Tokens returns the cached token view for an account, loading from the store
// on a miss.
func (m *Manager) Tokens(ctx context.Context, accountID string) (*CachedTokens, error) {
	m.mu.RLock()
	cached, ok := m.cache[accountID]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return m.load(ctx, accountID)
}

// RefreshCache rebuilds the cached view for one account from the store. This
// is the explicit post-call refresh hook target (no reflection interception).
func (m *Manager) RefreshCache(ctx context.Context, accountID string) {
	if _, err := m.load(ctx, accountID); err != nil {
		log.Printf("⚠️ Failed to refresh token cache for %s: %v", accountID, err)
	}
}

func (m *Manager) load(ctx context.Context, accountID string) (*CachedTokens, error) {
	view := &CachedTokens{}

	if perm, err := m.store.TokenFor(ctx, accountID, models.TokenKindPermanent); err == nil {
		view.Permanent = perm.Token
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if oauth, err := m.store.TokenFor(ctx, accountID, models.TokenKindOAuth); err == nil && !oauth.Revoked {
		view.AccessToken = oauth.Token
		view.RefreshToken = oauth.RefreshToken
		view.ExpiresAt = oauth.ExpiresAt
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	m.mu.Lock()
	m.cache[accountID] = view
	m.mu.Unlock()
	return view, nil
}

// StartRefreshLoop rotates soon-to-expire OAuth tokens in the background.
func (m *Manager) StartRefreshLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.refreshExpiring(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
	log.Printf("🔄 Token refresh loop started (interval: %s)", interval)
}

// Stop terminates the refresh loop.
func (m *Manager) Stop() { close(m.stop) }

func (m *Manager) refreshExpiring(ctx context.Context) {
	threshold := time.Now().Add(20 * time.Minute)
	tokens, err := m.store.TokensExpiringBefore(ctx, threshold)
	if err != nil {
		log.Printf("⚠️ Failed to list expiring tokens: %v", err)
		return
	}

	for i := range tokens {
		m.rotate(ctx, &tokens[i])
	}
}

// rotate refreshes one OAuth token row through the provider.
func (m *Manager) rotate(ctx context.Context, tok *models.AccountToken) {
	fresh, err := m.client.RefreshOAuth(ctx, tok.RefreshToken)
	if err != nil {
		if isPermanentRefreshError(err) {
			// The grant is gone for good; the user must log in again.
			if err := m.store.RevokeToken(ctx, tok.ID); err != nil {
				log.Printf("⚠️ Failed to revoke token %s: %v", tok.ID, err)
				return
			}
			m.mu.Lock()
			delete(m.cache, tok.AccountID)
			m.mu.Unlock()
			log.Printf("🔒 OAuth token for account %s revoked, re-login required", tok.AccountID)
			return
		}
		log.Printf("⏳ Transient refresh failure for account %s, will retry", tok.AccountID)
		return
	}

	tok.Token = fresh.AccessToken
	tok.TokenType = fresh.TokenType
	tok.Scope = fresh.Scope
	tok.ExpiresAt = fresh.ExpiresAt()
	// Persist the rotated refresh token if the provider issued one.
	if fresh.RefreshToken != "" && fresh.RefreshToken != tok.RefreshToken {
		tok.RefreshToken = fresh.RefreshToken
	}
	if err := m.store.UpsertToken(ctx, tok); err != nil {
		log.Printf("⚠️ Failed to save refreshed token: %v", err)
		return
	}

	m.RefreshCache(ctx, tok.AccountID)
	log.Printf("✅ Refreshed OAuth token for account %s (expires: %s)",
		tok.AccountID, tok.ExpiresAt.Format(time.RFC3339))
}

// isPermanentRefreshError reports whether a refresh failure means the grant is
// dead (revoked, invalid) rather than a transient provider fault.
func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.ProviderStatus >= 400 && appErr.ProviderStatus < 500 {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid_grant", "invalid_client", "unauthorized_client", "revoked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
