// Package service implements registration, login and profile update on top of
// the account store and the identity provider client.
package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlhubdev/mlhub/internal/apperrors"
	"github.com/mlhubdev/mlhub/internal/gitlab"
	"github.com/mlhubdev/mlhub/internal/store"
	"github.com/mlhubdev/mlhub/internal/store/models"
	"github.com/mlhubdev/mlhub/internal/token"
)

// UserView is the censored account representation returned to clients. It
// never carries a password in any form.
type UserView struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	FullName string
}

// LoginParams are the inputs to Login. At least one of Username or Email must
// be set.
type LoginParams struct {
	Username string
	Email    string
	Password string
}

// UpdateParams are the mutable profile fields.
type UpdateParams struct {
	Name  string
	Email string
}

// Auth is the authentication service contract.
type Auth interface {
	Register(ctx context.Context, params RegisterParams) (*UserView, error)
	Login(ctx context.Context, params LoginParams) (*UserView, error)
	Update(ctx context.Context, accountID string, params UpdateParams) (*UserView, error)
}

type authService struct {
	store       *store.Store
	client      gitlab.Client
	tokens      *token.Manager
	minPassword int
}

// NewAuth builds the auth service.
func NewAuth(st *store.Store, client gitlab.Client, tokens *token.Manager, minPasswordLength int) Auth {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	return &authService{
		store:       st,
		client:      client,
		tokens:      tokens,
		minPassword: minPasswordLength,
	}
}

// Register provisions a new local account plus its provider identity. All
// local writes happen in one transaction; a provider rejection rolls back
// everything so no orphaned local identity remains.
func (s *authService) Register(ctx context.Context, params RegisterParams) (*UserView, error) {
	if params.Username == "" || params.Email == "" {
		return nil, apperrors.Validation("username and email are required")
	}
	if len(params.Password) < s.minPassword {
		return nil, apperrors.Validation("password must be at least %d characters", s.minPassword)
	}

	// Fail fast before any write or provider traffic.
	exists, err := s.store.UsernameOrEmailExists(ctx, params.Username, params.Email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if exists {
		return nil, apperrors.ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	var (
		account   *models.Account
		permanent *models.AccountToken
		oauth     *gitlab.OAuthToken
	)

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		person := &models.Person{
			ID:   uuid.New().String(),
			Slug: slugify(params.Username),
			Name: params.FullName,
		}
		if err := tx.CreatePerson(ctx, person); err != nil {
			return err
		}

		account = &models.Account{
			ID:           uuid.New().String(),
			Username:     params.Username,
			Email:        params.Email,
			PasswordHash: string(hash),
			PersonID:     person.ID,
			Person:       *person,
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}

		// The provider is provisioned with the new credentials; a rejection
		// aborts the transaction and erases the rows above.
		oauth, err = s.client.LoginOAuth(ctx, params.Username, params.Password)
		if err != nil {
			return err
		}

		// Best effort: record the provider-side numeric user id.
		if user, uerr := s.client.CurrentUser(ctx, oauth.AccessToken); uerr == nil {
			person.GitlabID = user.ID
			if err := tx.SavePerson(ctx, person); err != nil {
				return err
			}
			account.Person = *person
		}

		permanent, err = s.tokens.MintPermanent(ctx, tx, account.ID)
		return err
	})
	if err != nil {
		return nil, translateStoreError(err)
	}

	if _, err := s.tokens.StoreOAuth(ctx, account.ID, oauth); err != nil {
		return nil, apperrors.Internal(err)
	}

	log.Printf("✅ Registered account %s (%s)", account.Username, account.ID)
	return &UserView{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		Token:        permanent.Token,
		AccessToken:  oauth.AccessToken,
		RefreshToken: oauth.RefreshToken,
	}, nil
}

// Login validates credentials locally, then against the provider, which is the
// source of truth. The OAuth token row is replaced in place, never duplicated.
func (s *authService) Login(ctx context.Context, params LoginParams) (*UserView, error) {
	if params.Username == "" && params.Email == "" {
		return nil, apperrors.Validation("username or email is required")
	}
	if params.Password == "" {
		return nil, apperrors.Validation("password is required")
	}

	account, err := s.resolveAccount(ctx, params.Username, params.Email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(params.Password)); err != nil {
		return nil, apperrors.AuthenticationFailed(0, "bad credentials", nil)
	}

	identifier := params.Username
	if identifier == "" {
		identifier = account.Username
	}
	oauth, err := s.client.LoginOAuth(ctx, identifier, params.Password)
	if err != nil {
		// The local check passed, but the provider has the final word.
		return nil, err
	}

	if _, err := s.tokens.StoreOAuth(ctx, account.ID, oauth); err != nil {
		return nil, apperrors.Internal(err)
	}

	permanent, err := s.ensurePermanentToken(ctx, account.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &UserView{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		Token:        permanent,
		AccessToken:  oauth.AccessToken,
		RefreshToken: oauth.RefreshToken,
	}, nil
}

// Update mutates the profile fields of an existing account.
func (s *authService) Update(ctx context.Context, accountID string, params UpdateParams) (*UserView, error) {
	account, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Internal(err)
	}

	if params.Name != "" {
		account.Person.Name = params.Name
	}
	if params.Email != "" {
		account.Email = params.Email
	}

	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, translateStoreError(err)
	}

	view := &UserView{
		ID:       account.ID,
		Username: account.Username,
		Email:    account.Email,
	}
	if tokens, err := s.tokens.Tokens(ctx, account.ID); err == nil {
		view.Token = tokens.Permanent
		view.AccessToken = tokens.AccessToken
		view.RefreshToken = tokens.RefreshToken
	}
	return view, nil
}

func (s *authService) resolveAccount(ctx context.Context, username, email string) (*models.Account, error) {
	if username != "" {
		account, err := s.store.FindAccountByUsername(ctx, username)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Internal(err)
		}
	}
	if email != "" {
		account, err := s.store.FindAccountByEmail(ctx, email)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Internal(err)
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *authService) ensurePermanentToken(ctx context.Context, accountID string) (string, error) {
	tok, err := s.store.TokenFor(ctx, accountID, models.TokenKindPermanent)
	if err == nil {
		return tok.Token, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	minted, err := s.tokens.MintPermanent(ctx, s.store, accountID)
	if err != nil {
		return "", err
	}
	return minted.Token, nil
}

// translateStoreError maps store-level faults into the taxonomy. Unique
// constraint races from concurrent registrations surface as DuplicateUser.
func translateStoreError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if store.IsDuplicateKey(err) {
		return apperrors.ErrDuplicateUser
	}
	return apperrors.Internal(err)
}

// slugify reduces a username to a URL-safe person slug.
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
