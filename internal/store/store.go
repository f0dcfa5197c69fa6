// Package store is the account store: persistence for Person, Account and
// AccountToken over sqlite, with the uniqueness and transaction guarantees the
// auth services rely on.
package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mlhubdev/mlhub/internal/store/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the gorm handle. All writes that must be atomic go through
// Transaction; everything else is a single statement.
type Store struct {
	db *gorm.DB
}

// Open initializes the sqlite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Person{}, &models.Account{}, &models.AccountToken{}); err != nil {
		return nil, err
	}

	log.Printf("📦 Account store ready at %s", dbPath)
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open gorm handle. Used by tests with in-memory
// sqlite instances.
func NewWithDB(db *gorm.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for migration in tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn atomically: any error rolls back every write made
// through the passed store.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// IsDuplicateKey reports whether err comes from a unique-constraint violation.
// Concurrent registrations racing on username/email both funnel through here;
// the second writer loses and surfaces DuplicateUser upstream.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreatePerson inserts a new person row.
func (s *Store) CreatePerson(ctx context.Context, p *models.Person) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// SavePerson persists mutated person fields.
func (s *Store) SavePerson(ctx context.Context, p *models.Person) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// CreateAccount inserts a new account row.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// UsernameOrEmailExists reports whether any account already claims the given
// username or email.
func (s *Store) UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

// FindAccountByUsername resolves an account by its unique username.
func (s *Store) FindAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.findAccount(ctx, "username = ?", username)
}

// FindAccountByEmail resolves an account by its unique email.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findAccount(ctx, "email = ?", email)
}

// FindAccountByID resolves an account by primary key.
func (s *Store) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.findAccount(ctx, "id = ?", id)
}

func (s *Store) findAccount(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Preload("Person").Where(query, args...).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByPermanentToken resolves the account owning a live permanent
// token. Used by the PRIVATE-TOKEN middleware.
func (s *Store) FindAccountByPermanentToken(ctx context.Context, secret string) (*models.Account, error) {
	var tok models.AccountToken
	err := s.db.WithContext(ctx).
		Where("kind = ? AND token = ? AND revoked = ?", models.TokenKindPermanent, secret, false).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindAccountByID(ctx, tok.AccountID)
}

// SaveToken writes an account token row as-is.
func (s *Store) SaveToken(ctx context.Context, t *models.AccountToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// UpsertToken replaces the account's token of the given kind in place,
// creating the row on first use. Last write wins on refresh.
func (s *Store) UpsertToken(ctx context.Context, t *models.AccountToken) error {
	var existing models.AccountToken
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND kind = ?", t.AccountID, t.Kind).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(t).Error
	}
	if err != nil {
		return err
	}

	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(t).Error
}

// TokenFor returns the account's token of the given kind, if present.
func (s *Store) TokenFor(ctx context.Context, accountID, kind string) (*models.AccountToken, error) {
	var tok models.AccountToken
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND kind = ?", accountID, kind).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// TokensExpiringBefore lists unrevoked OAuth tokens expiring before the
// threshold. Feeds the background refresh loop.
func (s *Store) TokensExpiringBefore(ctx context.Context, threshold time.Time) ([]models.AccountToken, error) {
	var tokens []models.AccountToken
	err := s.db.WithContext(ctx).
		Where("kind = ? AND revoked = ? AND expires_at < ?", models.TokenKindOAuth, false, threshold).
		Find(&tokens).Error
	return tokens, err
}

// RevokeToken marks a token row as revoked without deleting its history.
func (s *Store) RevokeToken(ctx context.Context, tokenID string) error {
	return s.db.WithContext(ctx).Model(&models.AccountToken{}).
		Where("id = ?", tokenID).
		Update("revoked", true).Error
}

// UpdateAccount persists mutated account fields together with its person.
func (s *Store) UpdateAccount(ctx context.Context, a *models.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&a.Person).Error; err != nil {
			return err
		}
		return tx.Save(a).Error
	})
}

// CountAccounts returns the total number of accounts. Test helper for the
// no-partial-writes guarantees.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error
	return count, err
}
