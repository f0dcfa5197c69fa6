package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mlhubdev/mlhub/internal/store/models"
)

// newTestStore opens a fresh named in-memory database per test so fixtures
// never leak between cases.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Person{}, &models.Account{}, &models.AccountToken{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewWithDB(db)
}

func seedAccount(t *testing.T, st *Store, username, email string) *models.Account {
	t.Helper()
	ctx := context.Background()

	person := &models.Person{ID: uuid.New().String(), Slug: username, Name: "user name"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatalf("create person: %v", err)
	}

	account := &models.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$hash",
		PersonID:     person.ID,
	}
	if err := st.CreateAccount(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestUniqueUsernameAndEmail(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "alice", "alice@example.org")

	person := &models.Person{ID: uuid.New().String(), Slug: "other"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatalf("create person: %v", err)
	}

	dup := &models.Account{
		ID:       uuid.New().String(),
		Username: "alice",
		Email:    "different@example.org",
		PersonID: person.ID,
	}
	err := st.CreateAccount(ctx, dup)
	if err == nil {
		t.Fatal("expected unique constraint violation on username")
	}
	if !IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey(%v) = false, want true", err)
	}

	dup.ID = uuid.New().String()
	dup.Username = "different"
	dup.Email = "alice@example.org"
	if err := st.CreateAccount(ctx, dup); err == nil || !IsDuplicateKey(err) {
		t.Fatalf("expected unique constraint violation on email, got %v", err)
	}
}

func TestUsernameOrEmailExists(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "alice", "alice@example.org")

	for _, tc := range []struct {
		username, email string
		want            bool
	}{
		{"alice", "new@example.org", true},
		{"new", "alice@example.org", true},
		{"new", "new@example.org", false},
	} {
		got, err := st.UsernameOrEmailExists(ctx, tc.username, tc.email)
		if err != nil {
			t.Fatalf("exists check: %v", err)
		}
		if got != tc.want {
			t.Errorf("UsernameOrEmailExists(%s, %s) = %v, want %v", tc.username, tc.email, got, tc.want)
		}
	}
}

func TestUpsertTokenReplacesInPlace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	account := seedAccount(t, st, "alice", "alice@example.org")

	first := &models.AccountToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Kind:      models.TokenKindOAuth,
		Token:     "access-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := st.UpsertToken(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &models.AccountToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Kind:      models.TokenKindOAuth,
		Token:     "access-2",
		ExpiresAt: time.Now().Add(2 * time.Hour),
	}
	if err := st.UpsertToken(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	// The row is replaced, not appended: same id, new secret.
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: id %s != %s", second.ID, first.ID)
	}

	tok, err := st.TokenFor(ctx, account.ID, models.TokenKindOAuth)
	if err != nil {
		t.Fatalf("token lookup: %v", err)
	}
	if tok.Token != "access-2" {
		t.Errorf("token = %q, want access-2", tok.Token)
	}

	var count int64
	st.DB().Model(&models.AccountToken{}).Where("account_id = ?", account.ID).Count(&count)
	if count != 1 {
		t.Errorf("token rows = %d, want 1", count)
	}
}

func TestFindAccountByPermanentToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	account := seedAccount(t, st, "alice", "alice@example.org")

	tok := &models.AccountToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Kind:      models.TokenKindPermanent,
		Token:     "secret_token",
	}
	if err := st.SaveToken(ctx, tok); err != nil {
		t.Fatalf("save token: %v", err)
	}

	found, err := st.FindAccountByPermanentToken(ctx, "secret_token")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != account.ID {
		t.Errorf("account id = %s, want %s", found.ID, account.ID)
	}

	if _, err := st.FindAccountByPermanentToken(ctx, "bogus"); err != ErrNotFound {
		t.Errorf("bogus token: err = %v, want ErrNotFound", err)
	}

	// Revoked tokens no longer authenticate.
	if err := st.RevokeToken(ctx, tok.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := st.FindAccountByPermanentToken(ctx, "secret_token"); err != ErrNotFound {
		t.Errorf("revoked token: err = %v, want ErrNotFound", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.Transaction(ctx, func(tx *Store) error {
		person := &models.Person{ID: uuid.New().String(), Slug: "alice"}
		if err := tx.CreatePerson(ctx, person); err != nil {
			return err
		}
		account := &models.Account{
			ID:       uuid.New().String(),
			Username: "alice",
			Email:    "alice@example.org",
			PersonID: person.ID,
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		return fmt.Errorf("provider said no")
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	count, err := st.CountAccounts(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("accounts after rollback = %d, want 0", count)
	}

	var people int64
	st.DB().Model(&models.Person{}).Count(&people)
	if people != 0 {
		t.Errorf("persons after rollback = %d, want 0", people)
	}
}

func TestTokensExpiringBefore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	account := seedAccount(t, st, "alice", "alice@example.org")

	soon := &models.AccountToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Kind:      models.TokenKindOAuth,
		Token:     "soon",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	if err := st.SaveToken(ctx, soon); err != nil {
		t.Fatalf("save: %v", err)
	}

	tokens, err := st.TokensExpiringBefore(ctx, time.Now().Add(20*time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "soon" {
		t.Fatalf("expiring tokens = %+v, want the one expiring soon", tokens)
	}

	tokens, err = st.TokensExpiringBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("expiring tokens = %d, want 0", len(tokens))
	}
}
