// Package models holds the gorm entities of the account store.
package models

import "time"

// Person is the profile owning an account. Immutable after creation except
// through the explicit update endpoint.
type Person struct {
	ID        string `gorm:"primaryKey"` // UUID
	Slug      string `gorm:"uniqueIndex"`
	Name      string
	GitlabID  int64 // numeric user id on the external provider
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is a local login identity. Username and email are unique across all
// accounts; every account owns exactly one Person.
type Account struct {
	ID           string `gorm:"primaryKey"` // UUID
	Username     string `gorm:"uniqueIndex"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string `gorm:"type:text"` // bcrypt, never exposed
	PersonID     string `gorm:"uniqueIndex;not null"`
	Person       Person `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE"`
	Tokens       []AccountToken
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token kinds. At most one live row of each kind exists per account; a refresh
// replaces the OAuth row in place rather than appending history.
const (
	TokenKindPermanent = "permanent"
	TokenKindOAuth     = "oauth"
)

// AccountToken is a credential attached to an account: either the long-lived
// permanent token minted at registration, or the OAuth pair obtained from the
// provider on login and rotated on refresh.
type AccountToken struct {
	ID            string `gorm:"primaryKey"` // UUID
	AccountID     string `gorm:"not null;uniqueIndex:idx_account_kind,priority:1"`
	Kind          string `gorm:"not null;uniqueIndex:idx_account_kind,priority:2"`
	Token         string `gorm:"type:text"` // opaque secret / access token
	RefreshToken  string `gorm:"type:text"` // empty for permanent tokens
	TokenType     string
	Scope         string
	GitlabTokenID int64 // provider-side token id, doubles as generation counter
	ExpiresAt     time.Time
	Revoked       bool `gorm:"default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
