package domain

import (
	"time"
)

// TokenTypeBearer is the token_type label returned with every token pair.
const TokenTypeBearer = "bearer"

// Account represents a registered user identity.
type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicAccount is the projection of an Account that is safe to return to clients.
// It never carries the password hash.
type PublicAccount struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatar_url"`
	IsVerified bool   `json:"is_verified"`
}

// Public returns the client-facing projection of the account.
func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		AvatarURL:  a.AvatarURL,
		IsVerified: a.IsVerified,
	}
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
