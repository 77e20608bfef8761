package repository

import (
	"context"
	"time"

	"github.com/utafrali/identity/internal/domain"
)

// AccountRepository defines the persistence operations of the account directory.
type AccountRepository interface {
	// Create inserts a new account and assigns its ID and timestamps.
	// A duplicate email fails with domain.ErrDuplicateEmail.
	Create(ctx context.Context, account *domain.Account) error

	// GetByEmail retrieves an account by its exact email address.
	// Absence is reported as domain.ErrAccountNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByID retrieves an account by its identifier.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// MarkVerified sets the verified flag. Marking an already verified
	// account is a no-op.
	MarkVerified(ctx context.Context, id int64) error

	// Delete removes an account by its identifier.
	Delete(ctx context.Context, id int64) error

	// List returns a page of accounts ordered by id and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Account, int, error)
}

// SessionStore tracks the single current refresh token per account.
type SessionStore interface {
	// SetCurrentRefresh replaces the current refresh token for the account.
	// The entry expires after ttl.
	SetCurrentRefresh(ctx context.Context, accountID int64, token string, ttl time.Duration) error

	// GetCurrentRefresh returns the current refresh token, or ok=false when
	// none is stored or it has expired.
	GetCurrentRefresh(ctx context.Context, accountID int64) (token string, ok bool, err error)

	// DeleteCurrentRefresh revokes the current refresh token, if any.
	DeleteCurrentRefresh(ctx context.Context, accountID int64) error
}
