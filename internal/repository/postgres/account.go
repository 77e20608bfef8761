package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/identity/internal/domain"
	"github.com/utafrali/identity/pkg/database"
	apperrors "github.com/utafrali/identity/pkg/errors"
)

const accountColumns = `id, name, email, password_hash, avatar_url, is_verified, created_at, updated_at`

const (
	insertAccountSQL = `
		INSERT INTO accounts (name, email, password_hash, avatar_url, is_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	selectAccountByIDSQL    = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	selectAccountByEmailSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	markAccountVerifiedSQL = `UPDATE accounts SET is_verified = TRUE, updated_at = NOW() WHERE id = $1`
	deleteAccountSQL       = `DELETE FROM accounts WHERE id = $1`

	countAccountsSQL = `SELECT COUNT(*) FROM accounts`
	listAccountsSQL  = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id LIMIT $1 OFFSET $2`
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(pool database.DBTX) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account. The database assigns the ID and timestamps,
// which are written back to a.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateAccount", insertAccountSQL)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Storage("begin create account", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertAccountSQL,
		a.Name,
		a.Email,
		a.PasswordHash,
		a.AvatarURL,
		a.IsVerified,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return apperrors.Storage("insert account", err)
	}

	if err = tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return apperrors.Storage("commit create account", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (a *domain.Account, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAccountByID", selectAccountByIDSQL)
	defer func() { end(err) }()

	return r.scanAccount(ctx, "get account by id", selectAccountByIDSQL, id)
}

// GetByEmail retrieves an account by its email address. Matching is exact.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (a *domain.Account, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAccountByEmail", selectAccountByEmailSQL)
	defer func() { end(err) }()

	return r.scanAccount(ctx, "get account by email", selectAccountByEmailSQL, email)
}

// MarkVerified sets is_verified on the account. Re-marking a verified account
// succeeds without change.
func (r *AccountRepository) MarkVerified(ctx context.Context, id int64) (err error) {
	ctx, end := database.TraceQuery(ctx, "MarkAccountVerified", markAccountVerifiedSQL)
	defer func() { end(err) }()

	return r.execOne(ctx, "mark account verified", markAccountVerifiedSQL, id)
}

// Delete removes an account by its ID.
func (r *AccountRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteAccount", deleteAccountSQL)
	defer func() { end(err) }()

	return r.execOne(ctx, "delete account", deleteAccountSQL, id)
}

// List returns a page of accounts ordered by ID along with the total count.
func (r *AccountRepository) List(ctx context.Context, offset, limit int) (accounts []domain.Account, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListAccounts", listAccountsSQL)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, countAccountsSQL).Scan(&total); err != nil {
		return nil, 0, apperrors.Storage("count accounts", err)
	}

	rows, err := r.pool.Query(ctx, listAccountsSQL, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Storage("list accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Account
		if err = rows.Scan(
			&a.ID,
			&a.Name,
			&a.Email,
			&a.PasswordHash,
			&a.AvatarURL,
			&a.IsVerified,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, 0, apperrors.Storage("scan account row", err)
		}
		accounts = append(accounts, a)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, apperrors.Storage("iterate account rows", err)
	}

	if accounts == nil {
		accounts = []domain.Account{}
	}

	return accounts, total, nil
}

// execOne runs a single-row mutation in a transaction. Zero affected rows is
// reported as domain.ErrAccountNotFound.
func (r *AccountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Storage("begin "+op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.Storage(op, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Storage("commit "+op, err)
	}

	return nil
}

// scanAccount executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, op, query string, args ...any) (*domain.Account, error) {
	var a domain.Account

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.AvatarURL,
		&a.IsVerified,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, apperrors.Storage(op, err)
	}

	return &a, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
