package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/identity/internal/auth"
	"github.com/utafrali/identity/internal/domain"
	"github.com/utafrali/identity/internal/notify"
	"github.com/utafrali/identity/internal/repository"
	apperrors "github.com/utafrali/identity/pkg/errors"
)

// Config holds the behavioural settings of the identity service.
type Config struct {
	// PublicBaseURL prefixes verification links.
	PublicBaseURL string

	// StrictRefreshMatch requires a presented refresh token to equal the
	// stored one. When false, any live stored token allows rotation.
	StrictRefreshMatch bool

	// AdminEmails lists accounts allowed to list and delete other accounts.
	AdminEmails []string
}

// IdentityService implements registration, email verification, login and
// token refresh.
type IdentityService struct {
	accounts repository.AccountRepository
	sessions repository.SessionStore
	hasher   *auth.PasswordHasher
	codec    *auth.TokenCodec
	notifier notify.Dispatcher
	cfg      Config
	admins   map[string]struct{}
	logger   *slog.Logger
}

// NewIdentityService creates a new identity service.
func NewIdentityService(
	accounts repository.AccountRepository,
	sessions repository.SessionStore,
	hasher *auth.PasswordHasher,
	codec *auth.TokenCodec,
	notifier notify.Dispatcher,
	cfg Config,
	logger *slog.Logger,
) *IdentityService {
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = strings.TrimSpace(email); email != "" {
			admins[email] = struct{}{}
		}
	}

	return &IdentityService{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		codec:    codec,
		notifier: notifier,
		cfg:      cfg,
		admins:   admins,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Name      string
	Email     string
	AvatarURL string
	Password  string
}

// LoginInput holds the parameters for login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates an unverified account and sends a verification link to
// its email. Failing to send the link does not fail registration.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (_ *domain.PublicAccount, err error) {
	ctx, end := startOperation(ctx, opRegister)
	defer func() { end(err) }()

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	if _, err := s.accounts.GetByEmail(ctx, input.Email); err == nil {
		return nil, errDuplicateEmail()
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, s.storageFault(ctx, "register: lookup email", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.InvalidInput("password must be at most 72 bytes")
		}
		return nil, apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	account := &domain.Account{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		AvatarURL:    input.AvatarURL,
		IsVerified:   false,
	}

	// The unique constraint settles concurrent registrations of one email.
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, errDuplicateEmail()
		}
		return nil, s.storageFault(ctx, "register: create account", err)
	}

	s.sendVerification(ctx, account)

	s.logger.InfoContext(ctx, "account registered",
		slog.Int64("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return account.Public(), nil
}

func (s *IdentityService) sendVerification(ctx context.Context, account *domain.Account) {
	token, _, err := s.codec.IssueVerification(account.ID, account.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue verification token",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	msg := notify.VerificationMessage(s.cfg.PublicBaseURL, account.Email, token)
	if err := s.notifier.Dispatch(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch verification email",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}
}

// VerifyEmail marks the account named by a verification token as verified.
// Replaying a still-valid token succeeds without change.
func (s *IdentityService) VerifyEmail(ctx context.Context, token string) (_ *domain.PublicAccount, err error) {
	ctx, end := startOperation(ctx, opVerifyEmail)
	defer func() { end(err) }()

	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, tokenError(err, http.StatusBadRequest)
	}
	if claims.Type != auth.TokenTypeEmailVerification {
		return nil, errInvalidTokenType(auth.TokenTypeEmailVerification)
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, tokenError(err, http.StatusBadRequest)
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, errAccountNotFound("user not found")
		}
		return nil, s.storageFault(ctx, "verify email: get account", err)
	}
	if claims.Email != account.Email {
		return nil, errAccountNotFound("user not found")
	}

	if !account.IsVerified {
		if err := s.accounts.MarkVerified(ctx, id); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil, errAccountNotFound("user not found")
			}
			return nil, s.storageFault(ctx, "verify email: mark verified", err)
		}
		account.IsVerified = true

		s.logger.InfoContext(ctx, "account email verified",
			slog.Int64("account_id", account.ID),
		)
	}

	return account.Public(), nil
}

// CheckLoginEligibility reports whether an account with the email exists and
// is verified. The HTTP layer runs it before the login handler.
func (s *IdentityService) CheckLoginEligibility(ctx context.Context, email string) error {
	_, err := s.loginCandidate(ctx, email)
	return err
}

func (s *IdentityService) loginCandidate(ctx context.Context, email string) (*domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, errAccountNotFound("user with this email not found")
		}
		return nil, s.storageFault(ctx, "login: get account", err)
	}
	if !account.IsVerified {
		return nil, errAccountNotVerified()
	}
	return account, nil
}

// Login checks, in order, that the account exists, is verified and that the
// password matches, then starts a new session.
func (s *IdentityService) Login(ctx context.Context, input LoginInput) (_ *domain.TokenPair, err error) {
	ctx, end := startOperation(ctx, opLogin)
	defer func() { end(err) }()

	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	account, err := s.loginCandidate(ctx, input.Email)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(input.Password, account.PasswordHash) {
		s.logger.DebugContext(ctx, "login rejected, password mismatch",
			slog.Int64("account_id", account.ID),
		)
		return nil, errInvalidCredentials()
	}

	pair, err := s.startSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account logged in",
		slog.Int64("account_id", account.ID),
	)

	return pair, nil
}

// Refresh rotates a session: the presented refresh token is exchanged for a
// new pair and the stored refresh token is overwritten.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (_ *domain.TokenPair, err error) {
	ctx, end := startOperation(ctx, opRefresh)
	defer func() { end(err) }()

	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, tokenError(err, http.StatusUnauthorized)
	}
	if claims.Type != auth.TokenTypeRefresh {
		return nil, errInvalidTokenType(auth.TokenTypeRefresh)
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, tokenError(err, http.StatusUnauthorized)
	}

	current, ok, err := s.sessions.GetCurrentRefresh(ctx, id)
	if err != nil {
		return nil, s.storageFault(ctx, "refresh: get session", err)
	}
	if !ok {
		return nil, errNoActiveSession()
	}
	if s.cfg.StrictRefreshMatch && subtle.ConstantTimeCompare([]byte(current), []byte(refreshToken)) != 1 {
		s.logger.WarnContext(ctx, "superseded refresh token presented",
			slog.Int64("account_id", id),
		)
		return nil, errSessionMismatch()
	}

	pair, err := s.startSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.Int64("account_id", id),
	)

	return pair, nil
}

// startSession mints an access/refresh pair and records the refresh token as
// the account's only current one.
func (s *IdentityService) startSession(ctx context.Context, accountID int64) (*domain.TokenPair, error) {
	access, _, err := s.codec.IssueAccess(accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue access token: %w", err))
	}
	refresh, _, err := s.codec.IssueRefresh(accountID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue refresh token: %w", err))
	}

	if err := s.sessions.SetCurrentRefresh(ctx, accountID, refresh, s.codec.RefreshTTL()); err != nil {
		return nil, s.storageFault(ctx, "store refresh token", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    domain.TokenTypeBearer,
	}, nil
}

// Authenticate validates an access token and returns its claims.
func (s *IdentityService) Authenticate(_ context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return nil, tokenError(err, http.StatusUnauthorized)
	}
	if claims.Type != auth.TokenTypeAccess {
		return nil, errInvalidTokenType(auth.TokenTypeAccess)
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, tokenError(err, http.StatusUnauthorized)
	}
	return claims, nil
}

// GetAccount returns the public projection of an account.
func (s *IdentityService) GetAccount(ctx context.Context, id int64) (*domain.PublicAccount, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, errAccountNotFound("user not found")
		}
		return nil, s.storageFault(ctx, "get account", err)
	}
	return account.Public(), nil
}

// ListAccounts returns a page of accounts. Only administrators may list.
func (s *IdentityService) ListAccounts(ctx context.Context, actorID int64, offset, limit int) ([]domain.PublicAccount, int, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, 0, err
	}

	accounts, total, err := s.accounts.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, s.storageFault(ctx, "list accounts", err)
	}

	out := make([]domain.PublicAccount, 0, len(accounts))
	for i := range accounts {
		out = append(out, *accounts[i].Public())
	}
	return out, total, nil
}

// DeleteAccount removes the target account. The actor must own it or be an
// administrator. The target's session is revoked before the row is removed.
func (s *IdentityService) DeleteAccount(ctx context.Context, actorID, targetID int64) (err error) {
	ctx, end := startOperation(ctx, opDeleteAccount)
	defer func() { end(err) }()

	if actorID != targetID {
		if err := s.requireAdmin(ctx, actorID); err != nil {
			return err
		}
	}

	if err := s.sessions.DeleteCurrentRefresh(ctx, targetID); err != nil {
		return s.storageFault(ctx, "delete account: revoke session", err)
	}

	if err := s.accounts.Delete(ctx, targetID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return errAccountNotFound("user not found")
		}
		return s.storageFault(ctx, "delete account", err)
	}

	s.logger.InfoContext(ctx, "account deleted",
		slog.Int64("account_id", targetID),
		slog.Int64("actor_id", actorID),
	)

	return nil
}

// IsAdmin reports whether the email belongs to an administrator.
func (s *IdentityService) IsAdmin(email string) bool {
	_, ok := s.admins[email]
	return ok
}

func (s *IdentityService) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.accounts.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return errPermissionDenied()
		}
		return s.storageFault(ctx, "load actor", err)
	}
	if !s.IsAdmin(actor.Email) {
		return errPermissionDenied()
	}
	return nil
}
