package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates the purpose a token was minted for.
type TokenType string

const (
	TokenTypeAccess            TokenType = "access"
	TokenTypeRefresh           TokenType = "refresh"
	TokenTypeEmailVerification TokenType = "email_verification"
)

// DefaultIssuer is the iss claim stamped on every token.
const DefaultIssuer = "identity-service"

// Verification failure kinds. Exactly one of them is returned by Verify.
var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenBadSignature = errors.New("token signature is invalid")
	ErrTokenMalformed    = errors.New("token is malformed")
)

var signingMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

// SupportedAlgorithm reports whether alg can be used to sign tokens.
func SupportedAlgorithm(alg string) bool {
	_, ok := signingMethods[alg]
	return ok
}

// Claims is the claim set carried by every token the codec issues.
type Claims struct {
	Type  TokenType `json:"type"`
	Email string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim as a numeric account identity.
func (c *Claims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse subject %q: %w", c.Subject, ErrTokenMalformed)
	}
	return id, nil
}

// CodecConfig configures a TokenCodec.
type CodecConfig struct {
	Secret          string
	Algorithm       string
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
}

// TokenCodec signs and verifies compact session tokens (JWS, HMAC).
type TokenCodec struct {
	secret          []byte
	method          jwt.SigningMethod
	issuer          string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	verificationTTL time.Duration
	now             func() time.Time
}

// NewTokenCodec creates a codec keyed by the configured secret and algorithm.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.VerificationTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &TokenCodec{
		secret:          []byte(cfg.Secret),
		method:          method,
		issuer:          issuer,
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		verificationTTL: cfg.VerificationTTL,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// AccessTTL returns the lifetime of access tokens.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs claims with an absolute expiry of now+ttl. The registered time,
// issuer and ID claims are always overwritten.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if claims.Type == "" {
		return "", time.Time{}, errors.New("token type is required")
	}

	now := c.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims.Issuer = c.issuer
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.RegisteredClaims.ID = uuid.NewString()

	token := jwt.NewWithClaims(c.method, &claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}

	return signed, expiresAt, nil
}

// IssueAccess mints a short-lived access token for the account.
func (c *TokenCodec) IssueAccess(accountID int64) (string, time.Time, error) {
	return c.Issue(Claims{
		Type:             TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: formatSubject(accountID)},
	}, c.accessTTL)
}

// IssueRefresh mints a refresh token for the account.
func (c *TokenCodec) IssueRefresh(accountID int64) (string, time.Time, error) {
	return c.Issue(Claims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: formatSubject(accountID)},
	}, c.refreshTTL)
}

// IssueVerification mints an email verification token embedding the email
// address and the account identity.
func (c *TokenCodec) IssueVerification(accountID int64, email string) (string, time.Time, error) {
	return c.Issue(Claims{
		Type:             TokenTypeEmailVerification,
		Email:            email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: formatSubject(accountID)},
	}, c.verificationTTL)
}

// Verify checks the signature and then the expiry of a token and returns its
// claims. Failures are reported as ErrTokenMalformed, ErrTokenBadSignature or
// ErrTokenExpired.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenMalformed
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Type == "" || claims.Subject == "" {
		return nil, fmt.Errorf("missing type or subject: %w", ErrTokenMalformed)
	}

	return claims, nil
}

// classify maps jwt parser errors onto the three codec failure kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
	}
}

func formatSubject(accountID int64) string {
	return strconv.FormatInt(accountID, 10)
}
