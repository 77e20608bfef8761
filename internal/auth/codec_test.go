package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(CodecConfig{
		Secret:          "test-secret-key-for-tokens",
		Algorithm:       "HS256",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		VerificationTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec_Validation(t *testing.T) {
	base := CodecConfig{
		Secret:          "secret",
		Algorithm:       "HS256",
		AccessTTL:       time.Minute,
		RefreshTTL:      time.Hour,
		VerificationTTL: time.Hour,
	}

	tests := []struct {
		name   string
		mutate func(*CodecConfig)
	}{
		{"empty secret", func(c *CodecConfig) { c.Secret = "" }},
		{"asymmetric algorithm", func(c *CodecConfig) { c.Algorithm = "RS256" }},
		{"none algorithm", func(c *CodecConfig) { c.Algorithm = "none" }},
		{"zero access ttl", func(c *CodecConfig) { c.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *CodecConfig) { c.RefreshTTL = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewTokenCodec(cfg)
			assert.Error(t, err)
		})
	}

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		cfg := base
		cfg.Algorithm = alg
		_, err := NewTokenCodec(cfg)
		assert.NoError(t, err, alg)
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, expiresAt, err := codec.IssueVerification(42, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeEmailVerification, claims.Type)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)

	id, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestIssue_ExpiryMatchesTTL(t *testing.T) {
	codec := newTestCodec(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return fixed }

	_, accessExp, err := codec.IssueAccess(1)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(15*time.Minute), accessExp)

	_, refreshExp, err := codec.IssueRefresh(1)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(7*24*time.Hour), refreshExp)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	codec := newTestCodec(t)
	fixed := time.Now().UTC()
	codec.now = func() time.Time { return fixed }

	first, _, err := codec.IssueRefresh(7)
	require.NoError(t, err)
	second, _, err := codec.IssueRefresh(7)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestIssue_RejectsNonPositiveTTL(t *testing.T) {
	codec := newTestCodec(t)

	_, _, err := codec.Issue(Claims{Type: TokenTypeAccess}, 0)
	assert.Error(t, err)
	_, _, err = codec.Issue(Claims{Type: TokenTypeAccess}, -time.Second)
	assert.Error(t, err)
}

func TestIssue_RequiresType(t *testing.T) {
	codec := newTestCodec(t)

	_, _, err := codec.Issue(Claims{}, time.Minute)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	codec := newTestCodec(t)
	codec.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }

	token, _, err := codec.IssueAccess(5)
	require.NoError(t, err)

	codec.now = func() time.Time { return time.Now().UTC() }
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t)

	token, _, err := codec.IssueAccess(5)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	other, _, err := codec.IssueAccess(6)
	require.NoError(t, err)
	otherParts := strings.Split(other, ".")
	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = codec.Verify(tampered)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestVerify_ExpiredAndTamperedReportsSignature(t *testing.T) {
	codec := newTestCodec(t)
	codec.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }

	token, _, err := codec.IssueAccess(5)
	require.NoError(t, err)
	codec.now = func() time.Time { return time.Now().UTC() }

	tampered := token[:len(token)-2] + "xx"
	if tampered == token {
		tampered = token[:len(token)-2] + "yy"
	}

	_, err = codec.Verify(tampered)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewTokenCodec(CodecConfig{
		Secret:          "a-different-secret",
		Algorithm:       "HS256",
		AccessTTL:       time.Minute,
		RefreshTTL:      time.Hour,
		VerificationTTL: time.Hour,
	})
	require.NoError(t, err)

	token, _, err := other.IssueAccess(1)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestVerify_AlgorithmMismatch(t *testing.T) {
	codec := newTestCodec(t)

	claims := Claims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &claims).SignedString([]byte("test-secret-key-for-tokens"))
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	codec := newTestCodec(t)

	claims := Claims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenBadSignature)
}

func TestVerify_Malformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, input := range []string{"", "   ", "not-a-token", "a.b", "a.b.c"} {
		_, err := codec.Verify(input)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", input)
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	codec := newTestCodec(t)

	claims := Claims{
		Type:             TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: DefaultIssuer},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte("test-secret-key-for-tokens"))
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestClaims_AccountID_Invalid(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}
	_, err := c.AccountID()
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestSupportedAlgorithm(t *testing.T) {
	assert.True(t, SupportedAlgorithm("HS384"))
	assert.False(t, SupportedAlgorithm("ES256"))
}
