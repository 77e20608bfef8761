package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/identity/pkg/errors"
)

const keyPrefix = "refresh_token:"

// SessionStore implements repository.SessionStore using Redis. Each account
// has at most one key holding its current refresh token.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new Redis-backed session store.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Key returns the store key for an account's current refresh token.
func Key(accountID int64) string {
	return keyPrefix + strconv.FormatInt(accountID, 10)
}

// SetCurrentRefresh overwrites the account's refresh token with a single
// SET ... EX, so concurrent writers resolve as last writer wins.
func (s *SessionStore) SetCurrentRefresh(ctx context.Context, accountID int64, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.InvalidInput("refresh token ttl must be positive")
	}

	if err := s.client.Set(ctx, Key(accountID), token, ttl).Err(); err != nil {
		return apperrors.Storage("redis set refresh token", err)
	}

	return nil
}

// GetCurrentRefresh returns the stored refresh token. A missing or expired key
// yields ok=false with no error.
func (s *SessionStore) GetCurrentRefresh(ctx context.Context, accountID int64) (string, bool, error) {
	token, err := s.client.Get(ctx, Key(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, apperrors.Storage("redis get refresh token", err)
	}

	return token, true, nil
}

// DeleteCurrentRefresh removes the account's refresh token if present.
func (s *SessionStore) DeleteCurrentRefresh(ctx context.Context, accountID int64) error {
	if err := s.client.Del(ctx, Key(accountID)).Err(); err != nil {
		return apperrors.Storage("redis del refresh token", err)
	}

	return nil
}
