package ordersheet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meatflow/meatflow/internal/shared"
)

// defaultInviteTTL bounds invite tokens on sheets without a cutoff.
const defaultInviteTTL = 72 * time.Hour

// InviteTokenStore keeps customer invite tokens in redis. A token is the only
// credential a customer holds, so expiry is the redis TTL and revocation is a
// delete.
type InviteTokenStore struct {
	redis *redis.Client
}

// NewInviteTokenStore constructs an InviteTokenStore.
func NewInviteTokenStore(redisClient *redis.Client) *InviteTokenStore {
	return &InviteTokenStore{redis: redisClient}
}

// Issue creates a fresh token for the sheet. When cutOffAt is set the token
// expires at the cutoff; tokens for sheets without a cutoff fall back to the
// default TTL.
func (s *InviteTokenStore) Issue(ctx context.Context, sheetID int64, cutOffAt *time.Time) (string, error) {
	ttl := defaultInviteTTL
	if cutOffAt != nil {
		ttl = time.Until(*cutOffAt)
		if ttl <= 0 {
			return "", fmt.Errorf("%w: cutoff already passed", shared.ErrValidation)
		}
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, inviteKey(token), sheetID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store invite token: %w", err)
	}
	return token, nil
}

// Lookup resolves a token to the order sheet it was issued for.
func (s *InviteTokenStore) Lookup(ctx context.Context, token string) (int64, error) {
	val, err := s.redis.Get(ctx, inviteKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrUnauthorized
		}
		return 0, fmt.Errorf("lookup invite token: %w", err)
	}

	sheetID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, shared.ErrUnauthorized
	}
	return sheetID, nil
}

// Revoke deletes a token. Missing tokens are not an error.
func (s *InviteTokenStore) Revoke(ctx context.Context, token string) error {
	return s.redis.Del(ctx, inviteKey(token)).Err()
}

func inviteKey(token string) string {
	return "ordersheet:invite:" + token
}
