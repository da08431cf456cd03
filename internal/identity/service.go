package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meatflow/meatflow/internal/shared"
)

// Service wraps authentication and actor lookup. Bearer tokens live in redis
// so revocation is a delete and expiry needs no sweeping.
type Service struct {
	repo     Repository
	redis    *redis.Client
	tokenTTL time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, redisClient *redis.Client, tokenTTL time.Duration) *Service {
	return &Service{repo: repo, redis: redisClient, tokenTTL: tokenTTL}
}

// Authenticate validates credentials and issues a bearer token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*LoginResponse, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.redis.Set(ctx, tokenKey(token), user.ID, s.tokenTTL).Err(); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	return &LoginResponse{Token: token, ExpiresAt: expiresAt, Role: user.Role}, nil
}

// Revoke invalidates a bearer token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.redis.Del(ctx, tokenKey(token)).Err()
}

// Lookup resolves a bearer token to the acting user's identity and role.
// This is the only identity fact the fulfillment core consumes.
func (s *Service) Lookup(ctx context.Context, token string) (*shared.Actor, error) {
	val, err := s.redis.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, shared.ErrUnauthorized
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, shared.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, shared.ErrUnauthorized
	}

	return &shared.Actor{ID: user.ID, Name: user.Name, Role: user.Role}, nil
}

func tokenKey(token string) string {
	return "identity:token:" + token
}
