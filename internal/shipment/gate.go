package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meatflow/meatflow/internal/shared"
)

// defaultGateTTL bounds abandoned gate sessions; a forgotten session simply
// evaporates with no effect on the shipment.
const defaultGateTTL = 2 * time.Hour

// GateSessionStore keeps open gate sessions in redis. Partial checklist
// progress is never written to the database, only a completed gate is.
type GateSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewGateSessionStore constructs a GateSessionStore.
func NewGateSessionStore(redisClient *redis.Client, ttl time.Duration) *GateSessionStore {
	if ttl <= 0 {
		ttl = defaultGateTTL
	}
	return &GateSessionStore{redis: redisClient, ttl: ttl}
}

// Put stores or refreshes a session.
func (s *GateSessionStore) Put(ctx context.Context, session *GateSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal gate session: %w", err)
	}
	if err := s.redis.Set(ctx, gateKey(session.ShipmentID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store gate session: %w", err)
	}
	return nil
}

// Get loads the open session for a shipment.
func (s *GateSessionStore) Get(ctx context.Context, shipmentID int64) (*GateSession, error) {
	payload, err := s.redis.Get(ctx, gateKey(shipmentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: no open gate session", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("load gate session: %w", err)
	}

	var session GateSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal gate session: %w", err)
	}
	return &session, nil
}

// Delete discards a session. Missing sessions are not an error.
func (s *GateSessionStore) Delete(ctx context.Context, shipmentID int64) error {
	return s.redis.Del(ctx, gateKey(shipmentID)).Err()
}

func gateKey(shipmentID int64) string {
	return "shipment:gate:" + strconv.FormatInt(shipmentID, 10)
}
