package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// RedisStore keeps each scope in two keys: a sorted set of user IDs
// scored by expiry (unix ms) and a hash of encoded records. Expired
// members are pruned whenever the scope is listed.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
}

// NewRedisStore constructs a RedisStore; keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, c clock.Clock) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, clock: c}
}

type redisRecord struct {
	UserID        string                 `json:"user_id"`
	LastHeartbeat time.Time              `json:"online_at"`
	State         domain.ActivityState   `json:"status"`
	Profile       domain.ProfileSnapshot `json:"profile_snapshot"`
}

func (s *RedisStore) expiryKey(scope domain.Scope) string {
	return s.prefix + ":presence:" + scope.Key() + ":exp"
}

func (s *RedisStore) recordKey(scope domain.Scope) string {
	return s.prefix + ":presence:" + scope.Key() + ":rec"
}

func (s *RedisStore) Upsert(ctx context.Context, rec domain.PresenceRecord, ttl time.Duration) error {
	payload, err := json.Marshal(redisRecord{
		UserID:        rec.UserID,
		LastHeartbeat: rec.LastHeartbeat,
		State:         rec.State,
		Profile:       rec.Profile,
	})
	if err != nil {
		return fmt.Errorf("encode presence record: %w", err)
	}
	expiry := s.clock.Now().Add(ttl).UnixMilli()
	expKey, recKey := s.expiryKey(rec.Scope), s.recordKey(rec.Scope)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, expKey, redis.Z{Score: float64(expiry), Member: rec.UserID})
		pipe.HSet(ctx, recKey, rec.UserID, payload)
		// idle scopes disappear entirely once every member has lapsed
		pipe.Expire(ctx, expKey, 2*ttl)
		pipe.Expire(ctx, recKey, 2*ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Remove(ctx context.Context, scope domain.Scope, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.expiryKey(scope), userID)
		pipe.HDel(ctx, s.recordKey(scope), userID)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, scope domain.Scope) ([]domain.PresenceRecord, error) {
	expKey, recKey := s.expiryKey(scope), s.recordKey(scope)
	now := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)

	expired, err := s.client.ZRangeByScore(ctx, expKey, &redis.ZRangeBy{Min: "-inf", Max: "(" + now}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired presence: %w", err)
	}
	if len(expired) > 0 {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, expKey, "-inf", "("+now)
			pipe.HDel(ctx, recKey, expired...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("prune presence: %w", err)
		}
	}

	live, err := s.client.ZRangeByScore(ctx, expKey, &redis.ZRangeBy{Min: now, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	if len(live) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, recKey, live...).Result()
	if err != nil {
		return nil, fmt.Errorf("load presence records: %w", err)
	}

	out := make([]domain.PresenceRecord, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, domain.PresenceRecord{
			Scope:         scope,
			UserID:        rec.UserID,
			LastHeartbeat: rec.LastHeartbeat,
			State:         rec.State,
			Profile:       rec.Profile,
		})
	}
	return out, nil
}
