package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const redisSeqKey = "chat:conversation:seq"

// appendScript pushes a turn only when the conversation exists. RPUSH is
// atomic per key, so appends to one conversation land in arrival order.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local n = redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'turn_count', n)
return n
`)

// RedisStore keeps each conversation as a meta hash plus a list of JSON turns.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("healthchat.internal.conversation.redis")
	}
	return &RedisStore{redis: client, tracer: tracer}
}

func (s *RedisStore) CreateConversation(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.create")
	defer span.End()

	id, err := s.redis.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("conversation: allocate id: %w: %w", ErrUnavailable, err)
	}
	if err := s.redis.HSet(ctx, metaKey(id), "created_at", time.Now().UTC().Format(time.RFC3339Nano), "turn_count", 0).Err(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("conversation: create: %w: %w", ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int64("conversation.id", id))
	return id, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, id int64, turn Turn) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_turn")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", id), attribute.String("turn.role", string(turn.Role)))

	if err := turn.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(stamp(turn))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: encode turn: %w", err)
	}
	n, err := appendScript.Run(ctx, s.redis, []string{metaKey(id), turnsKey(id)}, data).Int64()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append turn: %w: %w", ErrUnavailable, err)
	}
	if n < 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Turns(ctx context.Context, id int64) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.turns")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", id))

	exists, err := s.redis.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: check conversation: %w: %w", ErrUnavailable, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	raw, err := s.redis.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load turns: %w: %w", ErrUnavailable, err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func metaKey(id int64) string {
	return fmt.Sprintf("chat:conversation:%d", id)
}

func turnsKey(id int64) string {
	return fmt.Sprintf("chat:conversation:%d:turns", id)
}
