package bootstrap

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// BuildConversationStore selects the conversation backend named by
// STORE_BACKEND. The matching connection must already be open.
func BuildConversationStore(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (conversation.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.StoreBackend {
	case "", StoreMemory:
		logger.Warn("using in-memory conversation store; history is lost on restart")
		return conversation.NewMemoryStore(), nil
	case StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: STORE_BACKEND=postgres requires DATABASE_URL")
		}
		logger.Info("using postgres conversation store")
		return conversation.NewPostgresStore(pool), nil
	case StoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: STORE_BACKEND=redis requires a reachable REDIS_ADDR")
		}
		logger.Info("using redis conversation store", "redis", cfg.RedisAddr)
		return conversation.NewRedisStore(redisClient, nil), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
