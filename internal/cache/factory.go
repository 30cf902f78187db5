package cache

import (
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// NewStore builds the backing store named by the config.
func NewStore(cfg *config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case config.CacheTypeRedis:
		if cfg.Redis == nil || cfg.Redis.Addr == "" {
			return nil, util.NewConfigError("cache.redis.addr", "required for redis cache")
		}
		return NewRedisStore(cfg.Redis), nil
	case config.CacheTypeMemory, "":
		return NewMemoryStore(WithMaxEntries(cfg.MaxEntries)), nil
	default:
		return nil, util.NewConfigError("cache.type", "unknown cache type "+cfg.Type)
	}
}
