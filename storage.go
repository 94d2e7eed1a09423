package ledgergate

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerops/ledgergate/session"
)

// OpenStorage opens the durable storage described by cfg. The returned close
// function releases it and is never nil.
//
// The redis backend connects lazily; the first Restore or Login surfaces an
// unreachable server as session.ErrStorageUnavailable.
func OpenStorage(cfg StorageConfig) (session.Storage, func() error, error) {
	switch cfg.Backend {
	case "", StorageMemory:
		return session.NewMemoryStorage(), func() error { return nil }, nil
	case StorageBadger:
		s, err := session.OpenBadgerStorage(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return session.NewRedisStorage(rdb, cfg.RedisPrefix, cfg.RedisTTL), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: Storage Backend %q is not supported", ErrInvalidConfig, cfg.Backend)
	}
}
