package webauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/lingoleap/webauth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenStore opens the token store selected by cfg.Backend. The caller closes
// it after the session is done with it. For Redis the connection is checked
// with PING.
func OpenStore(ctx context.Context, cfg StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	switch cfg.Backend {
	case "", BackendMemory:
		return store.NewMemoryStore(logger), nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: ping redis: %v", ErrStoreUnavailable, err)
		}
		return &ownedStore{
			Store:  store.NewRedisStore(client, cfg.KeyPrefix, logger),
			closer: client.Close,
		}, nil

	case BackendBadger:
		return store.OpenBadgerStore(store.BadgerConfig{
			Dir:           cfg.Badger.Dir,
			SyncWrites:    cfg.Badger.SyncWrites,
			InMemory:      cfg.Badger.InMemory,
			EncryptionKey: []byte(cfg.Badger.EncryptionKey),
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported storage backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

// ownedStore closes a backend client opened on the caller's behalf.
type ownedStore struct {
	Store
	closer func() error
}

func (s *ownedStore) Close() error {
	return errors.Join(s.Store.Close(), s.closer())
}
