package kvstore

import (
	"errors"

	"github.com/drippler/drippler"
)

// StoreType represents the type of key-value store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// ErrInvalidStoreType is returned by NewStore for an unsupported driver.
var ErrInvalidStoreType = errors.New("invalid store type")

const defaultPrefix = "drippler:"

// NewStore creates a Store based on the given type.
// For Redis, requires WithRedisClient option.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, drippler.ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, config.prefix), nil

	default:
		return nil, ErrInvalidStoreType
	}
}
