package kvstore

import (
	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for stores.
type storeConfig struct {
	redisClient *redis.Client
	prefix      string
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithPrefix namespaces every key written by the Redis store.
func WithPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.prefix = prefix
	}
}
