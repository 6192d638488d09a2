// Package config reads the process configuration from environment variables.
package config

import (
	"time"

	"github.com/drippler/drippler/supabase"
)

type Config interface {
	EnvConfig
	SessionConfig
}

type EnvConfig interface {
	GetSupabaseURL() string
	GetSupabaseAnonKey() string
	GetWebappURL() string
	GetKVDriver() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
	GetListenAddr() string
	GetServerURL() string
	GetLogLevel() string
	GetLogPretty() bool
	GetExtensionVersion() string
}

type SessionConfig interface {
	GetSessionCheckInterval() time.Duration
	GetSessionRefreshThreshold() time.Duration
	GetInitMaxAttempts() int
	GetInitRetryDelay() time.Duration
	GetDispatchRecoveryPause() time.Duration
	GetStatusTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}

// Supabase returns the remote service settings. Placeholders and empty
// values pass through; they are rejected when the session manager connects.
func Supabase(c EnvConfig) supabase.Config {
	url := c.GetSupabaseURL()
	if url == "" {
		url = supabase.PlaceholderURL
	}
	key := c.GetSupabaseAnonKey()
	if key == "" {
		key = supabase.PlaceholderAPIKey
	}
	return supabase.Config{URL: url, APIKey: key}
}
