package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	supabaseURLVar      = "SUPABASE_URL"
	supabaseAnonKeyVar  = "SUPABASE_ANON_KEY"
	webappURLVar        = "WEBAPP_URL"
	kvDriverVar         = "KV_DRIVER"
	redisAddrVar        = "REDIS_ADDR"
	redisPasswordVar    = "REDIS_PASSWORD"
	redisDBVar          = "REDIS_DB"
	redisPrefixVar      = "REDIS_PREFIX"
	listenAddrVar       = "LISTEN_ADDR"
	serverURLVar        = "DRIPPLER_URL"
	logLevelVar         = "LOG_LEVEL"
	logPrettyVar        = "LOG_PRETTY"
	extensionVersionVar = "EXTENSION_VERSION"
	checkIntervalVar    = "SESSION_CHECK_INTERVAL"
	refreshThresholdVar = "SESSION_REFRESH_THRESHOLD"
	initAttemptsVar     = "INIT_MAX_ATTEMPTS"
	initDelayVar        = "INIT_RETRY_DELAY"
	recoveryPauseVar    = "DISPATCH_RECOVERY_PAUSE"
	statusTimeoutVar    = "STATUS_TIMEOUT"
)

// Load reads .env style files into the environment. Missing files are
// skipped; variables already set are left alone. With no arguments it reads
// ./.env.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetSupabaseURL() string {
	return GetEnv(supabaseURLVar, "")
}

func (EnvVars) GetSupabaseAnonKey() string {
	return GetEnv(supabaseAnonKeyVar, "")
}

func (EnvVars) GetWebappURL() string {
	return strings.TrimRight(GetEnv(webappURLVar, "https://drippler-web.vercel.app"), "/")
}

// GetKVDriver defaults to redis when REDIS_ADDR is set and to memory
// otherwise.
func (EnvVars) GetKVDriver() string {
	fallback := "memory"
	if GetEnv(redisAddrVar, "") != "" {
		fallback = "redis"
	}
	return strings.ToLower(GetEnv(kvDriverVar, fallback))
}

func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func (EnvVars) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func (EnvVars) GetRedisDB() int {
	return getInt(redisDBVar, 0)
}

func (EnvVars) GetRedisPrefix() string {
	return GetEnv(redisPrefixVar, "drippler:")
}

// GetListenAddr returns the address serve binds to. A bare port gets a
// leading colon.
func (EnvVars) GetListenAddr() string {
	addr := GetEnv(listenAddrVar, ":8787")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}

// GetServerURL is where the call and status commands find a running serve.
func (EnvVars) GetServerURL() string {
	return GetEnv(serverURLVar, "http://localhost:8787")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetLogPretty() bool {
	return getBool(logPrettyVar, false)
}

func (EnvVars) GetExtensionVersion() string {
	return GetEnv(extensionVersionVar, "1.0.0")
}

func (EnvVars) GetSessionCheckInterval() time.Duration {
	return getDuration(checkIntervalVar, 5*time.Minute)
}

func (EnvVars) GetSessionRefreshThreshold() time.Duration {
	return getDuration(refreshThresholdVar, 10*time.Minute)
}

func (EnvVars) GetInitMaxAttempts() int {
	return getInt(initAttemptsVar, 3)
}

func (EnvVars) GetInitRetryDelay() time.Duration {
	return getDuration(initDelayVar, time.Second)
}

func (EnvVars) GetDispatchRecoveryPause() time.Duration {
	return getDuration(recoveryPauseVar, time.Second)
}

func (EnvVars) GetStatusTimeout() time.Duration {
	return getDuration(statusTimeoutVar, 3*time.Second)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(envVar string, defaultValue int) int {
	n, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getBool(envVar string, defaultValue bool) bool {
	b, err := strconv.ParseBool(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
