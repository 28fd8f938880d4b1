package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvSettingsModule is the environment variable selecting the settings
// profile test runs execute under. The launcher writes it, the test command
// validates it, and the integration suite reads it.
const EnvSettingsModule = "FRESCO_SETTINGS_MODULE"

// Profile identifies a settings profile for test runs.
type Profile string

const (
	// ProfileUnit configures the fast suite: memory store, no network.
	ProfileUnit Profile = "settings/unit"
	// ProfileIntegration configures the full suite: real store and API.
	ProfileIntegration Profile = "settings/integration"
	// ProfileCombined covers a run that executes both suites. It exists so
	// that selecting both never silently overwrites one profile with the
	// other.
	ProfileCombined Profile = "settings/combined"
)

// ParseProfile validates a settings profile token.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case ProfileUnit, ProfileIntegration, ProfileCombined:
		return p, nil
	}
	return "", fmt.Errorf("unknown settings profile %q", s)
}

// IncludesIntegration reports whether the profile covers the integration
// suite, which needs a database and keeps it between runs when REUSE_DB=1.
func (p Profile) IncludesIntegration() bool {
	return p == ProfileIntegration || p == ProfileCombined
}

// IncludesUnit reports whether the profile covers the unit suite.
func (p Profile) IncludesUnit() bool {
	return p == ProfileUnit || p == ProfileCombined
}

// Server holds the API server configuration, read from the environment.
type Server struct {
	HTTPAddr            string
	DatabaseURL         string
	RedisAddr           string
	AuthEnabled         bool
	JWTSigningKey       string
	ConnectTimeout      time.Duration
	ShutdownTimeout     time.Duration
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	CacheTTL            time.Duration
	FillRefreshInterval time.Duration
}

// LoadServer reads the server configuration. Validation of required values
// is left to the caller so it can decide how to fail.
func LoadServer() Server {
	return Server{
		HTTPAddr:            GetenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		AuthEnabled:         GetenvBoolDefault("AUTH_ENABLED", true),
		JWTSigningKey:       os.Getenv("JWT_SIGNING_KEY"),
		ConnectTimeout:      GetenvDuration("DB_CONNECT_TIMEOUT", 60*time.Second),
		ShutdownTimeout:     GetenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimitRequests:   GetenvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:     GetenvDuration("RATE_LIMIT_WINDOW", 10*time.Second),
		CacheTTL:            GetenvDuration("RECS_CACHE_TTL", time.Minute),
		FillRefreshInterval: GetenvDuration("FILL_REFRESH_INTERVAL", 0),
	}
}

// GetenvDefault returns the value of key or def when unset or empty.
func GetenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvBool returns the boolean value of key, false when unset or invalid.
func GetenvBool(key string) bool {
	b, _ := LookupEnvBool(key)
	return b
}

// GetenvBoolDefault returns the boolean value of key or def when unset.
func GetenvBoolDefault(key string, def bool) bool {
	if b, ok := LookupEnvBool(key); ok {
		return b
	}
	return def
}

// LookupEnvBool parses key as a bool and reports whether it was set to
// something parseable.
func LookupEnvBool(key string) (bool, bool) {
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			return false, false
		}
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
	}
	return false, false
}

// GetenvInt returns the integer value of key or def when unset or invalid.
func GetenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetenvDuration returns the duration value of key or def when unset or
// invalid.
func GetenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
