package setup

import (
	"os"
	"time"

	appconfig "github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/launcher"
)

// Config captures environment options for the integration suite.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	ReuseDB     bool
	SkipSuite   bool
	WaitTimeout time.Duration
}

// LoadConfig reads the suite options from the environment. The suite is
// skipped unless INTEGRATION_RUN enables it or the settings profile covers
// the integration suite; the launcher arranges the latter.
func LoadConfig() Config {
	skipSuite := true
	if run, ok := appconfig.LookupEnvBool("INTEGRATION_RUN"); ok {
		skipSuite = !run
	}
	if raw := os.Getenv(appconfig.EnvSettingsModule); raw != "" {
		if p, err := appconfig.ParseProfile(raw); err == nil && p.IncludesIntegration() {
			skipSuite = false
		}
	}
	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		ReuseDB:     appconfig.GetenvBool(launcher.EnvReuseDB),
		SkipSuite:   skipSuite,
		WaitTimeout: appconfig.GetenvDuration("INTEGRATION_WAIT_TIMEOUT", 2*time.Minute),
	}
}
