package setup

import (
	"log/slog"
	"os"
	"sync"

	"github.com/vaheed/fresco/internal/suites"
)

var (
	suiteLogger     *slog.Logger
	suiteLoggerOnce sync.Once
)

// SuiteLogger returns the shared logger instance. When the launcher exported
// a run ID every suite line carries it, so interleaved CI logs can be told
// apart.
func SuiteLogger() *slog.Logger {
	suiteLoggerOnce.Do(func() {
		handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
		suiteLogger = slog.New(handler)
		if id := os.Getenv(suites.EnvRunID); id != "" {
			suiteLogger = suiteLogger.With(slog.String("run_id", id))
		}
	})
	return suiteLogger
}
