package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/vaheed/fresco/internal/cache"
	appconfig "github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/engine"
	httpapi "github.com/vaheed/fresco/internal/http"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/internal/util"
	"github.com/vaheed/fresco/pkg/catalog"
	"github.com/vaheed/fresco/pkg/client"
)

// Environment wires together the lifecycle of the suite: the configured
// store, the recommendation engine and an in-process API server.
type Environment struct {
	cfg      Config
	logger   *slog.Logger
	st       store.Store
	recCache *cache.Recommendations
	eng      *engine.Service
	api      *httptest.Server
}

var (
	suiteEnv     *Environment
	suiteEnvOnce sync.Once
	suiteEnvErr  error
)

// ErrSuiteSkipped indicates the suite was skipped via environment toggle.
var ErrSuiteSkipped = errors.New("suite skipped")

// InitSuiteEnvironment bootstraps the shared environment.
func InitSuiteEnvironment(ctx context.Context, cfg Config) (*Environment, error) {
	logger := SuiteLogger()
	suiteEnvOnce.Do(func() {
		if cfg.SkipSuite {
			suiteEnvErr = ErrSuiteSkipped
			return
		}
		env := &Environment{cfg: cfg, logger: logger}
		if err := env.ensureStore(ctx); err != nil {
			suiteEnvErr = err
			return
		}
		if err := env.ensureModuleConfig(ctx); err != nil {
			suiteEnvErr = err
			return
		}
		env.ensureAPI()
		suiteEnv = env
	})
	if errors.Is(suiteEnvErr, ErrSuiteSkipped) {
		return nil, ErrSuiteSkipped
	}
	return suiteEnv, suiteEnvErr
}

// SuiteEnvironment returns the shared environment for tests.
func SuiteEnvironment() *Environment {
	return suiteEnv
}

func (e *Environment) ensureStore(ctx context.Context) error {
	if e.cfg.DatabaseURL == "" {
		e.logger.Info("suite.store.memory")
		e.st = store.NewMemory()
		return nil
	}
	e.logger.Info("suite.store.postgres.start")
	var st store.Store
	err := util.Retry(e.cfg.WaitTimeout, func() (bool, error) {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := store.NewPostgres(cctx, e.cfg.DatabaseURL)
		if err != nil {
			return true, err
		}
		st = s
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	e.st = st
	if e.cfg.ReuseDB {
		e.logger.Info("suite.store.postgres.reuse")
		return nil
	}
	if resetter, ok := st.(interface{ Reset(context.Context) error }); ok {
		if err := resetter.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		e.logger.Info("suite.store.postgres.reset")
	}
	return nil
}

func (e *Environment) ensureModuleConfig(ctx context.Context) error {
	_, err := e.st.GetModuleConfig(ctx, engine.DefaultModuleID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	cfg, err := catalog.DefaultModule()
	if err != nil {
		return err
	}
	if err := e.st.SaveModuleConfig(ctx, cfg); err != nil {
		return err
	}
	e.logger.Info("suite.module.seeded", slog.String("module", cfg.Identifier))
	return nil
}

func (e *Environment) ensureAPI() {
	e.recCache = cache.NewRecommendations(e.cfg.RedisAddr, time.Minute)
	e.eng = engine.NewService(e.st, e.recCache, engine.DefaultModuleID)
	srv := httpapi.NewServer(e.st, e.eng, appconfig.Server{})
	e.api = httptest.NewServer(srv.Router())
	e.logger.Info("suite.api.ready", slog.String("url", e.api.URL))
}

// TrainAndRebuild trains both models on the current corpus and swaps in a
// fresh engine module.
func (e *Environment) TrainAndRebuild(ctx context.Context) error {
	for _, model := range []string{engine.PredictorPopularity, engine.PredictorCooccurrence} {
		if _, err := engine.Train(ctx, e.st, model); err != nil {
			return fmt.Errorf("train %s: %w", model, err)
		}
	}
	return e.eng.Rebuild(ctx)
}

// Client returns an API client bound to the in-process server.
func (e *Environment) Client() *client.Client {
	return client.New(e.api.URL, "")
}

// BaseURL returns the in-process API address.
func (e *Environment) BaseURL() string {
	return e.api.URL
}

// Store exposes the backing store for fixture checks.
func (e *Environment) Store() store.Store {
	return e.st
}

// Config returns the suite configuration.
func (e *Environment) Config() Config {
	return e.cfg
}

// Logger returns the shared logger.
func (e *Environment) Logger() *slog.Logger {
	return e.logger
}

// Teardown releases resources created during setup.
func (e *Environment) Teardown(ctx context.Context) {
	if e == nil {
		return
	}
	e.logger.Info("suite.teardown.start")
	if e.api != nil {
		e.api.Close()
	}
	if e.recCache != nil {
		if err := e.recCache.Close(); err != nil {
			e.logger.Error("suite.teardown.cache", slog.String("error", err.Error()))
		}
	}
	if e.st != nil {
		if err := e.st.Close(ctx); err != nil {
			e.logger.Error("suite.teardown.store", slog.String("error", err.Error()))
		}
	}
	e.logger.Info("suite.teardown.complete")
}
