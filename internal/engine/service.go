package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vaheed/fresco/internal/cache"
	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/pkg/types"
	"go.uber.org/zap"
)

// ErrNotReady is returned by Recommend before the first successful Rebuild.
var ErrNotReady = errors.New("engine not ready")

// Service serves recommendations from the persisted module configuration.
// The assembled module and the item catalog live in memory and are swapped
// atomically by Rebuild.
type Service struct {
	st       store.Store
	recCache *cache.Recommendations
	moduleID string

	mu      sync.RWMutex
	module  *Module
	catalog map[string]types.Item
}

// NewService wires the serving engine. moduleID selects which stored module
// configuration to build; the API uses DefaultModuleID.
func NewService(st store.Store, recCache *cache.Recommendations, moduleID string) *Service {
	if moduleID == "" {
		moduleID = DefaultModuleID
	}
	return &Service{st: st, recCache: recCache, moduleID: moduleID}
}

// ModuleID returns the module configuration identifier the service serves.
func (s *Service) ModuleID() string { return s.moduleID }

// Rebuild reloads the module configuration, the item catalog and the latest
// snapshots, then swaps the assembled module in. Predictors without a stored
// snapshot are fitted live from the current corpus.
func (s *Service) Rebuild(ctx context.Context) error {
	cfg, err := s.st.GetModuleConfig(ctx, s.moduleID)
	if err != nil {
		return fmt.Errorf("load module config %q: %w", s.moduleID, err)
	}
	items, err := s.st.ListItems(ctx, 0)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	snaps := make(map[string]types.ModelSnapshot, len(cfg.Predictors))
	var data *TrainingData
	for _, pc := range cfg.Predictors {
		snap, err := s.st.LatestSnapshot(ctx, pc.Identifier)
		switch {
		case err == nil:
			snaps[pc.Identifier] = snap
		case errors.Is(err, store.ErrNotFound):
			if data == nil {
				inv, err := s.st.ListAllInventory(ctx)
				if err != nil {
					return fmt.Errorf("load inventory: %w", err)
				}
				data = &TrainingData{Items: items, Inventory: inv}
			}
		default:
			return fmt.Errorf("load snapshot %q: %w", pc.Identifier, err)
		}
	}
	m, err := Build(ctx, cfg, snaps, data)
	if err != nil {
		return err
	}
	catalog := make(map[string]types.Item, len(items))
	for _, it := range items {
		catalog[it.ExternalID] = it
	}
	s.mu.Lock()
	s.module = m
	s.catalog = catalog
	s.mu.Unlock()
	logging.L.Info("engine_rebuilt",
		zap.String("module", cfg.Identifier),
		zap.Int("items", len(catalog)),
		zap.Int("snapshots", len(snaps)),
	)
	return nil
}

// Recommend returns up to size item IDs for the user, consulting the cache
// first. Unknown users are served from an empty profile, which leaves the
// popularity scores to carry the ranking.
func (s *Service) Recommend(ctx context.Context, userID string, size int) (types.Recommendation, error) {
	if recs, ok := s.recCache.Get(ctx, userID, size); ok {
		return types.Recommendation{User: userID, Recommendations: recs}, nil
	}
	s.mu.RLock()
	m, catalog := s.module, s.catalog
	s.mu.RUnlock()
	if m == nil {
		return types.Recommendation{}, ErrNotReady
	}
	profile := Profile{User: types.User{ExternalID: userID}}
	u, err := s.st.GetUser(ctx, userID)
	switch {
	case err == nil:
		profile.User = u
		entries, err := s.st.ListInventory(ctx, userID, false)
		if err != nil {
			return types.Recommendation{}, fmt.Errorf("load inventory for %s: %w", userID, err)
		}
		for _, e := range entries {
			profile.Owned = append(profile.Owned, e.ItemID)
		}
	case errors.Is(err, store.ErrNotFound):
		// cold start
	default:
		return types.Recommendation{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	recs := m.Recommend(profile, catalog, size)
	if recs == nil {
		recs = []string{}
	}
	s.recCache.Set(ctx, userID, size, recs)
	return types.Recommendation{User: userID, Recommendations: recs}, nil
}

// InvalidateUser drops the user's cached recommendations. Handlers call it
// after any inventory mutation, since ownership feeds the filters.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	s.recCache.Invalidate(ctx, userID)
}
