package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/metrics"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/pkg/types"
	"go.uber.org/zap"
)

// Train fits the named predictor on the full corpus and persists the result
// as a new snapshot version.
func Train(ctx context.Context, st store.Store, identifier string) (types.ModelSnapshot, error) {
	pred, err := NewPredictor(identifier)
	if err != nil {
		return types.ModelSnapshot{}, err
	}
	items, err := st.ListItems(ctx, 0)
	if err != nil {
		return types.ModelSnapshot{}, fmt.Errorf("load items: %w", err)
	}
	inv, err := st.ListAllInventory(ctx)
	if err != nil {
		return types.ModelSnapshot{}, fmt.Errorf("load inventory: %w", err)
	}
	started := time.Now()
	payload, err := pred.Train(ctx, TrainingData{Items: items, Inventory: inv})
	if err != nil {
		return types.ModelSnapshot{}, fmt.Errorf("train %s: %w", identifier, err)
	}
	snap := types.ModelSnapshot{
		Identifier: identifier,
		Payload:    payload,
		TrainedAt:  time.Now().UTC(),
	}
	version, err := st.SaveSnapshot(ctx, snap)
	if err != nil {
		return types.ModelSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	snap.Version = version
	metrics.TrainRunsTotal.WithLabelValues(identifier).Inc()
	logging.L.Info("model_trained",
		zap.String("model", identifier),
		zap.Int("version", version),
		zap.Int("items", len(items)),
		zap.Int("inventory", len(inv)),
		zap.Duration("duration", time.Since(started)),
	)
	return snap, nil
}
