package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vaheed/fresco/pkg/types"
)

// rerankWindow is the multiple of the requested size handed to rerankers, so
// a diversity pass has spare candidates to promote from below the cut.
const rerankWindow = 3

// Module is an assembled pipeline: weighted predictors, then filters, then
// rerankers, in configuration order.
type Module struct {
	identifier string
	predictors []weightedPredictor
	filters    []Filter
	rerankers  []Reranker
}

type weightedPredictor struct {
	p      Predictor
	weight float64
}

// Build assembles a Module. Each predictor loads its snapshot from snaps; a
// predictor with no snapshot is fitted live on data instead, so a fresh
// deployment can serve before the first explicit training run. data may be
// nil when every predictor has a snapshot.
func Build(ctx context.Context, cfg types.ModuleConfig, snaps map[string]types.ModelSnapshot, data *TrainingData) (*Module, error) {
	if len(cfg.Predictors) == 0 {
		return nil, errors.New("module configuration has no predictors")
	}
	m := &Module{identifier: cfg.Identifier}
	for _, pc := range cfg.Predictors {
		pred, err := NewPredictor(pc.Identifier)
		if err != nil {
			return nil, err
		}
		snap, ok := snaps[pc.Identifier]
		if !ok {
			if data == nil {
				return nil, fmt.Errorf("predictor %q has no snapshot and no training data", pc.Identifier)
			}
			payload, err := pred.Train(ctx, *data)
			if err != nil {
				return nil, fmt.Errorf("fit %s: %w", pc.Identifier, err)
			}
			snap = types.ModelSnapshot{Identifier: pc.Identifier, Payload: payload}
		}
		if err := pred.Load(snap.Payload); err != nil {
			return nil, fmt.Errorf("load %s: %w", pc.Identifier, err)
		}
		m.predictors = append(m.predictors, weightedPredictor{p: pred, weight: pc.Weight})
	}
	for _, id := range cfg.Filters {
		f, err := newFilter(id)
		if err != nil {
			return nil, err
		}
		m.filters = append(m.filters, f)
	}
	for _, id := range cfg.Rerankers {
		rr, err := newReranker(id)
		if err != nil {
			return nil, err
		}
		m.rerankers = append(m.rerankers, rr)
	}
	return m, nil
}

// Recommend runs the pipeline for the profile and returns up to size item
// IDs, best first. Equal scores break on the smaller external ID so a
// ranking is reproducible across runs.
func (m *Module) Recommend(p Profile, catalog map[string]types.Item, size int) []string {
	if size <= 0 {
		return nil
	}
	scores := make(map[string]float64)
	for _, wp := range m.predictors {
		for id, s := range wp.p.Score(p) {
			scores[id] += wp.weight * s
		}
	}
	// A model may reference items that have since left the catalog.
	for id := range scores {
		if _, ok := catalog[id]; !ok {
			delete(scores, id)
		}
	}
	for _, f := range m.filters {
		f(p, catalog, scores)
	}
	ranked := rank(scores)
	if window := size * rerankWindow; len(ranked) > window {
		ranked = ranked[:window]
	}
	for _, rr := range m.rerankers {
		ranked = rr(p, catalog, ranked)
	}
	if len(ranked) > size {
		ranked = ranked[:size]
	}
	return ranked
}

func rank(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
