package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// maxNeighbors bounds each model row so snapshots stay small on catalogs
// where a few hub items co-occur with everything.
const maxNeighbors = 50

// cooccurrenceModel is the persisted payload: for each item, the items most
// often held by the same users, row-normalized to the strongest pair.
type cooccurrenceModel struct {
	Neighbors map[string]map[string]float64 `json:"neighbors"`
}

// Cooccurrence scores candidates by how often other users acquired them
// together with the items the profile already owns.
type Cooccurrence struct {
	model cooccurrenceModel
}

func (c *Cooccurrence) Identifier() string { return PredictorCooccurrence }

func (c *Cooccurrence) Train(ctx context.Context, data TrainingData) (json.RawMessage, error) {
	byUser := make(map[string][]string)
	for _, e := range data.Inventory {
		if e.Dropped() {
			continue
		}
		byUser[e.UserID] = append(byUser[e.UserID], e.ItemID)
	}
	counts := make(map[string]map[string]int)
	bump := func(a, b string) {
		row := counts[a]
		if row == nil {
			row = make(map[string]int)
			counts[a] = row
		}
		row[b]++
	}
	for _, owned := range byUser {
		for i := 0; i < len(owned); i++ {
			for j := i + 1; j < len(owned); j++ {
				if owned[i] == owned[j] {
					continue
				}
				bump(owned[i], owned[j])
				bump(owned[j], owned[i])
			}
		}
	}
	neighbors := make(map[string]map[string]float64, len(counts))
	for item, row := range counts {
		top := topNeighbors(row, maxNeighbors)
		max := 0
		for _, n := range top {
			if row[n] > max {
				max = row[n]
			}
		}
		scored := make(map[string]float64, len(top))
		for _, n := range top {
			scored[n] = float64(row[n]) / float64(max)
		}
		neighbors[item] = scored
	}
	return json.Marshal(cooccurrenceModel{Neighbors: neighbors})
}

// topNeighbors returns the count-heaviest keys, ties broken by ID so a
// training run is deterministic.
func topNeighbors(row map[string]int, limit int) []string {
	ids := make([]string, 0, len(row))
	for id := range row {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if row[ids[i]] != row[ids[j]] {
			return row[ids[i]] > row[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (c *Cooccurrence) Load(payload json.RawMessage) error {
	var m cooccurrenceModel
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("cooccurrence payload: %w", err)
	}
	if m.Neighbors == nil {
		m.Neighbors = map[string]map[string]float64{}
	}
	c.model = m
	return nil
}

func (c *Cooccurrence) Score(profile Profile) map[string]float64 {
	if len(profile.Owned) == 0 {
		return nil
	}
	out := make(map[string]float64)
	for _, owned := range profile.Owned {
		for id, w := range c.model.Neighbors[owned] {
			out[id] += w
		}
	}
	n := float64(len(profile.Owned))
	for id := range out {
		out[id] /= n
	}
	return out
}
