package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// popularityModel is the persisted payload: per-item ownership counts scaled
// to the most owned item, so scores stay in [0,1] regardless of corpus size.
type popularityModel struct {
	Scores map[string]float64 `json:"scores"`
}

// Popularity ranks items by how many users currently hold them. It ignores
// the profile, which makes it the predictor that carries cold-start users.
type Popularity struct {
	model popularityModel
}

func (p *Popularity) Identifier() string { return PredictorPopularity }

func (p *Popularity) Train(ctx context.Context, data TrainingData) (json.RawMessage, error) {
	counts := make(map[string]int)
	for _, e := range data.Inventory {
		if e.Dropped() {
			continue
		}
		counts[e.ItemID]++
	}
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	scores := make(map[string]float64, len(data.Items))
	for _, it := range data.Items {
		if max > 0 {
			scores[it.ExternalID] = float64(counts[it.ExternalID]) / float64(max)
		} else {
			scores[it.ExternalID] = 0
		}
	}
	return json.Marshal(popularityModel{Scores: scores})
}

func (p *Popularity) Load(payload json.RawMessage) error {
	var m popularityModel
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("popularity payload: %w", err)
	}
	if m.Scores == nil {
		m.Scores = map[string]float64{}
	}
	p.model = m
	return nil
}

func (p *Popularity) Score(profile Profile) map[string]float64 {
	out := make(map[string]float64, len(p.model.Scores))
	for id, s := range p.model.Scores {
		out[id] = s
	}
	return out
}
