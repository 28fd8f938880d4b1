// Package engine implements the recommendation pipeline. Predictors score
// the catalog from trained models, filters remove items the user must not
// see and rerankers reorder the final window. The pipeline layout comes from
// a stored module configuration so deployments can reweight or disable
// stages without a rebuild.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vaheed/fresco/pkg/types"
)

// Identifiers accepted in module configurations.
const (
	PredictorPopularity   = "popularity"
	PredictorCooccurrence = "cooccurrence"
	FilterOwned           = "filter/owned"
	FilterLocale          = "filter/locale"
	RerankGenreDiversity  = "rerank/genre-diversity"
)

// DefaultModuleID is the module configuration the API serves from.
const DefaultModuleID = "default"

// TrainingData is the corpus predictors fit on. Dropped inventory entries
// are included; each predictor decides how to treat them.
type TrainingData struct {
	Items     []types.Item
	Inventory []types.InventoryEntry
}

// Profile is the serve-time view of one user: the stored record plus the
// external IDs of the items currently in the active inventory.
type Profile struct {
	User  types.User
	Owned []string
}

// Predictor assigns scores to catalog items for a user. Implementations are
// fitted offline via Train and restored from a snapshot payload via Load
// before any Score call.
type Predictor interface {
	Identifier() string
	Train(ctx context.Context, data TrainingData) (json.RawMessage, error)
	Load(payload json.RawMessage) error
	Score(p Profile) map[string]float64
}

// NewPredictor returns a fresh, unloaded predictor for the identifier.
func NewPredictor(identifier string) (Predictor, error) {
	switch identifier {
	case PredictorPopularity:
		return &Popularity{}, nil
	case PredictorCooccurrence:
		return &Cooccurrence{}, nil
	default:
		return nil, fmt.Errorf("unknown predictor %q", identifier)
	}
}

// Filter removes candidates from the aggregated score map in place.
type Filter func(p Profile, catalog map[string]types.Item, scores map[string]float64)

func newFilter(identifier string) (Filter, error) {
	switch identifier {
	case FilterOwned:
		return filterOwned, nil
	case FilterLocale:
		return filterLocale, nil
	default:
		return nil, fmt.Errorf("unknown filter %q", identifier)
	}
}

// Reranker reorders an already ranked candidate window.
type Reranker func(p Profile, catalog map[string]types.Item, ranked []string) []string

func newReranker(identifier string) (Reranker, error) {
	switch identifier {
	case RerankGenreDiversity:
		return rerankGenreDiversity, nil
	default:
		return nil, fmt.Errorf("unknown reranker %q", identifier)
	}
}

// ValidateConfig checks a module configuration without building it: every
// named stage must exist and predictor weights must be positive.
func ValidateConfig(cfg types.ModuleConfig) error {
	if strings.TrimSpace(cfg.Identifier) == "" {
		return errors.New("module identifier is required")
	}
	if len(cfg.Predictors) == 0 {
		return errors.New("module requires at least one predictor")
	}
	for _, pc := range cfg.Predictors {
		if _, err := NewPredictor(pc.Identifier); err != nil {
			return err
		}
		if pc.Weight <= 0 {
			return fmt.Errorf("predictor %q weight must be positive", pc.Identifier)
		}
	}
	for _, name := range cfg.Filters {
		if _, err := newFilter(name); err != nil {
			return err
		}
	}
	for _, name := range cfg.Rerankers {
		if _, err := newReranker(name); err != nil {
			return err
		}
	}
	return nil
}
