package types

import (
	"encoding/json"
	"time"
)

// Item is a recommendable catalog entry. External IDs come from the source
// dump and are treated as opaque strings.
type Item struct {
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Genres     []string  `json:"genres,omitempty"`
	Locales    []string  `json:"locales,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// User is a consumer of recommendations. Clients send pre-hashed identifiers,
// so a user record carries no personal data beyond its locales.
type User struct {
	ExternalID string    `json:"external_id"`
	Locales    []string  `json:"locales,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InventoryEntry records that a user acquired an item. An entry with
// DroppedAt set means the item was owned and later removed; dropped entries
// stay in the store because the predictors train on them.
type InventoryEntry struct {
	UserID     string     `json:"user_id"`
	ItemID     string     `json:"item_id"`
	AcquiredAt time.Time  `json:"acquired_at"`
	DroppedAt  *time.Time `json:"dropped_at,omitempty"`
}

// Dropped reports whether the entry has been removed from the user's
// active inventory.
func (e InventoryEntry) Dropped() bool { return e.DroppedAt != nil }

// Locale is a language/country pair. Codes are at most two characters and
// always lowercase; Country may be empty.
type Locale struct {
	Language string `json:"language"`
	Country  string `json:"country,omitempty"`
}

// String renders the canonical form: "xx" or "xx-yy".
func (l Locale) String() string {
	if l.Country == "" {
		return l.Language
	}
	return l.Language + "-" + l.Country
}

// PredictorConfig names a predictor and the weight its scores carry in the
// module aggregation.
type PredictorConfig struct {
	Identifier string  `json:"identifier"`
	Weight     float64 `json:"weight"`
}

// ModuleConfig holds the recommendation pipeline configuration: which
// predictors feed the aggregation and which filters and rerankers run on the
// aggregated scores, in order.
type ModuleConfig struct {
	Identifier string            `json:"identifier"`
	Predictors []PredictorConfig `json:"predictors"`
	Filters    []string          `json:"filters,omitempty"`
	Rerankers  []string          `json:"rerankers,omitempty"`
}

// ModelSnapshot is a trained predictor model persisted by the store. Payload
// is predictor-specific JSON.
type ModelSnapshot struct {
	Identifier string          `json:"identifier"`
	Version    int             `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	TrainedAt  time.Time       `json:"trained_at"`
}

// Recommendation is the recommend endpoint response body.
type Recommendation struct {
	User            string   `json:"user"`
	Recommendations []string `json:"recommendations"`
}
