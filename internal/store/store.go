package store

import (
	"context"
	"errors"
	"time"

	"github.com/vaheed/fresco/pkg/types"
)

// Store defines the persistence boundary for the recommendation service.
// Bulk methods are idempotent upserts because dataset loads re-run daily
// over overlapping dumps.
type Store interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	// Items
	UpsertItems(ctx context.Context, items []types.Item) error
	GetItem(ctx context.Context, externalID string) (types.Item, error)
	ListItems(ctx context.Context, limit int) ([]types.Item, error)
	CountItems(ctx context.Context) (int, error)

	// Users
	UpsertUsers(ctx context.Context, users []types.User) error
	GetUser(ctx context.Context, externalID string) (types.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Inventory. PutInventory rewrites an existing (user,item) row only when
	// its acquisition or dropped date differs from the stored one.
	PutInventory(ctx context.Context, entries []types.InventoryEntry) error
	ListInventory(ctx context.Context, userID string, includeDropped bool) ([]types.InventoryEntry, error)
	ListAllInventory(ctx context.Context) ([]types.InventoryEntry, error)
	DropInventoryItem(ctx context.Context, userID, itemID string, at time.Time) error

	// Locales
	UpsertLocales(ctx context.Context, locales []types.Locale) error
	ListLocales(ctx context.Context) ([]types.Locale, error)

	// Module configuration
	SaveModuleConfig(ctx context.Context, cfg types.ModuleConfig) error
	GetModuleConfig(ctx context.Context, identifier string) (types.ModuleConfig, error)

	// Trained model snapshots. LatestSnapshot returns the highest version
	// for the identifier.
	SaveSnapshot(ctx context.Context, snap types.ModelSnapshot) (int, error)
	LatestSnapshot(ctx context.Context, identifier string) (types.ModelSnapshot, error)
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Helper to stamp time fields for idempotent creates
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
