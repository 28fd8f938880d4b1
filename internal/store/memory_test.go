package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vaheed/fresco/pkg/types"
)

func TestMemoryItemsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	items := []types.Item{
		{ExternalID: "10", Name: "Ten", Genres: []string{"games"}},
		{ExternalID: "2", Name: "Two", Locales: []string{"en", "pt-br"}},
	}
	if err := m.UpsertItems(ctx, items); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	it, err := m.GetItem(ctx, "10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if it.Name != "Ten" || it.CreatedAt.IsZero() {
		t.Fatalf("unexpected item %+v", it)
	}
	created := it.CreatedAt

	// Upsert again with a new name: created_at survives, name changes.
	if err := m.UpsertItems(ctx, []types.Item{{ExternalID: "10", Name: "Ten v2"}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	it, err = m.GetItem(ctx, "10")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if it.Name != "Ten v2" || !it.CreatedAt.Equal(created) {
		t.Fatalf("upsert lost fields: %+v", it)
	}

	list, err := m.ListItems(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ExternalID != "10" || list[1].ExternalID != "2" {
		t.Fatalf("unexpected order %+v", list)
	}
	if n, _ := m.CountItems(ctx); n != 2 {
		t.Fatalf("count = %d", n)
	}
	if _, err := m.GetItem(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryInventoryDateDiff(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	acquired := time.Date(2014, 5, 1, 12, 0, 0, 0, time.UTC)

	entry := types.InventoryEntry{UserID: "aa", ItemID: "1", AcquiredAt: acquired}
	if err := m.PutInventory(ctx, []types.InventoryEntry{entry}); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Same dates: no rewrite.
	if err := m.PutInventory(ctx, []types.InventoryEntry{entry}); err != nil {
		t.Fatalf("idempotent put: %v", err)
	}
	got, err := m.ListInventory(ctx, "aa", true)
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v %v", got, err)
	}

	// Changed acquisition date: rewritten.
	entry.AcquiredAt = acquired.Add(24 * time.Hour)
	if err := m.PutInventory(ctx, []types.InventoryEntry{entry}); err != nil {
		t.Fatalf("update put: %v", err)
	}
	got, _ = m.ListInventory(ctx, "aa", true)
	if !got[0].AcquiredAt.Equal(entry.AcquiredAt) {
		t.Fatalf("date not updated: %+v", got[0])
	}
}

func TestMemoryDropInventoryItem(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	acquired := time.Date(2014, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []types.InventoryEntry{
		{UserID: "aa", ItemID: "1", AcquiredAt: acquired},
		{UserID: "aa", ItemID: "2", AcquiredAt: acquired.Add(time.Hour)},
	}
	if err := m.PutInventory(ctx, entries); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.DropInventoryItem(ctx, "aa", "1", time.Now()); err != nil {
		t.Fatalf("drop: %v", err)
	}
	active, _ := m.ListInventory(ctx, "aa", false)
	if len(active) != 1 || active[0].ItemID != "2" {
		t.Fatalf("active inventory %+v", active)
	}
	all, _ := m.ListInventory(ctx, "aa", true)
	if len(all) != 2 {
		t.Fatalf("full inventory %+v", all)
	}
	// Dropping twice is a not-found.
	if err := m.DropInventoryItem(ctx, "aa", "1", time.Now()); err != ErrNotFound {
		t.Fatalf("double drop: %v", err)
	}
	if err := m.DropInventoryItem(ctx, "aa", "9", time.Now()); err != ErrNotFound {
		t.Fatalf("drop unknown: %v", err)
	}
}

func TestMemorySnapshots(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.LatestSnapshot(ctx, "popularity"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	v1, err := m.SaveSnapshot(ctx, types.ModelSnapshot{Identifier: "popularity", Payload: json.RawMessage(`{"a":1}`)})
	if err != nil || v1 != 1 {
		t.Fatalf("save v1: %d %v", v1, err)
	}
	v2, err := m.SaveSnapshot(ctx, types.ModelSnapshot{Identifier: "popularity", Payload: json.RawMessage(`{"a":2}`)})
	if err != nil || v2 != 2 {
		t.Fatalf("save v2: %d %v", v2, err)
	}
	snap, err := m.LatestSnapshot(ctx, "popularity")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap.Version != 2 || string(snap.Payload) != `{"a":2}` {
		t.Fatalf("latest snapshot %+v", snap)
	}
}

func TestMemoryLocalesAndModules(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	locales := []types.Locale{{Language: "pt", Country: "br"}, {Language: "en"}, {Language: "pt", Country: "br"}}
	if err := m.UpsertLocales(ctx, locales); err != nil {
		t.Fatalf("locales: %v", err)
	}
	got, _ := m.ListLocales(ctx)
	if len(got) != 2 || got[0].String() != "en" || got[1].String() != "pt-br" {
		t.Fatalf("locales %+v", got)
	}

	cfg := types.ModuleConfig{
		Identifier: "default",
		Predictors: []types.PredictorConfig{{Identifier: "popularity", Weight: 1}},
	}
	if err := m.SaveModuleConfig(ctx, cfg); err != nil {
		t.Fatalf("save module: %v", err)
	}
	back, err := m.GetModuleConfig(ctx, "default")
	if err != nil || back.Identifier != "default" || len(back.Predictors) != 1 {
		t.Fatalf("module %+v %v", back, err)
	}
}
