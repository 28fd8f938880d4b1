package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaheed/fresco/pkg/types"
)

// Memory is the in-process Store used by unit tests and by the API when no
// database is configured.
type Memory struct {
	mu        sync.RWMutex
	items     map[string]types.Item
	users     map[string]types.User
	inventory map[invKey]types.InventoryEntry
	locales   map[string]types.Locale
	modules   map[string]types.ModuleConfig
	snaps     map[string][]types.ModelSnapshot
}

type invKey struct{ user, item string }

func NewMemory() *Memory {
	return &Memory{
		items:     map[string]types.Item{},
		users:     map[string]types.User{},
		inventory: map[invKey]types.InventoryEntry{},
		locales:   map[string]types.Locale{},
		modules:   map[string]types.ModuleConfig{},
		snaps:     map[string][]types.ModelSnapshot{},
	}
}

func (m *Memory) Close(ctx context.Context) error { return nil }
func (m *Memory) Ping(ctx context.Context) error  { return nil }

func (m *Memory) UpsertItems(ctx context.Context, items []types.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if existing, ok := m.items[it.ExternalID]; ok {
			it.CreatedAt = existing.CreatedAt
		} else {
			it.CreatedAt = stamp(it.CreatedAt)
		}
		it.UpdatedAt = time.Now().UTC()
		m.items[it.ExternalID] = it
	}
	return nil
}

func (m *Memory) GetItem(ctx context.Context, externalID string) (types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[externalID]
	if !ok {
		return types.Item{}, ErrNotFound
	}
	return it, nil
}

func (m *Memory) ListItems(ctx context.Context, limit int) ([]types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountItems(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *Memory) UpsertUsers(ctx context.Context, users []types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		if existing, ok := m.users[u.ExternalID]; ok {
			u.CreatedAt = existing.CreatedAt
			if u.Locales == nil {
				u.Locales = existing.Locales
			}
		} else {
			u.CreatedAt = stamp(u.CreatedAt)
		}
		m.users[u.ExternalID] = u
	}
	return nil
}

func (m *Memory) GetUser(ctx context.Context, externalID string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[externalID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *Memory) PutInventory(ctx context.Context, entries []types.InventoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		k := invKey{user: e.UserID, item: e.ItemID}
		if existing, ok := m.inventory[k]; ok && sameDates(existing, e) {
			continue
		}
		m.inventory[k] = e
	}
	return nil
}

func (m *Memory) ListInventory(ctx context.Context, userID string, includeDropped bool) ([]types.InventoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []types.InventoryEntry{}
	for k, e := range m.inventory {
		if k.user != userID {
			continue
		}
		if e.Dropped() && !includeDropped {
			continue
		}
		out = append(out, e)
	}
	sortInventory(out)
	return out, nil
}

func (m *Memory) ListAllInventory(ctx context.Context) ([]types.InventoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.InventoryEntry, 0, len(m.inventory))
	for _, e := range m.inventory {
		out = append(out, e)
	}
	sortInventory(out)
	return out, nil
}

func (m *Memory) DropInventoryItem(ctx context.Context, userID, itemID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := invKey{user: userID, item: itemID}
	e, ok := m.inventory[k]
	if !ok || e.Dropped() {
		return ErrNotFound
	}
	at = stamp(at)
	e.DroppedAt = &at
	m.inventory[k] = e
	return nil
}

func (m *Memory) UpsertLocales(ctx context.Context, locales []types.Locale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range locales {
		m.locales[l.String()] = l
	}
	return nil
}

func (m *Memory) ListLocales(ctx context.Context) ([]types.Locale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.locales))
	for k := range m.locales {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.Locale, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.locales[k])
	}
	return out, nil
}

func (m *Memory) SaveModuleConfig(ctx context.Context, cfg types.ModuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[cfg.Identifier] = cfg
	return nil
}

func (m *Memory) GetModuleConfig(ctx context.Context, identifier string) (types.ModuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.modules[identifier]
	if !ok {
		return types.ModuleConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, snap types.ModelSnapshot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.snaps[snap.Identifier]
	snap.Version = len(versions) + 1
	snap.TrainedAt = stamp(snap.TrainedAt)
	m.snaps[snap.Identifier] = append(versions, snap)
	return snap.Version, nil
}

func (m *Memory) LatestSnapshot(ctx context.Context, identifier string) (types.ModelSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.snaps[identifier]
	if len(versions) == 0 {
		return types.ModelSnapshot{}, ErrNotFound
	}
	return versions[len(versions)-1], nil
}

func sameDates(a, b types.InventoryEntry) bool {
	if !a.AcquiredAt.Equal(b.AcquiredAt) {
		return false
	}
	if (a.DroppedAt == nil) != (b.DroppedAt == nil) {
		return false
	}
	if a.DroppedAt != nil && !a.DroppedAt.Equal(*b.DroppedAt) {
		return false
	}
	return true
}

func sortInventory(entries []types.InventoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UserID != entries[j].UserID {
			return entries[i].UserID < entries[j].UserID
		}
		if !entries[i].AcquiredAt.Equal(entries[j].AcquiredAt) {
			return entries[i].AcquiredAt.Before(entries[j].AcquiredAt)
		}
		return entries[i].ItemID < entries[j].ItemID
	})
}
