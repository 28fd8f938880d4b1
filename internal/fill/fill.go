// Package fill loads item and user dumps into the store. A dump is a tree of
// JSON files, one object per file; item objects and user objects are told
// apart by a marker field, so mixed trees load cleanly in two passes.
package fill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/metrics"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/pkg/types"
	"go.uber.org/zap"
)

// Kind selects which pass a load performs.
type Kind string

const (
	KindItems Kind = "items"
	KindUsers Kind = "users"
)

// Mozilla Marketplace daily dump endpoints.
const (
	mozillaDevBase  = "https://marketplace-dev-cdn.allizom.org/dumped-apps/tarballs"
	mozillaProdBase = "https://marketplace.cdn.mozilla.net/dumped-apps/tarballs"
)

// Mapping names the dump fields a load reads. The zero value is useless;
// start from DefaultMapping or MozillaMapping.
type Mapping struct {
	ItemFileIdentifier string // presence of this key marks an item object
	ItemField          string // item external ID
	ItemGenresField    string
	ItemLocalesField   string
	UserFileIdentifier string // presence of this key marks a user object
	UserField          string // user external ID
	UserItemsField     string
	UserItemIdentifier string
	UserItemAcquired   string
	UserItemDropped    string
	DateLayout         string
}

// DefaultMapping reads generic dumps.
func DefaultMapping() Mapping {
	return Mapping{
		ItemFileIdentifier: "item",
		ItemField:          "external_id",
		ItemGenresField:    "genres",
		ItemLocalesField:   "locales",
		UserFileIdentifier: "user",
		UserField:          "external_id",
		UserItemsField:     "items",
		UserItemIdentifier: "external_id",
		UserItemAcquired:   "acquired",
		UserItemDropped:    "dropped",
		DateLayout:         "2006-01-02T15:04:05",
	}
}

// MozillaMapping reads the Marketplace daily dumps.
func MozillaMapping() Mapping {
	return Mapping{
		ItemFileIdentifier: "app_type",
		ItemField:          "id",
		ItemGenresField:    "categories",
		ItemLocalesField:   "supported_locales",
		UserFileIdentifier: "user",
		UserField:          "user",
		UserItemsField:     "installed_apps",
		UserItemIdentifier: "id",
		UserItemAcquired:   "installed",
		UserItemDropped:    "dropped",
		DateLayout:         "2006-01-02T15:04:05",
	}
}

// MozillaURL returns the dump URL for the source ("dev" or "prod") and day.
func MozillaURL(source string, day time.Time) (string, error) {
	var base string
	switch source {
	case "dev":
		base = mozillaDevBase
	case "prod":
		base = mozillaProdBase
	default:
		return "", fmt.Errorf("unknown mozilla source %q", source)
	}
	return base + "/" + day.Format("2006-01-02") + ".tgz", nil
}

// ResolveDate turns a CLI date argument into the dump day: "today",
// "yesterday" (also the default for an empty argument) or an explicit
// YYYY-MM-DD date.
func ResolveDate(arg string, now time.Time) (time.Time, error) {
	switch arg {
	case "today":
		return now, nil
	case "", "yesterday":
		return now.AddDate(0, 0, -1), nil
	default:
		t, err := time.Parse("2006-01-02", arg)
		if err != nil {
			return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		return t, nil
	}
}

// Stats summarises one load run. Skipped counts objects, inventory rows and
// locales that were dropped with a warning.
type Stats struct {
	Files     int
	Items     int
	Users     int
	Inventory int
	Skipped   int
}

// Loader runs dump loads against a store. Every run carries a job ID in its
// log fields so interleaved runs can be told apart.
type Loader struct {
	st      store.Store
	mapping Mapping
	client  *http.Client
	log     *zap.Logger
	jobID   string
}

// New builds a Loader with a fresh job ID.
func New(st store.Store, mapping Mapping) *Loader {
	jobID := uuid.NewString()
	return &Loader{
		st:      st,
		mapping: mapping,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     logging.L.With(zap.String("fill_job", jobID)),
		jobID:   jobID,
	}
}

// JobID returns the run identifier carried in this loader's log fields.
func (l *Loader) JobID() string { return l.jobID }

// LoadDir walks dir and loads every .json file found, one object per file.
func (l *Loader) LoadDir(ctx context.Context, kind Kind, dir string) (Stats, error) {
	objects, err := l.readTree(dir)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Files: len(objects)}
	switch kind {
	case KindItems:
		err = l.fillItems(ctx, objects, &stats)
	case KindUsers:
		err = l.fillUsers(ctx, objects, &stats)
	default:
		return Stats{}, fmt.Errorf("unknown load kind %q", kind)
	}
	if err != nil {
		return stats, err
	}
	metrics.FillObjectsTotal.WithLabelValues(string(kind)).Add(float64(stats.Items + stats.Users + stats.Inventory))
	l.log.Info("fill_done",
		zap.String("kind", string(kind)),
		zap.Int("files", stats.Files),
		zap.Int("items", stats.Items),
		zap.Int("users", stats.Users),
		zap.Int("inventory", stats.Inventory),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// LoadURL downloads a .tgz dump, extracts its JSON members into a temp dir,
// loads that tree and removes the temp dir afterwards.
func (l *Loader) LoadURL(ctx context.Context, kind Kind, url string) (Stats, error) {
	tmpDir, err := l.fetchArchive(ctx, url)
	if err != nil {
		return Stats{}, err
	}
	defer os.RemoveAll(tmpDir)
	return l.LoadDir(ctx, kind, tmpDir)
}

func (l *Loader) readTree(dir string) ([]map[string]any, error) {
	var objects []map[string]any
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			l.log.Warn("skipping unparsable dump file", zap.String("path", path), zap.Error(err))
			return nil
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (l *Loader) fillItems(ctx context.Context, objects []map[string]any, stats *Stats) error {
	byID := make(map[string]types.Item)
	localeSet := make(map[string]types.Locale)
	for _, obj := range objects {
		if _, ok := obj[l.mapping.ItemFileIdentifier]; !ok {
			continue
		}
		eid := stringify(obj[l.mapping.ItemField])
		if eid == "" {
			l.log.Warn("item object without identifier", zap.String("field", l.mapping.ItemField))
			stats.Skipped++
			continue
		}
		item := types.Item{
			ExternalID: eid,
			Name:       itemName(obj),
			Genres:     stringList(obj[l.mapping.ItemGenresField]),
		}
		for _, raw := range stringList(obj[l.mapping.ItemLocalesField]) {
			loc, err := types.ParseLocale(raw)
			if err != nil {
				l.log.Warn("dropped locale", zap.String("locale", raw), zap.String("item", eid))
				stats.Skipped++
				continue
			}
			item.Locales = append(item.Locales, loc.String())
			localeSet[loc.String()] = loc
		}
		byID[eid] = item
	}
	if len(byID) == 0 {
		return nil
	}
	items := make([]types.Item, 0, len(byID))
	for _, it := range byID {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ExternalID < items[j].ExternalID })
	if err := l.st.UpsertItems(ctx, items); err != nil {
		return fmt.Errorf("upsert items: %w", err)
	}
	if len(localeSet) > 0 {
		locales := make([]types.Locale, 0, len(localeSet))
		for _, loc := range localeSet {
			locales = append(locales, loc)
		}
		sort.Slice(locales, func(i, j int) bool { return locales[i].String() < locales[j].String() })
		if err := l.st.UpsertLocales(ctx, locales); err != nil {
			return fmt.Errorf("upsert locales: %w", err)
		}
	}
	stats.Items = len(items)
	return nil
}

func (l *Loader) fillUsers(ctx context.Context, objects []map[string]any, stats *Stats) error {
	known, err := l.knownItems(ctx)
	if err != nil {
		return err
	}
	users := make(map[string]types.User)
	inventory := make(map[[2]string]types.InventoryEntry)
	for _, obj := range objects {
		if _, ok := obj[l.mapping.UserFileIdentifier]; !ok {
			continue
		}
		eid := stringify(obj[l.mapping.UserField])
		if eid == "" {
			l.log.Warn("user object without identifier", zap.String("field", l.mapping.UserField))
			stats.Skipped++
			continue
		}
		users[eid] = types.User{ExternalID: eid}
		entries, _ := obj[l.mapping.UserItemsField].([]any)
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				stats.Skipped++
				continue
			}
			itemID := stringify(entry[l.mapping.UserItemIdentifier])
			if itemID == "" || !known[itemID] {
				l.log.Warn("inventory references unknown item",
					zap.String("user", eid), zap.String("item", itemID))
				stats.Skipped++
				continue
			}
			acquired, err := l.parseDate(entry[l.mapping.UserItemAcquired])
			if err != nil {
				l.log.Warn("bad acquisition date",
					zap.String("user", eid), zap.String("item", itemID), zap.Error(err))
				stats.Skipped++
				continue
			}
			inv := types.InventoryEntry{UserID: eid, ItemID: itemID, AcquiredAt: acquired}
			if rawDropped, ok := entry[l.mapping.UserItemDropped]; ok {
				dropped, err := l.parseDate(rawDropped)
				if err != nil {
					l.log.Warn("bad dropped date",
						zap.String("user", eid), zap.String("item", itemID), zap.Error(err))
					stats.Skipped++
					continue
				}
				inv.DroppedAt = &dropped
			}
			inventory[[2]string{eid, itemID}] = inv
		}
	}
	if len(users) == 0 {
		return nil
	}
	userList := make([]types.User, 0, len(users))
	for _, u := range users {
		userList = append(userList, u)
	}
	sort.Slice(userList, func(i, j int) bool { return userList[i].ExternalID < userList[j].ExternalID })
	if err := l.st.UpsertUsers(ctx, userList); err != nil {
		return fmt.Errorf("upsert users: %w", err)
	}
	if len(inventory) > 0 {
		invList := make([]types.InventoryEntry, 0, len(inventory))
		for _, e := range inventory {
			invList = append(invList, e)
		}
		sort.Slice(invList, func(i, j int) bool {
			if invList[i].UserID != invList[j].UserID {
				return invList[i].UserID < invList[j].UserID
			}
			return invList[i].ItemID < invList[j].ItemID
		})
		if err := l.st.PutInventory(ctx, invList); err != nil {
			return fmt.Errorf("put inventory: %w", err)
		}
	}
	stats.Users = len(userList)
	stats.Inventory = len(inventory)
	return nil
}

func (l *Loader) knownItems(ctx context.Context) (map[string]bool, error) {
	items, err := l.st.ListItems(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ExternalID] = true
	}
	return known, nil
}

func (l *Loader) parseDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	t, err := time.Parse(l.mapping.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// itemName resolves the display name: a localized name map indexed by the
// dump's default locale, a plain string, or "NO NAME".
func itemName(obj map[string]any) string {
	switch name := obj["name"].(type) {
	case map[string]any:
		if dl, ok := obj["default_locale"].(string); ok {
			if s, ok := name[dl].(string); ok && s != "" {
				return s
			}
		}
	case string:
		if name != "" {
			return name
		}
	}
	return "NO NAME"
}

// stringify renders a dump identifier, which may arrive as a JSON string or
// number, in canonical string form.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// stringList accepts a single string or a list of strings; other shapes
// yield nil.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
