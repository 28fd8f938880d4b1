package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/vaheed/fresco/pkg/types"
)

// maxBatchRows caps multi-row statements. Dataset loads arrive in dumps of
// tens of thousands of rows; chunking keeps each statement well under the
// driver's bind parameter limit.
const maxBatchRows = 950

type postgresStore struct {
	db *sql.DB
}

// NewPostgres creates a Store backed by PostgreSQL and applies pending
// migrations.
func NewPostgres(ctx context.Context, dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	st := &postgresStore{db: db}
	if err := st.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (p *postgresStore) init(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return err
	}
	for _, m := range migrations {
		applied, err := p.isApplied(ctx, m.ID)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := p.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) Close(ctx context.Context) error {
	return p.db.Close()
}

func (p *postgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func marshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalPayload(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func handleSQLError(err error) error {
	if err == nil {
		return nil
	}
	// pgx driver returns plain errors; string matching keeps deps small.
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	if containsAny(msg, "unique constraint", "duplicate key") {
		return ErrConflict
	}
	return err
}

func containsAny(msg string, tokens ...string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

func (p *postgresStore) UpsertItems(ctx context.Context, items []types.Item) error {
	for start := 0; start < len(items); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(items) {
			end = len(items)
		}
		if err := p.upsertItemChunk(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) upsertItemChunk(ctx context.Context, items []types.Item) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*4)
	for i, it := range items {
		payload, err := marshalPayload(it)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		args = append(args, it.ExternalID, payload, stamp(it.CreatedAt), now)
	}
	query := `
		INSERT INTO items (external_id, payload, created_at, updated_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (external_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(ctx, query, args...)
	return handleSQLError(err)
}

func (p *postgresStore) GetItem(ctx context.Context, externalID string) (types.Item, error) {
	var (
		raw                  []byte
		createdAt, updatedAt time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, created_at, updated_at FROM items WHERE external_id=$1`, externalID).
		Scan(&raw, &createdAt, &updatedAt)
	if err != nil {
		return types.Item{}, handleSQLError(err)
	}
	var it types.Item
	if err := unmarshalPayload(raw, &it); err != nil {
		return types.Item{}, err
	}
	it.CreatedAt, it.UpdatedAt = createdAt, updatedAt
	return it, nil
}

func (p *postgresStore) ListItems(ctx context.Context, limit int) ([]types.Item, error) {
	query := `SELECT payload, created_at, updated_at FROM items ORDER BY external_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.Item{}
	for rows.Next() {
		var (
			raw                  []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var it types.Item
		if err := unmarshalPayload(raw, &it); err != nil {
			return nil, err
		}
		it.CreatedAt, it.UpdatedAt = createdAt, updatedAt
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *postgresStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&n)
	return n, err
}

func (p *postgresStore) UpsertUsers(ctx context.Context, users []types.User) error {
	for start := 0; start < len(users); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(users) {
			end = len(users)
		}
		if err := p.upsertUserChunk(ctx, users[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) upsertUserChunk(ctx context.Context, users []types.User) error {
	if len(users) == 0 {
		return nil
	}
	values := make([]string, 0, len(users))
	args := make([]any, 0, len(users)*3)
	for i, u := range users {
		payload, err := marshalPayload(u)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
		args = append(args, u.ExternalID, payload, stamp(u.CreatedAt))
	}
	query := `
		INSERT INTO users (external_id, payload, created_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (external_id)
		DO UPDATE SET payload = EXCLUDED.payload
	`
	_, err := p.db.ExecContext(ctx, query, args...)
	return handleSQLError(err)
}

func (p *postgresStore) GetUser(ctx context.Context, externalID string) (types.User, error) {
	var (
		raw       []byte
		createdAt time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM users WHERE external_id=$1`, externalID).
		Scan(&raw, &createdAt)
	if err != nil {
		return types.User{}, handleSQLError(err)
	}
	var u types.User
	if err := unmarshalPayload(raw, &u); err != nil {
		return types.User{}, err
	}
	u.CreatedAt = createdAt
	return u, nil
}

func (p *postgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func (p *postgresStore) PutInventory(ctx context.Context, entries []types.InventoryEntry) error {
	for start := 0; start < len(entries); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(entries) {
			end = len(entries)
		}
		if err := p.putInventoryChunk(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) putInventoryChunk(ctx context.Context, entries []types.InventoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*4)
	for i, e := range entries {
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		args = append(args, e.UserID, e.ItemID, e.AcquiredAt.UTC(), e.DroppedAt)
	}
	// Existing rows are rewritten only when a date actually changed.
	query := `
		INSERT INTO inventory (user_id, item_id, acquired_at, dropped_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET acquired_at = EXCLUDED.acquired_at, dropped_at = EXCLUDED.dropped_at
		WHERE inventory.acquired_at IS DISTINCT FROM EXCLUDED.acquired_at
		   OR inventory.dropped_at IS DISTINCT FROM EXCLUDED.dropped_at
	`
	_, err := p.db.ExecContext(ctx, query, args...)
	return handleSQLError(err)
}

func (p *postgresStore) ListInventory(ctx context.Context, userID string, includeDropped bool) ([]types.InventoryEntry, error) {
	query := `SELECT user_id, item_id, acquired_at, dropped_at FROM inventory WHERE user_id=$1`
	if !includeDropped {
		query += ` AND dropped_at IS NULL`
	}
	query += ` ORDER BY acquired_at, item_id`
	return p.scanInventory(ctx, query, userID)
}

func (p *postgresStore) ListAllInventory(ctx context.Context) ([]types.InventoryEntry, error) {
	return p.scanInventory(ctx, `SELECT user_id, item_id, acquired_at, dropped_at FROM inventory ORDER BY user_id, acquired_at, item_id`)
}

func (p *postgresStore) scanInventory(ctx context.Context, query string, args ...any) ([]types.InventoryEntry, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.InventoryEntry{}
	for rows.Next() {
		var (
			e       types.InventoryEntry
			dropped sql.NullTime
		)
		if err := rows.Scan(&e.UserID, &e.ItemID, &e.AcquiredAt, &dropped); err != nil {
			return nil, err
		}
		if dropped.Valid {
			t := dropped.Time
			e.DroppedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *postgresStore) DropInventoryItem(ctx context.Context, userID, itemID string, at time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE inventory SET dropped_at=$3 WHERE user_id=$1 AND item_id=$2 AND dropped_at IS NULL`,
		userID, itemID, stamp(at))
	if err != nil {
		return handleSQLError(err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgresStore) UpsertLocales(ctx context.Context, locales []types.Locale) error {
	for start := 0; start < len(locales); start += maxBatchRows {
		end := start + maxBatchRows
		if end > len(locales) {
			end = len(locales)
		}
		if err := p.upsertLocaleChunk(ctx, locales[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) upsertLocaleChunk(ctx context.Context, locales []types.Locale) error {
	if len(locales) == 0 {
		return nil
	}
	values := make([]string, 0, len(locales))
	args := make([]any, 0, len(locales)*2)
	for i, l := range locales {
		values = append(values, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, l.Language, l.Country)
	}
	query := `
		INSERT INTO locales (language_code, country_code)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (language_code, country_code) DO NOTHING
	`
	_, err := p.db.ExecContext(ctx, query, args...)
	return handleSQLError(err)
}

func (p *postgresStore) ListLocales(ctx context.Context) ([]types.Locale, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT language_code, country_code FROM locales ORDER BY language_code, country_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.Locale{}
	for rows.Next() {
		var l types.Locale
		if err := rows.Scan(&l.Language, &l.Country); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *postgresStore) SaveModuleConfig(ctx context.Context, cfg types.ModuleConfig) error {
	payload, err := marshalPayload(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO modules (identifier, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identifier)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, cfg.Identifier, payload, time.Now().UTC())
	return handleSQLError(err)
}

func (p *postgresStore) GetModuleConfig(ctx context.Context, identifier string) (types.ModuleConfig, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM modules WHERE identifier=$1`, identifier).Scan(&raw)
	if err != nil {
		return types.ModuleConfig{}, handleSQLError(err)
	}
	var cfg types.ModuleConfig
	if err := unmarshalPayload(raw, &cfg); err != nil {
		return types.ModuleConfig{}, err
	}
	return cfg, nil
}

func (p *postgresStore) SaveSnapshot(ctx context.Context, snap types.ModelSnapshot) (int, error) {
	var version int
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO model_snapshots (identifier, version, payload, trained_at)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM model_snapshots WHERE identifier = $1), $2, $3)
		RETURNING version
	`, snap.Identifier, []byte(snap.Payload), stamp(snap.TrainedAt)).Scan(&version)
	if err != nil {
		return 0, handleSQLError(err)
	}
	return version, nil
}

func (p *postgresStore) LatestSnapshot(ctx context.Context, identifier string) (types.ModelSnapshot, error) {
	var (
		snap types.ModelSnapshot
		raw  []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT identifier, version, payload, trained_at FROM model_snapshots
		WHERE identifier=$1 ORDER BY version DESC LIMIT 1
	`, identifier).Scan(&snap.Identifier, &snap.Version, &raw, &snap.TrainedAt)
	if err != nil {
		return types.ModelSnapshot{}, handleSQLError(err)
	}
	snap.Payload = json.RawMessage(raw)
	return snap, nil
}

type migration struct {
	ID  string
	SQL string
}

var migrations = []migration{
	{
		ID: "0001_init",
		SQL: `
CREATE TABLE IF NOT EXISTS items (
	external_id TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	external_id TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS inventory (
	user_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	dropped_at TIMESTAMPTZ,
	PRIMARY KEY (user_id, item_id)
);
CREATE INDEX IF NOT EXISTS inventory_item_idx ON inventory (item_id);
CREATE TABLE IF NOT EXISTS locales (
	language_code TEXT NOT NULL,
	country_code TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (language_code, country_code)
);
CREATE TABLE IF NOT EXISTS modules (
	identifier TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS model_snapshots (
	identifier TEXT NOT NULL,
	version INT NOT NULL,
	payload JSONB NOT NULL,
	trained_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (identifier, version)
);
`,
	},
}

func (p *postgresStore) isApplied(ctx context.Context, id string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE id=$1`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *postgresStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id, applied_at) VALUES ($1, $2)`, m.ID, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}
	return tx.Commit()
}

// Reset drops all data while keeping the schema. The integration suite calls
// it between runs unless REUSE_DB=1.
func (p *postgresStore) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE items, users, inventory, locales, modules, model_snapshots`)
	return err
}
