package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
)

// SQLiteStore keeps profiles, items, lookups and units in a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store at path and seeds the builtin
// lookups.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed lookups: %w", err)
	}
	defer tx.Rollback()

	for _, l := range BuiltinLookups() {
		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("seed lookups: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO lookup_data_types (id, name, code, builtin, payload) VALUES (?, ?, ?, 1, ?)`,
			l.ID, l.Name, l.Code, string(payload),
		); err != nil {
			return fmt.Errorf("seed lookup %s: %w", l.Name, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CheckExisting implements profile.Store.
func (s *SQLiteStore) CheckExisting(ctx context.Context, key profile.ItemKey) (*profile.ProfileItem, error) {
	item, err := s.Item(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// Upsert implements profile.Store.
func (s *SQLiteStore) Upsert(ctx context.Context, item *profile.ProfileItem, updateExisting bool) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("upsert item: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM profile_items WHERE node_id = ? AND namespace = ?`,
		item.Key.NodeID, item.Key.Namespace,
	).Scan(&id)
	switch {
	case err == nil:
		if !updateExisting {
			return id, false, nil
		}
		stored := *item
		stored.ID = id
		payload, err := encodeItem(&stored)
		if err != nil {
			return "", false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile_items SET kind = ?, profile_id = ?, payload = ?, updated_at = datetime('now') WHERE id = ?`,
			string(item.Kind), item.ProfileID, string(payload), id,
		); err != nil {
			return "", false, fmt.Errorf("update item %s: %w", item.Key, err)
		}
		return id, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("find item %s: %w", item.Key, err)
	}

	stored := *item
	stored.ID = uuid.New().String()
	payload, err := encodeItem(&stored)
	if err != nil {
		return "", false, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profile_items (id, node_id, namespace, kind, profile_id, payload, seq)
		 VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM profile_items))`,
		stored.ID, item.Key.NodeID, item.Key.Namespace, string(item.Kind), item.ProfileID, string(payload),
	); err != nil {
		return "", false, fmt.Errorf("insert item %s: %w", item.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("insert item %s: %w", item.Key, err)
	}
	return stored.ID, true, nil
}

// GetDataTypeByName implements profile.Store. Builtin lookups win over
// custom ones with the same name.
func (s *SQLiteStore) GetDataTypeByName(ctx context.Context, name string) (*profile.LookupDataType, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM lookup_data_types WHERE name = ? ORDER BY builtin DESC LIMIT 1`, name,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find lookup %s: %w", name, err)
	}
	return decodeLookup(payload)
}

// GetOrCreateEngineeringUnit implements profile.Store.
func (s *SQLiteStore) GetOrCreateEngineeringUnit(ctx context.Context, unit profile.EngineeringUnit) (*profile.EngineeringUnit, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO engineering_units (id, namespace_uri, unit_id, display_name, description) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), unit.NamespaceURI, unit.UnitID, unit.DisplayName, unit.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("create engineering unit %d: %w", unit.UnitID, err)
	}

	var out profile.EngineeringUnit
	err = s.db.QueryRowContext(ctx,
		`SELECT id, namespace_uri, unit_id, display_name, description FROM engineering_units WHERE namespace_uri = ? AND unit_id = ?`,
		unit.NamespaceURI, unit.UnitID,
	).Scan(&out.ID, &out.NamespaceURI, &out.UnitID, &out.DisplayName, &out.Description)
	if err != nil {
		return nil, fmt.Errorf("read engineering unit %d: %w", unit.UnitID, err)
	}
	return &out, nil
}

// CreateCustomDataTypeLookup implements profile.Store.
func (s *SQLiteStore) CreateCustomDataTypeLookup(ctx context.Context, lookup profile.LookupDataType) (string, error) {
	lookup.ID = uuid.New().String()
	payload, err := json.Marshal(lookup)
	if err != nil {
		return "", fmt.Errorf("encode lookup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_data_types (id, name, code, builtin, payload) VALUES (?, ?, ?, 0, ?)`,
		lookup.ID, lookup.Name, lookup.Code, string(payload),
	); err != nil {
		return "", fmt.Errorf("insert lookup %s: %w", lookup.Name, err)
	}
	return lookup.ID, nil
}

// Lookup returns the lookup data type with the id.
func (s *SQLiteStore) Lookup(ctx context.Context, id string) (*profile.LookupDataType, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM lookup_data_types WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lookup %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read lookup %s: %w", id, err)
	}
	return decodeLookup(payload)
}

// GetProfileForNamespace implements profile.Store.
func (s *SQLiteStore) GetProfileForNamespace(ctx context.Context, uri string) (*profile.Profile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM profiles WHERE namespace = ? ORDER BY publication_date DESC LIMIT 1`, uri,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", uri, err)
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", uri, err)
	}
	return &p, nil
}

// UpsertProfile implements profile.Store.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	out := *p
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE namespace = ? AND version = ? AND tenant = ?`,
		p.Namespace, p.Version, p.Tenant,
	).Scan(&id)
	switch {
	case err == nil:
		out.ID = id
	case errors.Is(err, sql.ErrNoRows):
		out.ID = uuid.New().String()
	default:
		return nil, fmt.Errorf("find profile %s: %w", p.Namespace, err)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", p.Namespace, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, namespace, version, publication_date, tenant, payload) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET publication_date = excluded.publication_date, payload = excluded.payload`,
		out.ID, out.Namespace, out.Version, nodeset.FormatPublicationDate(out.PublicationDate), out.Tenant, string(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert profile %s: %w", p.Namespace, err)
	}
	return &out, nil
}

// ItemsForNamespace returns the stored items of a namespace in insertion
// order.
func (s *SQLiteStore) ItemsForNamespace(ctx context.Context, uri string) ([]*profile.ProfileItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM profile_items WHERE namespace = ? ORDER BY seq`, uri)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", uri, err)
	}
	defer rows.Close()

	var out []*profile.ProfileItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item, err := decodeItem([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Item returns the stored item with the key.
func (s *SQLiteStore) Item(ctx context.Context, key profile.ItemKey) (*profile.ProfileItem, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM profile_items WHERE node_id = ? AND namespace = ?`, key.NodeID, key.Namespace,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read item %s: %w", key, err)
	}
	return decodeItem([]byte(payload))
}

// ModelVersion returns the newest stored profile of a namespace.
func (s *SQLiteStore) ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error) {
	return profileVersion(ctx, s, uri)
}

func decodeLookup(payload string) (*profile.LookupDataType, error) {
	var l profile.LookupDataType
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	return &l, nil
}
