package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// SQLiteBackend keeps every stored publication as a row; lookups return
// the newest one.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the cache database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Ping checks the database connection.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Newest implements Backend.
func (b *SQLiteBackend) Newest(ctx context.Context, uri string, scopes []Scope) (*Entry, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	args := []any{uri}
	marks := make([]string, len(scopes))
	for i, s := range scopes {
		marks[i] = "?"
		args = append(args, s.Tenant)
	}

	row := b.db.QueryRowContext(ctx,
		`SELECT cache_key, scope, version, publication_date FROM nodesets
		 WHERE model_uri = ? AND scope IN (`+strings.Join(marks, ", ")+`)
		 ORDER BY publication_ns DESC, created_at DESC LIMIT 1`,
		args...,
	)

	var key, tenant, version, date string
	if err := row.Scan(&key, &tenant, &version, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query newest nodeset: %w", err)
	}
	pub, err := nodeset.ParsePublicationDate(date)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Identity: model.ModelIdentity{ModelURI: uri, Version: version, PublicationDate: pub, CacheKey: key},
		Scope:    Scope{Tenant: tenant},
		Key:      key,
	}, nil
}

// Put implements Backend.
func (b *SQLiteBackend) Put(ctx context.Context, id model.ModelIdentity, scope Scope, data []byte) (string, error) {
	key := uuid.New().String()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO nodesets (cache_key, scope, model_uri, version, publication_date, publication_ns, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, scope.Tenant, id.ModelURI, id.Version,
		nodeset.FormatPublicationDateExact(id.PublicationDate), dateNanos(id.PublicationDate), data,
	)
	if err != nil {
		return "", fmt.Errorf("insert nodeset: %w", err)
	}
	return key, nil
}

// Read implements Backend.
func (b *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM nodesets WHERE cache_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read nodeset: %w", err)
	}
	return data, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM nodesets WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete nodeset: %w", err)
	}
	return nil
}

// Flush implements Backend by checkpointing the write-ahead log.
func (b *SQLiteBackend) Flush(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint cache db: %w", err)
	}
	return nil
}
