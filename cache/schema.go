package cache

// SQLiteSchema is the schema of the SQLite cache table.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS nodesets (
    cache_key        TEXT PRIMARY KEY,
    scope            TEXT NOT NULL,
    model_uri        TEXT NOT NULL,
    version          TEXT NOT NULL DEFAULT '',
    publication_date TEXT NOT NULL DEFAULT '',
    publication_ns   INTEGER NOT NULL DEFAULT 0,
    payload          BLOB NOT NULL,
    created_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_nodesets_model ON nodesets(model_uri, scope, publication_ns);
`
