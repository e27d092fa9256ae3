package store

// SQLiteSchema is the schema of the SQLite store.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id               TEXT PRIMARY KEY,
    namespace        TEXT NOT NULL,
    version          TEXT NOT NULL DEFAULT '',
    publication_date TEXT NOT NULL DEFAULT '',
    tenant           TEXT NOT NULL DEFAULT '',
    payload          TEXT NOT NULL,
    UNIQUE (namespace, version, tenant)
);

CREATE TABLE IF NOT EXISTS profile_items (
    id         TEXT PRIMARY KEY,
    node_id    TEXT NOT NULL,
    namespace  TEXT NOT NULL,
    kind       TEXT NOT NULL,
    profile_id TEXT NOT NULL DEFAULT '',
    payload    TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (node_id, namespace)
);

CREATE INDEX IF NOT EXISTS idx_profile_items_namespace ON profile_items(namespace, seq);

CREATE TABLE IF NOT EXISTS lookup_data_types (
    id      TEXT PRIMARY KEY,
    name    TEXT NOT NULL,
    code    TEXT NOT NULL,
    builtin INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lookup_data_types_name ON lookup_data_types(name, builtin);

CREATE TABLE IF NOT EXISTS engineering_units (
    id            TEXT PRIMARY KEY,
    namespace_uri TEXT NOT NULL,
    unit_id       INTEGER NOT NULL,
    display_name  TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    UNIQUE (namespace_uri, unit_id)
);
`
