package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 2

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- One row per parsed log written by the export command.
CREATE TABLE IF NOT EXISTS exports (
	id            TEXT    PRIMARY KEY,
	source_path   TEXT    NOT NULL,
	created_at    TEXT    NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exports_source ON exports(source_path);

-- Interchange records: one row per message, nullable columns mirror the
-- optional message fields. Structured fields are stored as JSON text.
CREATE TABLE IF NOT EXISTS messages (
	export_id   TEXT    NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	timestamp   TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	role        TEXT,
	content     TEXT,
	call_id     TEXT,
	name        TEXT,
	arguments   TEXT,
	output      TEXT,
	metadata    TEXT,
	source_line INTEGER,
	PRIMARY KEY (export_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
CREATE INDEX IF NOT EXISTS idx_messages_name ON messages(name);

-- Key-value store for tool metadata (schema version, etc).
CREATE TABLE IF NOT EXISTS store_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,

	2: `
-- Parse statistics for each export, kept as the JSON rendering of Stats.
ALTER TABLE exports ADD COLUMN stats TEXT NOT NULL DEFAULT '{}';
ALTER TABLE exports ADD COLUMN policy TEXT NOT NULL DEFAULT '';
`,
}
