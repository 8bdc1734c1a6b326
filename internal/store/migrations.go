package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	username         TEXT NOT NULL COLLATE NOCASE,
	server           TEXT NOT NULL COLLATE NOCASE,
	port             INTEGER NOT NULL CHECK(port BETWEEN 1 AND 65535),
	charset          TEXT NOT NULL DEFAULT 'utf-8',
	ssl_cipher_list  TEXT NOT NULL DEFAULT 'python_default'
		CHECK(ssl_cipher_list IN ('python_default', 'modern', 'intermediate')),
	password_ref     TEXT NOT NULL DEFAULT '',
	folder           TEXT NOT NULL DEFAULT 'INBOX',
	search           TEXT NOT NULL DEFAULT 'UnSeen UnDeleted',
	max_message_size INTEGER NOT NULL DEFAULT 4096
		CHECK(max_message_size > 2048 AND max_message_size < 30000),
	state            TEXT NOT NULL DEFAULT 'loaded' CHECK(state IN ('loaded', 'needs_reauth')),
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(server, port, username)
);

CREATE INDEX IF NOT EXISTS idx_entries_state ON entries(state);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE entries ADD COLUMN last_checked_at DATETIME;
ALTER TABLE entries ADD COLUMN last_error TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_entries_folder_search ON entries(folder, search);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
