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

CREATE TABLE IF NOT EXISTS exchanges (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	prompt      TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	latency_ns  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
