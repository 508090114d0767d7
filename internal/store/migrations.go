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

CREATE TABLE IF NOT EXISTS batch_items (
	id          TEXT PRIMARY KEY,
	position    INTEGER NOT NULL,
	sender      TEXT NOT NULL DEFAULT '',
	recipient   TEXT NOT NULL DEFAULT '',
	sent_at     TEXT,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL CHECK(body <> ''),
	state       TEXT NOT NULL DEFAULT 'fetched'
		CHECK(state IN ('fetched', 'analyzed', 'replied')),
	importance  INTEGER CHECK(importance IS NULL OR importance BETWEEN 0 AND 5),
	summary     TEXT NOT NULL DEFAULT '',
	draft_reply TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batch_items_position ON batch_items(position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_batch_items_rank
	ON batch_items(importance DESC, position);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
