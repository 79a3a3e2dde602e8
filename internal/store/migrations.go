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

CREATE TABLE IF NOT EXISTS clients (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	slug                 TEXT NOT NULL UNIQUE,
	token                TEXT NOT NULL,
	team_id              TEXT,
	status               TEXT NOT NULL DEFAULT 'Not Connected',
	success_count        INTEGER NOT NULL DEFAULT 0,
	failure_count        INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_latency_ms      INTEGER,
	last_check_at        DATETIME,
	last_success_at      DATETIME,
	last_failure_at      DATETIME,
	last_error           TEXT,
	alert_enabled        INTEGER NOT NULL DEFAULT 0,
	alert_channel        TEXT,
	alert_target         TEXT,
	webhook_url          TEXT,
	auto_recover         INTEGER NOT NULL DEFAULT 1,
	last_alert_at        DATETIME,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status);
CREATE INDEX IF NOT EXISTS idx_clients_updated_at ON clients(updated_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
