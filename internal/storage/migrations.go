package storage

type migration struct {
	version int
	sql     string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS contractors (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  role TEXT NOT NULL,
  credential TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
  id TEXT PRIMARY KEY,
  subject TEXT NOT NULL,
  body TEXT NOT NULL,
  sender TEXT NOT NULL,
  recipient TEXT NOT NULL,
  received_at TEXT NOT NULL,
  attachments TEXT NOT NULL DEFAULT '[]',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);

CREATE TABLE IF NOT EXISTS bids (
  id TEXT PRIMARY KEY,
  project_name TEXT NOT NULL,
  project_id TEXT NOT NULL,
  contractor TEXT NOT NULL,
  contractor_id TEXT NOT NULL REFERENCES contractors(id),
  user_id TEXT NOT NULL REFERENCES contractors(id),
  email_id TEXT NOT NULL REFERENCES emails(id),
  bid_amount REAL,
  due_date TEXT,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_status ON bids(status);
CREATE INDEX IF NOT EXISTS idx_bids_contractor_id ON bids(contractor_id);
CREATE INDEX IF NOT EXISTS idx_bids_project_id ON bids(project_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contractors (
  id           TEXT PRIMARY KEY,
  email        TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  role         TEXT NOT NULL,
  credential   TEXT NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS emails (
  id          TEXT PRIMARY KEY,
  subject     TEXT NOT NULL,
  body        TEXT NOT NULL,
  sender      TEXT NOT NULL,
  recipient   TEXT NOT NULL,
  received_at TIMESTAMPTZ NOT NULL,
  attachments TEXT[] NOT NULL DEFAULT '{}',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);

CREATE TABLE IF NOT EXISTS bids (
  id            TEXT PRIMARY KEY,
  project_name  TEXT NOT NULL,
  project_id    TEXT NOT NULL,
  contractor    TEXT NOT NULL,
  contractor_id TEXT NOT NULL REFERENCES contractors(id),
  user_id       TEXT NOT NULL REFERENCES contractors(id),
  email_id      TEXT NOT NULL REFERENCES emails(id),
  bid_amount    DOUBLE PRECISION,
  due_date      DATE,
  status        TEXT NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bids_status ON bids(status);
CREATE INDEX IF NOT EXISTS idx_bids_contractor_id ON bids(contractor_id);
ALTER TABLE bids DROP CONSTRAINT IF EXISTS bids_project_id_key;
CREATE INDEX IF NOT EXISTS idx_bids_project_id ON bids(project_id);
`
