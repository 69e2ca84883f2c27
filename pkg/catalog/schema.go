package catalog

// Schema contains the SQL statements to create the server catalog schema.
const Schema = `
-- Servers table: known endpoints and their provenance tier
CREATE TABLE IF NOT EXISTS servers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    host       TEXT NOT NULL,
    port       INTEGER NOT NULL,
    tls        BOOLEAN NOT NULL DEFAULT TRUE,
    tier       TEXT NOT NULL DEFAULT 'discovered',
    added_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (host, port)
);

-- Probes table: probe history per server
CREATE TABLE IF NOT EXISTS probes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id  INTEGER NOT NULL,
    ok         BOOLEAN NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    features   TEXT,
    error      TEXT,
    tested_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

-- Indexes for lookups
CREATE INDEX IF NOT EXISTS idx_servers_hostport ON servers(host, port);
CREATE INDEX IF NOT EXISTS idx_probes_server ON probes(server_id, tested_at);
`
