// Package catalog persists known servers and their probe history in
// SQLite, so a restarted daemon does not have to rediscover the network
// from the seed tier.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"btctrack/pkg/models"
)

// Store manages server and probe metadata in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// ProbeRecord is one persisted probe outcome.
type ProbeRecord struct {
	OK       bool      `json:"ok"`
	Latency  int64     `json:"latency_ms"`
	Features []string  `json:"features,omitempty"`
	Error    string    `json:"error,omitempty"`
	TestedAt time.Time `json:"tested_at"`
}

// Open opens (and initializes) the catalog at dbPath.
func Open(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrDatabaseError, err)
	}

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %w", ErrDatabaseError, err)
	}
	// WAL keeps readers unblocked while the refresh loop writes.
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %w", ErrDatabaseError, err)
	}

	if _, err := database.ExecContext(ctx, Schema); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: initialize schema: %w", ErrDatabaseError, err)
	}
	return &Store{db: database}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertServer inserts an endpoint or raises its tier if already known.
func (s *Store) UpsertServer(endpoint models.Endpoint, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO servers (host, port, tls, tier) VALUES (?, ?, ?, ?)
		 ON CONFLICT (host, port) DO UPDATE SET tls = excluded.tls,
		 tier = CASE
		     WHEN excluded.tier = 'configured' THEN 'configured'
		     WHEN excluded.tier = 'discovered' AND servers.tier = 'seed' THEN 'discovered'
		     ELSE servers.tier
		 END`,
		endpoint.Host, endpoint.Port, endpoint.TLS, tier.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert server: %w", ErrDatabaseError, err)
	}
	return nil
}

// Servers returns every cataloged endpoint with its tier, oldest first.
func (s *Store) Servers() ([]models.Endpoint, []models.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT host, port, tls, tier FROM servers ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list servers: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var endpoints []models.Endpoint
	var tiers []models.Tier
	for rows.Next() {
		var endpoint models.Endpoint
		var tier string
		if err := rows.Scan(&endpoint.Host, &endpoint.Port, &endpoint.TLS, &tier); err != nil {
			return nil, nil, fmt.Errorf("%w: scan server: %w", ErrDatabaseError, err)
		}
		endpoints = append(endpoints, endpoint)
		tiers = append(tiers, models.ParseTier(tier))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return endpoints, tiers, nil
}

// RecordProbe appends one probe outcome for an endpoint, inserting the
// endpoint as discovered if the catalog has not seen it yet.
func (s *Store) RecordProbe(result models.ProbeResult) error {
	if err := s.UpsertServer(result.Endpoint, models.TierDiscovered); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO probes (server_id, ok, latency_ms, features, error, tested_at)
		 SELECT id, ?, ?, ?, ?, ? FROM servers WHERE host = ? AND port = ?`,
		result.OK, result.Latency.Milliseconds(), strings.Join(result.Features, ","),
		errText, time.Now(), result.Endpoint.Host, result.Endpoint.Port,
	)
	if err != nil {
		return fmt.Errorf("%w: record probe: %w", ErrDatabaseError, err)
	}
	return nil
}

// ProbeHistory returns up to limit most recent probes for an endpoint,
// newest first.
func (s *Store) ProbeHistory(endpoint models.Endpoint, limit int) ([]ProbeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var serverID int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id FROM servers WHERE host = ? AND port = ?`,
		endpoint.Host, endpoint.Port,
	).Scan(&serverID)
	if err == sql.ErrNoRows {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT ok, latency_ms, features, error, tested_at FROM probes
		 WHERE server_id = ? ORDER BY id DESC LIMIT ?`,
		serverID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: probe history: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []ProbeRecord
	for rows.Next() {
		var rec ProbeRecord
		var features string
		if err := rows.Scan(&rec.OK, &rec.Latency, &features, &rec.Error, &rec.TestedAt); err != nil {
			return nil, fmt.Errorf("%w: scan probe: %w", ErrDatabaseError, err)
		}
		if features != "" {
			rec.Features = strings.Split(features, ",")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return records, nil
}

// Prune deletes probe rows older than the retention window.
func (s *Store) Prune(retain time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM probes WHERE tested_at < ?`, time.Now().Add(-retain))
	if err != nil {
		return fmt.Errorf("%w: prune probes: %w", ErrDatabaseError, err)
	}
	return nil
}
