package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
)

// PostgresConfig configures the PostgreSQL-backed checkpoint store, for
// deployments that share consolidation state across machines.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSL      bool   `json:"ssl"`
}

// fillFromEnv applies libpq-style environment defaults.
func (c *PostgresConfig) fillFromEnv() {
	if c.Host == "" {
		c.Host = getEnvOrDefault("PGHOST", "localhost")
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.User == "" {
		c.User = getEnvOrDefault("PGUSER", "postgres")
	}
	if c.Password == "" {
		c.Password = os.Getenv("PGPASSWORD")
	}
	if c.Database == "" {
		c.Database = os.Getenv("PGDATABASE")
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c PostgresConfig) connString() string {
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}
	conn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, sslMode)
	if c.Password != "" {
		conn += fmt.Sprintf(" password=%s", c.Password)
	}
	return conn
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewPostgresStore connects, verifies the connection and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	config.fillFromEnv()

	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ewc_checkpoints (
			id TEXT PRIMARY KEY,
			task_count INTEGER NOT NULL,
			payload BYTEA NOT NULL,
			created_at BIGINT NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoint schema: %w", err)
	}
	return nil
}

// SaveCheckpoint persists a checkpoint as a JSON payload.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *ewc.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ewc_checkpoints (id, task_count, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			task_count = EXCLUDED.task_count,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at`,
		cp.ID, cp.TaskCount, payload, cp.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// LoadCheckpoint fetches a checkpoint by id.
func (s *PostgresStore) LoadCheckpoint(ctx context.Context, id string) (*ewc.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ewc_checkpoints WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	return decodeCheckpoint(payload)
}

// LoadLatest fetches the most recently saved checkpoint.
func (s *PostgresStore) LoadLatest(ctx context.Context) (*ewc.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ewc_checkpoints ORDER BY created_at DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return decodeCheckpoint(payload)
}

// ListCheckpoints returns summaries of all checkpoints, newest first.
func (s *PostgresStore) ListCheckpoints(ctx context.Context) ([]CheckpointSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_count, created_at FROM ewc_checkpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointSummary
	for rows.Next() {
		var cs CheckpointSummary
		if err := rows.Scan(&cs.ID, &cs.TaskCount, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
