package bridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// Repository defines the interface for bridge definition persistence.
type Repository interface {
	List(ctx context.Context) ([]Config, error)
	Get(ctx context.Context, id string) (*Config, error)
	Create(ctx context.Context, cfg *Config) error
	Update(ctx context.Context, cfg *Config) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed bridge repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT id, name, port, entities, mappings, auto_start, created_at, updated_at FROM bridges`

// List returns all bridge definitions ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Config, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("querying bridges: %w", err)
	}
	defer rows.Close()

	var cfgs []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bridge row: %w", err)
		}
		cfgs = append(cfgs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bridge rows: %w", err)
	}
	return cfgs, nil
}

// Get returns one bridge definition.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Config, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBridgeNotFound, id)
		}
		return nil, fmt.Errorf("scanning bridge %s: %w", id, err)
	}
	return cfg, nil
}

// Create inserts a bridge definition.
func (r *SQLiteRepository) Create(ctx context.Context, cfg *Config) error {
	entities, mappings, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = now
	}

	const query = `INSERT INTO bridges (id, name, port, entities, mappings, auto_start, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Port, entities, mappings, boolToInt(cfg.AutoStart),
		cfg.CreatedAt.Format(time.RFC3339Nano), cfg.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return classifyWriteError(cfg, err, "inserting")
	}
	return nil
}

// Update replaces a bridge definition.
func (r *SQLiteRepository) Update(ctx context.Context, cfg *Config) error {
	entities, mappings, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}

	const query = `UPDATE bridges SET name = ?, port = ?, entities = ?, mappings = ?, auto_start = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		cfg.Name, cfg.Port, entities, mappings, boolToInt(cfg.AutoStart),
		cfg.UpdatedAt.Format(time.RFC3339Nano), cfg.ID)
	if err != nil {
		return classifyWriteError(cfg, err, "updating")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of bridge %s: %w", cfg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBridgeNotFound, cfg.ID)
	}
	return nil
}

// Delete removes a bridge definition.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bridges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting bridge %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of bridge %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBridgeNotFound, id)
	}
	return nil
}

// Count returns the number of stored bridge definitions.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bridges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting bridges: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var (
		cfg                  Config
		entities, mappings   string
		autoStart            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Port, &entities, &mappings, &autoStart, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(entities), &cfg.Entities); err != nil {
		return nil, fmt.Errorf("decoding entities of bridge %s: %w", cfg.ID, err)
	}
	if mappings != "" && mappings != "{}" {
		cfg.Mappings = make(map[string]mapping.Config)
		if err := json.Unmarshal([]byte(mappings), &cfg.Mappings); err != nil {
			return nil, fmt.Errorf("decoding mappings of bridge %s: %w", cfg.ID, err)
		}
	}
	cfg.AutoStart = autoStart != 0
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

func encodeConfig(cfg *Config) (entities, mappings string, err error) {
	list := cfg.Entities
	if list == nil {
		list = []string{}
	}
	eb, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("encoding entities of bridge %s: %w", cfg.ID, err)
	}
	mappings = "{}"
	if len(cfg.Mappings) > 0 {
		mb, err := json.Marshal(cfg.Mappings)
		if err != nil {
			return "", "", fmt.Errorf("encoding mappings of bridge %s: %w", cfg.ID, err)
		}
		mappings = string(mb)
	}
	return string(eb), mappings, nil
}

// classifyWriteError maps SQLite constraint failures onto package errors.
func classifyWriteError(cfg *Config, err error, op string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: bridges.port"):
		return fmt.Errorf("%w: %d", ErrPortInUse, cfg.Port)
	case strings.Contains(msg, "UNIQUE constraint failed: bridges.id"):
		return fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}
	return fmt.Errorf("%s bridge %s: %w", op, cfg.ID, err)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
