package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"product-catalog/internal/catalog"
)

const healthCheckTimeout = 2 * time.Second

// PostgresStore keeps the state blob in a single row, for deployments that
// want the catalog state on a shared database instead of a local file.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (catalog.StateSnapshot, error) {
	query := `SELECT blob FROM catalog_state WHERE slot = $1`

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, StateSlot).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.StateSnapshot{}, catalog.ErrNoState
		}
		return catalog.StateSnapshot{}, fmt.Errorf("select state: %w", err)
	}

	return decodeState(data)
}

func (s *PostgresStore) Save(ctx context.Context, snap catalog.StateSnapshot) error {
	data, err := encodeState(snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO catalog_state (slot, blob, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (slot) DO UPDATE
		SET blob = EXCLUDED.blob, updated_at = now()
	`
	// lib/pq encodes []byte as bytea, which jsonb rejects.
	if _, err := s.db.ExecContext(ctx, query, StateSlot, string(data)); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}
