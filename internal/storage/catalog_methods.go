package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// ========== Catalog Methods ==========

const catalogColumns = `
        id, created_at, updated_at, vendor, model, decode_mode,
        decoder_script, temperature_unit, battery_chemistry, revision`

func scanCatalogEntry(row interface{ Scan(...interface{}) error }) (*models.CatalogEntry, error) {
	entry := &models.CatalogEntry{}
	err := row.Scan(
		&entry.ID, &entry.CreatedAt, &entry.UpdatedAt, &entry.Vendor,
		&entry.Model, &entry.DecodeMode, &entry.DecoderScript,
		&entry.TemperatureUnit, &entry.BatteryChemistry, &entry.Revision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateCatalogEntry creates a new catalog entry
func (s *PostgresStore) CreateCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Revision == 0 {
		entry.Revision = 1
	}

	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
        INSERT INTO catalog_entries (
            id, created_at, updated_at, vendor, model, decode_mode,
            decoder_script, temperature_unit, battery_chemistry, revision
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.UpdatedAt, entry.Vendor, entry.Model,
		entry.DecodeMode, entry.DecoderScript, entry.TemperatureUnit,
		entry.BatteryChemistry, entry.Revision,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetCatalogEntry gets a catalog entry by ID
func (s *PostgresStore) GetCatalogEntry(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error) {
	query := `SELECT` + catalogColumns + ` FROM catalog_entries WHERE id = $1`
	return scanCatalogEntry(s.getDB().QueryRowContext(ctx, query, id))
}

// UpdateCatalogEntry updates a catalog entry. The caller bumps Revision when
// the decoder script changed so cached compilations are invalidated.
func (s *PostgresStore) UpdateCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error {
	entry.UpdatedAt = time.Now()

	query := `
        UPDATE catalog_entries SET
            updated_at = $2, vendor = $3, model = $4, decode_mode = $5,
            decoder_script = $6, temperature_unit = $7,
            battery_chemistry = $8, revision = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.UpdatedAt, entry.Vendor, entry.Model, entry.DecodeMode,
		entry.DecoderScript, entry.TemperatureUnit, entry.BatteryChemistry,
		entry.Revision,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteCatalogEntry deletes a catalog entry
func (s *PostgresStore) DeleteCatalogEntry(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM catalog_entries WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListCatalogEntries lists catalog entries. The catalog is shared across
// tenants, so there is no tenant scope here.
func (s *PostgresStore) ListCatalogEntries(ctx context.Context, limit, offset int) ([]*models.CatalogEntry, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT` + catalogColumns + `
        FROM catalog_entries
        ORDER BY vendor, model
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.CatalogEntry
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, count, nil
}
