package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/jmoiron/sqlx"
)

// SnapshotRepository persists the single session snapshot record. There is
// exactly one snapshot at a time; Save overwrites it whole, never per-field.
type SnapshotRepository interface {
	// Load returns the stored snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
	Clear(ctx context.Context) error
}

type sqliteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository returns a SnapshotRepository backed by a single-row
// sqlite table.
func NewSQLiteRepository(db *sqlx.DB) SnapshotRepository {
	return &sqliteRepository{db: db}
}

func (r *sqliteRepository) Load(ctx context.Context) (*models.Snapshot, error) {
	var (
		snap           models.Snapshot
		extractionJSON string
		transcriptJSON string
	)

	query := `
		SELECT screen, image_key, media_type, extraction, transcript, saved_at
		FROM snapshots
		WHERE id = 1
	`

	err := r.db.QueryRowContext(ctx, query).Scan(
		&snap.Screen,
		&snap.ImageKey,
		&snap.MediaType,
		&extractionJSON,
		&transcriptJSON,
		&snap.SavedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(extractionJSON), &snap.Extraction); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transcriptJSON), &snap.Transcript); err != nil {
		return nil, err
	}

	return &snap, nil
}

func (r *sqliteRepository) Save(ctx context.Context, snap *models.Snapshot) error {
	extractionJSON, err := json.Marshal(snap.Extraction)
	if err != nil {
		return err
	}
	transcriptJSON, err := json.Marshal(snap.Transcript)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO snapshots (id, screen, image_key, media_type, extraction, transcript, saved_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			screen = excluded.screen,
			image_key = excluded.image_key,
			media_type = excluded.media_type,
			extraction = excluded.extraction,
			transcript = excluded.transcript,
			saved_at = excluded.saved_at
	`

	_, err = r.db.ExecContext(ctx, query,
		snap.Screen,
		snap.ImageKey,
		snap.MediaType,
		string(extractionJSON),
		string(transcriptJSON),
		time.Now(),
	)

	return err
}

func (r *sqliteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = 1`)
	return err
}
