package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizi/payslip-analyzer-api/internal/db"
	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/jmoiron/sqlx"
)

// Mirrors internal/db/migrations/000001_create_snapshots.up.sql.
const snapshotsSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    screen TEXT NOT NULL,
    image_key TEXT NOT NULL,
    media_type TEXT NOT NULL,
    extraction TEXT NOT NULL,
    transcript TEXT NOT NULL,
    saved_at TIMESTAMP NOT NULL
);`

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	database.MustExec(snapshotsSchema)
	return database
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Screen:    models.ScreenFreeChat,
		ImageKey:  "0b1f5b5e-payslip",
		MediaType: "image/png",
		Extraction: &models.PayslipRecord{
			EmployeeName:    "Dana Levi",
			EmployeeID:      "123456789",
			EmployerName:    "Acme Ltd",
			PayPeriod:       "May 2024",
			GrossSalary:     15000,
			NetSalary:       11200,
			TotalDeductions: 3800,
			Payments:        []models.LineItem{{Description: "Base salary", Amount: 15000}},
			Deductions:      []models.LineItem{{Description: "Income tax", Amount: 3800}},
		},
		Transcript: []models.ChatMessage{
			{ID: "m1", Sender: models.SenderBot, Text: "Hello", Options: []string{"yes", "no"}},
			{ID: "m2", Sender: models.SenderUser, Text: "yes"},
		},
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	// No snapshot yet.
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := testSnapshot()
	require.NoError(t, repo.Save(ctx, want))

	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Screen, got.Screen)
	assert.Equal(t, want.ImageKey, got.ImageKey)
	assert.Equal(t, want.MediaType, got.MediaType)
	assert.Equal(t, want.Extraction, got.Extraction)
	assert.Equal(t, want.Transcript, got.Transcript)
	assert.False(t, got.SavedAt.IsZero())
}

func TestSQLiteSaveOverwrites(t *testing.T) {
	repo := NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	first := testSnapshot()
	require.NoError(t, repo.Save(ctx, first))

	second := testSnapshot()
	second.Screen = models.ScreenScriptedDone
	second.Transcript = append(second.Transcript, models.ChatMessage{
		ID: "m3", Sender: models.SenderBot, Text: "Bye",
	})
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ScreenScriptedDone, got.Screen)
	assert.Len(t, got.Transcript, 3, "the snapshot is one record, replaced whole")
}

func TestSQLiteClear(t *testing.T) {
	repo := NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot()))
	require.NoError(t, repo.Clear(ctx))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing an already empty store is fine.
	require.NoError(t, repo.Clear(ctx))
}
