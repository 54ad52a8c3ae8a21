package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Sternrassler/record-pager/pkg/records"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	dbPath := filepath.Join(t.TempDir(), "pager.db")

	db, err := Open(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func seedTickets(t *testing.T, repo *Repository[records.Ticket], n int) []*records.Ticket {
	t.Helper()

	station := uuid.New()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	items := make([]*records.Ticket, n)
	for i := range items {
		items[i] = records.NewTicket(fmt.Sprintf("T-%03d", i+1), fmt.Sprintf("Ticket %d", i+1), station)
		items[i].CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if i%2 == 1 {
			items[i].Status = records.StatusAssigned
		}
	}
	require.NoError(t, repo.Create(context.Background(), items...))
	return items
}

func TestRepository_Count(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := Tickets(db)
	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	seedTickets(t, repo, 47)

	total, err = repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 47, total)
}

func TestRepository_FetchPage(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := Tickets(db)
	seeded := seedTickets(t, repo, 47)
	ctx := context.Background()

	page1, err := repo.FetchPage(ctx, 1, 25)
	require.NoError(t, err)
	require.Len(t, page1, 25)
	assert.Equal(t, "T-047", page1[0].Number, "newest ticket first")
	assert.True(t, page1[0].Equal(seeded[46]))

	page2, err := repo.FetchPage(ctx, 2, 25)
	require.NoError(t, err)
	require.Len(t, page2, 22)
	assert.Equal(t, "T-001", page2[21].Number)

	empty, err := repo.FetchPage(ctx, 3, 25)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_Where(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := Tickets(db)
	seedTickets(t, repo, 10)
	ctx := context.Background()

	assigned := repo.Where("status = ?", records.StatusAssigned)

	total, err := assigned.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	page, err := assigned.FetchPage(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for _, tk := range page {
		assert.Equal(t, records.StatusAssigned, tk.Status)
	}

	// The base repository is not filtered.
	total, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestRepository_SaveAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := Stations(db)
	ctx := context.Background()

	north := records.NewStation("North", "Building A")
	south := records.NewStation("South", "Building B")
	require.NoError(t, repo.Create(ctx, north, south))

	north.Location = "Building C"
	require.NoError(t, repo.Save(ctx, north))

	page, err := repo.FetchPage(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Building C", page[0].Location)

	require.NoError(t, repo.Delete(ctx, south.ID))

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRepository_CreateEmpty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, Collections(db).Create(context.Background()))
}
