package notes

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/flowbot/core/database"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := coredatabase.Config{
		Driver:         coredatabase.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "notes.db"),
		MigrationsPath: filepath.Join("..", "..", "migrations"),
	}
	require.NoError(t, coredatabase.RunMigrations(context.Background(), cfg))
	db, err := coredatabase.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestAddAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	later, err := s.Add(ctx, Note{TelegramID: 7, Title: " Dentist ", Category: "home", DueDate: time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NotEmpty(t, later.ID)
	require.Equal(t, "Dentist", later.Title)

	_, err = s.Add(ctx, Note{TelegramID: 7, Title: "Report", Category: "work", DueDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = s.Add(ctx, Note{TelegramID: 8, Title: "Other user", Category: "x", DueDate: time.Now()})
	require.NoError(t, err)

	list, err := s.List(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Report", list[0].Title)
	require.Equal(t, "2024-01-15", list[0].DueDate.Format("2006-01-02"))
	require.Equal(t, later.ID, list[1].ID)

	list, err = s.List(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	n, err := s.Count(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAddRejectsIncompleteNotes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, Note{Title: "no owner"})
	require.Error(t, err)
	_, err = s.Add(ctx, Note{TelegramID: 1, Title: "   "})
	require.Error(t, err)
}
