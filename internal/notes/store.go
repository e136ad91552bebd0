// Package notes persists notes collected by the note flow.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowbot/core/logger"
)

// Note is a single saved note.
type Note struct {
	ID         string    `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Title      string    `db:"title"`
	Category   string    `db:"category"`
	DueDate    time.Time `db:"due_date"`
	CreatedAt  time.Time `db:"created_at"`
}

// Store reads and writes the notes table.
type Store struct {
	db    *sqlx.DB
	newID func() string
}

// New returns a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, newID: uuid.NewString}
}

// Add inserts a note and returns it with its generated id.
func (s *Store) Add(ctx context.Context, n Note) (Note, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Category = strings.TrimSpace(n.Category)
	if n.TelegramID == 0 {
		return Note{}, fmt.Errorf("notes: missing owner")
	}
	if n.Title == "" {
		return Note{}, fmt.Errorf("notes: empty title")
	}
	n.ID = s.newID()
	n.DueDate = time.Date(n.DueDate.Year(), n.DueDate.Month(), n.DueDate.Day(), 0, 0, 0, 0, time.UTC)

	q := s.db.Rebind(`INSERT INTO notes (id, telegram_id, title, category, due_date) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, n.ID, n.TelegramID, n.Title, n.Category, n.DueDate); err != nil {
		logger.Error(ctx, "service.notes", "notes.add",
			slog.Int64("user_id", n.TelegramID),
			slog.String("err", err.Error()),
		)
		return Note{}, fmt.Errorf("notes: add for %d: %w", n.TelegramID, err)
	}
	logger.Info(ctx, "service.notes", "notes.add",
		slog.Int64("user_id", n.TelegramID),
		slog.String("note_id", n.ID),
		slog.String("category", n.Category),
	)
	return n, nil
}

// List returns the user's notes ordered by due date, at most limit rows (0 means all).
func (s *Store) List(ctx context.Context, telegramID int64, limit int) ([]Note, error) {
	q := `SELECT id, telegram_id, title, category, due_date, created_at FROM notes WHERE telegram_id = ? ORDER BY due_date, created_at`
	args := []any{telegramID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var out []Note
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("notes: list for %d: %w", telegramID, err)
	}
	return out, nil
}

// Count reports how many notes the user has.
func (s *Store) Count(ctx context.Context, telegramID int64) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM notes WHERE telegram_id = ?`)
	if err := s.db.GetContext(ctx, &n, q, telegramID); err != nil {
		return 0, fmt.Errorf("notes: count for %d: %w", telegramID, err)
	}
	return n, nil
}
