// Package userstore keeps per-user preferences such as the interface language.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/logger"
)

// ErrNotFound is returned when the user has no stored row.
var ErrNotFound = errors.New("userstore: user not found")

// User is a row of the users table.
type User struct {
	TelegramID int64     `db:"telegram_id"`
	Language   string    `db:"language"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Store reads and writes users over sqlx.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get loads the user row.
func (s *Store) Get(ctx context.Context, telegramID int64) (User, error) {
	var u User
	q := s.db.Rebind(`SELECT telegram_id, language, created_at, updated_at FROM users WHERE telegram_id = ?`)
	if err := s.db.GetContext(ctx, &u, q, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("userstore: get %d: %w", telegramID, err)
	}
	return u, nil
}

// Language returns the stored language or "" when the user is unknown.
func (s *Store) Language(ctx context.Context, telegramID int64) (string, error) {
	u, err := s.Get(ctx, telegramID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Language, nil
}

// SetLanguage creates the user or updates its language.
func (s *Store) SetLanguage(ctx context.Context, telegramID int64, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return fmt.Errorf("userstore: empty language")
	}
	q := s.db.Rebind(`INSERT INTO users (telegram_id, language) VALUES (?, ?)
ON CONFLICT (telegram_id) DO UPDATE SET language = excluded.language, updated_at = CURRENT_TIMESTAMP`)
	if _, err := s.db.ExecContext(ctx, q, telegramID, lang); err != nil {
		logger.Error(ctx, "service.users", "users.set_language",
			slog.Int64("user_id", telegramID),
			slog.String("lang", lang),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("userstore: set language %d: %w", telegramID, err)
	}
	logger.Debug(ctx, "service.users", "users.set_language",
		slog.Int64("user_id", telegramID),
		slog.String("lang", lang),
	)
	return nil
}

// Count reports how many users have a stored row.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("userstore: count: %w", err)
	}
	return n, nil
}

// LanguageFunc adapts the store to the runtime's language lookup.
// Lookup failures are logged and resolve to the default language.
func (s *Store) LanguageFunc() flow.LanguageFunc {
	return func(ctx context.Context, userID int64) string {
		lang, err := s.Language(ctx, userID)
		if err != nil {
			logger.Warn(ctx, "service.users", "users.language",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
			return ""
		}
		return lang
	}
}
