package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrEmptyTitle           = errors.New("title must not be empty")
)

type Database struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Database)

// WithClock replaces time.Now as the source of timestamps and title dates.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithLogger sets the logger used for migrations and bootstrap messages.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Database) { d.logger = logger }
}

// New opens (or creates) the SQLite database at dbPath, creating the parent
// directory if needed. The schema is not touched; call Migrate before use.
func New(dbPath string, opts ...Option) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db at %s: %w", dbPath, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db at %s: %w", dbPath, err)
	}

	d := &Database{db: sqlDB, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// timestamp is the value stored in created_at, updated_at and timestamp
// columns. Always UTC so the stored strings sort chronologically.
func (d *Database) timestamp() time.Time {
	return d.now().UTC()
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func touchConversation(ctx context.Context, tx *sql.Tx, convID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", at, convID)
	return err
}
