package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldlab/arena-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS slots (
	id         TEXT PRIMARY KEY,
	admin      INTEGER NOT NULL DEFAULT 0,
	pwd_hash   TEXT NOT NULL DEFAULT '',
	valid      INTEGER NOT NULL DEFAULT 1,
	tag        TEXT NOT NULL DEFAULT '',
	tag_date   TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_tag ON slots(tag) WHERE tag != '';
`

// Store implements store.RosterStore for SQLite.
type Store struct {
	db *sql.DB
}

// New opens the roster database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRoster returns all provisioned slots in creation order.
func (s *Store) LoadRoster(ctx context.Context) ([]store.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, admin, pwd_hash, valid, tag, tag_date, created_at
		FROM slots ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	var out []store.Slot
	for rows.Next() {
		var slot store.Slot
		var tagDate sql.NullTime
		if err := rows.Scan(&slot.ID, &slot.Admin, &slot.PwdHash, &slot.Valid, &slot.Tag, &tagDate, &slot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		if tagDate.Valid {
			t := tagDate.Time
			slot.TagDate = &t
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// CreateSlot inserts a new provisioned slot.
func (s *Store) CreateSlot(ctx context.Context, slot store.Slot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (id, admin, pwd_hash, valid, tag)
		VALUES (?, ?, ?, ?, ?)
	`, slot.ID, slot.Admin, slot.PwdHash, slot.Valid, slot.Tag)
	if err != nil {
		return fmt.Errorf("create slot %s: %w", slot.ID, err)
	}
	return nil
}

// GetSlot returns the slot stored under id, or nil when absent.
func (s *Store) GetSlot(ctx context.Context, id string) (*store.Slot, error) {
	var slot store.Slot
	var tagDate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, admin, pwd_hash, valid, tag, tag_date, created_at
		FROM slots WHERE id = ?
	`, id).Scan(&slot.ID, &slot.Admin, &slot.PwdHash, &slot.Valid, &slot.Tag, &tagDate, &slot.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	if tagDate.Valid {
		t := tagDate.Time
		slot.TagDate = &t
	}
	return &slot, nil
}

// MarkClaimed persists a capacity-claim stamp.
func (s *Store) MarkClaimed(ctx context.Context, id, tag string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE slots SET tag = ?, tag_date = ? WHERE id = ?
	`, tag, at, id)
	if err != nil {
		return fmt.Errorf("mark claimed %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark claimed %s: no such slot", id)
	}
	return nil
}
