package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notesync/internal/model"
)

var (
	ErrNotFound = errors.New("local note not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id           TEXT    NOT NULL PRIMARY KEY,
	title        TEXT    NOT NULL,
	content      TEXT    NOT NULL,
	owner_id     TEXT    NOT NULL,
	created_at   INTEGER NOT NULL,
	pending_sync INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS notes_owner_pending ON notes (owner_id, pending_sync, created_at);
CREATE INDEX IF NOT EXISTS notes_owner_created_at ON notes (owner_id, created_at DESC);
`

const selectColumns = `SELECT id, title, content, owner_id, created_at, pending_sync FROM notes`

// Store is the client-resident replica of one user's notes. Several owners
// may share a database file; reads and deletes only see ownerID's rows.
type Store struct {
	db    *sql.DB
	owner string
}

func New(db *sql.DB, ownerID string) *Store {
	return &Store{db: db, owner: ownerID}
}

// EnsureSchema creates the notes table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create local schema: %w", err)
	}
	return nil
}

// Put inserts or overwrites a note by identifier.
func (s *Store) Put(ctx context.Context, n model.Note) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, n)
	})
}

// BulkPut writes all notes in a single transaction.
func (s *Store) BulkPut(ctx context.Context, notes []model.Note) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, n := range notes {
			if err := upsert(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace removes oldID and writes n in one transaction, so the optimistic
// and canonical records are never visible together. Replacing an id that
// is already gone just upserts n.
func (s *Store) Replace(ctx context.Context, oldID string, n model.Note) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if oldID != n.ID {
			if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, oldID, s.owner); err != nil {
				return fmt.Errorf("delete note %s: %w", oldID, err)
			}
		}
		return upsert(ctx, tx, n)
	})
}

// DeleteByID removes a note. Deleting a missing note is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, s.owner); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

// Get retrieves a note by its ID
func (s *Store) Get(ctx context.Context, id string) (model.Note, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND owner_id = ?`, id, s.owner)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, ErrNotFound
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("find note %s: %w", id, err)
	}
	return n, nil
}

// FindPending returns notes awaiting remote confirmation, oldest first.
func (s *Store) FindPending(ctx context.Context) ([]model.Note, error) {
	return s.query(ctx, selectColumns+` WHERE owner_id = ? AND pending_sync = 1 ORDER BY created_at ASC, id ASC`, s.owner)
}

// AllOrderedByCreatedAtDesc returns the full replica, newest first.
func (s *Store) AllOrderedByCreatedAtDesc(ctx context.Context) ([]model.Note, error) {
	return s.query(ctx, selectColumns+` WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, s.owner)
}

// CountPending returns the number of notes awaiting remote confirmation.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE owner_id = ? AND pending_sync = 1`, s.owner).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending notes: %w", err)
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, n model.Note) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO notes (id, title, content, owner_id, created_at, pending_sync) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, n.OwnerID, n.CreatedAt.UnixNano(), boolToInt(n.PendingSync),
	)
	if err != nil {
		return fmt.Errorf("upsert note %s: %w", n.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (model.Note, error) {
	var (
		n         model.Note
		createdAt int64
		pending   int
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.OwnerID, &createdAt, &pending); err != nil {
		return model.Note{}, err
	}
	n.CreatedAt = time.Unix(0, createdAt).UTC()
	n.PendingSync = pending != 0
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
