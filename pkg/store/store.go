// Package store is the local persistence layer for the kiosk: guestbook
// entries and pre-registered visitors in a single SQLite database, with
// versioned schema migrations and per-operation transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/guestkiosk/guestkiosk/internal/utils"
	"github.com/guestkiosk/guestkiosk/pkg/store/migrations"
)

type Store struct {
	sql  *sql.DB
	lock *utils.DBLock
}

var (
	sharedOnce sync.Once
	shared     *Store
	sharedErr  error
)

// Shared returns the process-wide store handle, opening it on first use.
// Concurrent and repeated calls all get the same handle (or the same error),
// so migrations run exactly once per process even when the server and a
// background job race to initialize.
func Shared(path string) (*Store, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = Open(path)
	})
	return shared, sharedErr
}

// Open opens the database at path, holding a sibling lock file for the
// lifetime of the handle so a second process cannot run migrations against
// the same file concurrently. Most callers want Shared instead.
func Open(path string) (*Store, error) {
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return &Store{sql: db, lock: lock}, nil
}

// runMigrations brings the schema up to the version this binary expects.
// Migrations already applied are skipped, so opening an up-to-date database
// touches no data.
func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	err := s.sql.Close()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}

// SaveEntry inserts a new guestbook entry, stamping the timestamp itself,
// and returns the assigned id. Any caller-supplied timestamp is ignored by
// construction: NewEntry has no timestamp field.
func (s *Store) SaveEntry(ctx context.Context, e NewEntry) (int64, error) {
	now := time.Now().UTC()
	res, err := s.sql.ExecContext(ctx,
		`INSERT INTO entries (photo, signature, name, designation, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullIfEmpty(e.Photo), e.Signature, e.Name, e.Designation, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	utils.Log.WithField("id", id).Debug("saved entry")
	return id, nil
}

// GetAllEntries returns every entry, newest first. Ordering comes from the
// created_at index; ties fall back to id so two entries stamped in the same
// millisecond still come back in insertion order.
func (s *Store) GetAllEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, photo, signature, name, designation, created_at FROM entries ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return entries, nil
}

// GetEntry returns the entry with the given id, or (nil, nil) if it does not
// exist. A missing id is a normal outcome, not an error.
func (s *Store) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT id, photo, signature, name, designation, created_at FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return &e, nil
}

// DeleteEntry removes one entry. Deleting an id that is already gone is not
// an error.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := s.sql.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// CountEntries returns the number of entries without materializing them.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return n, nil
}

// DeleteAllEntries irreversibly clears the entries table. Visitors are not
// touched.
func (s *Store) DeleteAllEntries(ctx context.Context) error {
	if _, err := s.sql.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	utils.Log.Warn("deleted all entries")
	return nil
}

// AddVisitor inserts a pre-registered visitor and returns the assigned id.
func (s *Store) AddVisitor(ctx context.Context, v NewVisitor) (int64, error) {
	now := time.Now().UTC()
	res, err := s.sql.ExecContext(ctx,
		`INSERT INTO visitors (photo, name, designation, created_at) VALUES (?, ?, ?, ?)`,
		nullIfEmpty(v.Photo), v.Name, v.Designation, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return id, nil
}

// GetAllVisitors returns every visitor ordered by name, so the kiosk's
// shortcut rail is stable between loads.
func (s *Store) GetAllVisitors(ctx context.Context) ([]Visitor, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, photo, name, designation, created_at FROM visitors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer rows.Close()

	var visitors []Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		visitors = append(visitors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return visitors, nil
}

// GetVisitor returns (nil, nil) when the id does not exist.
func (s *Store) GetVisitor(ctx context.Context, id int64) (*Visitor, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT id, photo, name, designation, created_at FROM visitors WHERE id = ?`, id)
	v, err := scanVisitor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return &v, nil
}

// DeleteVisitor removes one visitor, idempotently.
func (s *Store) DeleteVisitor(ctx context.Context, id int64) error {
	if _, err := s.sql.ExecContext(ctx, `DELETE FROM visitors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e     Entry
		photo sql.NullString
		ms    int64
	)
	if err := r.Scan(&e.ID, &photo, &e.Signature, &e.Name, &e.Designation, &ms); err != nil {
		return Entry{}, err
	}
	e.Photo = photo.String
	e.Timestamp = time.UnixMilli(ms).UTC()
	return e, nil
}

func scanVisitor(r rowScanner) (Visitor, error) {
	var (
		v     Visitor
		photo sql.NullString
		ms    int64
	)
	if err := r.Scan(&v.ID, &photo, &v.Name, &v.Designation, &ms); err != nil {
		return Visitor{}, err
	}
	v.Photo = photo.String
	v.CreatedAt = time.UnixMilli(ms).UTC()
	return v, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
