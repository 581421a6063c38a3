package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// SQLite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// SQLite is a record store backed by a single SQLite database file. It
// offers the same optimistic-write contract as the file tree but with real
// transactions for AtomicCommit, which makes it the better backend for large
// collections.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS photos (
	photo_id     TEXT PRIMARY KEY,
	record       TEXT NOT NULL,
	version      INTEGER NOT NULL,
	state        TEXT NOT NULL,
	content_hash TEXT,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_state ON photos(state);
CREATE INDEX IF NOT EXISTS idx_photos_hash ON photos(content_hash);
`

// NewSQLite opens (creating if needed) a SQLite-backed record store at the
// given path. Returns ErrStoreUnreachable when the database cannot be
// opened, which callers treat as fatal for the whole run.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnreachable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("%w: schema: %v", errors.ErrStoreUnreachable, err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Read implements Store.
func (s *SQLite) Read(ctx context.Context, photoID string) (*photos.Photo, Version, error) {
	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT record, version FROM photos WHERE photo_id = ?`, photoID).
		Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return nil, VersionNone, errors.NewNotFoundError("photo", photoID)
	}
	if err != nil {
		return nil, VersionNone, errors.WrapIO("read", photoID, err)
	}
	p, err := decode([]byte(raw))
	if err != nil {
		return nil, VersionNone, err
	}
	return p, Version(strconv.FormatInt(version, 10)), nil
}

// Write implements Store.
func (s *SQLite) Write(ctx context.Context, p *photos.Photo, expected Version) (Version, error) {
	if err := p.Validate(); err != nil {
		return VersionNone, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return VersionNone, errors.WrapIO("write", p.PhotoID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	next, err := writeTx(ctx, tx, p, expected)
	if err != nil {
		return VersionNone, err
	}
	if err := tx.Commit(); err != nil {
		return VersionNone, errors.WrapIO("write", p.PhotoID, err)
	}
	return next, nil
}

func writeTx(ctx context.Context, tx *sql.Tx, p *photos.Photo, expected Version) (Version, error) {
	raw, err := encode(p)
	if err != nil {
		return VersionNone, err
	}

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM photos WHERE photo_id = ?`, p.PhotoID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if expected != VersionNone {
			return VersionNone, errors.NewConcurrentModificationError(p.PhotoID, string(expected), "")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO photos (photo_id, record, version, state, content_hash, updated_at)
			 VALUES (?, ?, 1, ?, ?, ?)`,
			p.PhotoID, string(raw), string(p.ProcessingState), p.ContentHash, p.UpdatedAt.String())
		if err != nil {
			return VersionNone, errors.WrapIO("write", p.PhotoID, err)
		}
		return Version("1"), nil
	case err != nil:
		return VersionNone, errors.WrapIO("read", p.PhotoID, err)
	}

	currentVer := Version(strconv.FormatInt(current, 10))
	if currentVer != expected {
		return VersionNone, errors.NewConcurrentModificationError(p.PhotoID, string(expected), string(currentVer))
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE photos SET record = ?, version = version + 1, state = ?, content_hash = ?, updated_at = ?
		 WHERE photo_id = ? AND version = ?`,
		string(raw), string(p.ProcessingState), p.ContentHash, p.UpdatedAt.String(), p.PhotoID, current)
	if err != nil {
		return VersionNone, errors.WrapIO("write", p.PhotoID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return VersionNone, errors.NewConcurrentModificationError(p.PhotoID, string(expected), "changed")
	}
	return Version(strconv.FormatInt(current+1, 10)), nil
}

// List implements Store. Filtering on state and content hash happens in SQL;
// the rest applies in memory.
func (s *SQLite) List(ctx context.Context, filter Filter) ([]Stored, error) {
	query := `SELECT record, version FROM photos`
	var clauses []string
	var args []any
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(state))
		}
		clauses = append(clauses, "state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ContentHash != "" {
		clauses = append(clauses, "content_hash = ?")
		args = append(args, filter.ContentHash)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapIO("list", "photos", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var raw string
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, errors.WrapIO("list", "photos", err)
		}
		p, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Matches(p) {
			out = append(out, Stored{Photo: p, Version: Version(strconv.FormatInt(version, 10))})
		}
	}
	return out, rows.Err()
}

// AtomicCommit implements Store with a real transaction: either every
// change lands or none do.
func (s *SQLite) AtomicCommit(ctx context.Context, batch []Change) error {
	for _, c := range batch {
		if err := c.Photo.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapIO("commit", "batch", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, c := range batch {
		if _, err := writeTx(ctx, tx, c.Photo, c.Expected); err != nil {
			return err
		}
	}
	return tx.Commit()
}
