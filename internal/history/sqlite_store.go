// Package history records generated audiobooks in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/book-expert/echoverse/internal/core"
)

const (
	driverName        = "sqlite3"
	dirPermissions    = 0o750
	defaultListLimit  = 20
	errFmtCreateDir   = "history: creating dir: %w"
	errFmtOpen        = "history: open: %w"
	errFmtMigrate     = "history: migrate: %w"
	errFmtRecord      = "history: record %s: %w"
	errFmtGet         = "history: get %s: %w"
	errFmtList        = "history: list: %w"
	errFmtScan        = "history: scan: %w"
	errFmtRows        = "history: list rows: %w"
	errEmptyPath      = "history: empty db path"
	errFmtNotFoundKey = "%w: %s"
)

const schema = `
CREATE TABLE IF NOT EXISTS audiobooks (
	id TEXT PRIMARY KEY,
	tone TEXT NOT NULL,
	voice_key TEXT NOT NULL,
	segment_count INTEGER NOT NULL,
	audio_key TEXT,
	narration TEXT NOT NULL,
	used_fallback INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audiobooks_created_at ON audiobooks(created_at DESC);`

// MaxListLimit caps the number of entries Recent returns.
const MaxListLimit = 500

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("audiobook not found")

// Store is a SQLite-backed core.HistoryRecorder.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New(errEmptyPath)
	}

	err := os.MkdirAll(filepath.Dir(dbPath), dirPermissions)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateDir, err)
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf(errFmtOpen, err)
	}

	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf(errFmtMigrate, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Record inserts entry, filling a missing ID and CreatedAt. Recording the
// same ID twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, entry core.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO audiobooks (id, tone, voice_key, segment_count, audio_key, narration, used_fallback, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	tone=excluded.tone,
	voice_key=excluded.voice_key,
	segment_count=excluded.segment_count,
	audio_key=excluded.audio_key,
	narration=excluded.narration,
	used_fallback=excluded.used_fallback,
	created_at=excluded.created_at;
`

	_, err := s.db.ExecContext(ctx, stmt,
		entry.ID,
		entry.Tone,
		entry.VoiceKey,
		entry.SegmentCount,
		nullString(entry.AudioKey),
		entry.Narration,
		entry.UsedFallback,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf(errFmtRecord, entry.ID, err)
	}

	return nil
}

// Get returns the entry with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*core.HistoryEntry, error) {
	const query = `
SELECT id, tone, voice_key, segment_count, audio_key, narration, used_fallback, created_at
FROM audiobooks
WHERE id = ?
LIMIT 1;
`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(errFmtNotFoundKey, ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf(errFmtGet, id, err)
	}

	return entry, nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// means the default of 20; larger limits are capped at MaxListLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	limit = min(limit, MaxListLimit)

	const query = `
SELECT id, tone, voice_key, segment_count, audio_key, narration, used_fallback, created_at
FROM audiobooks
ORDER BY created_at DESC
LIMIT ?;
`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf(errFmtList, err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf(errFmtScan, scanErr)
		}

		entries = append(entries, *entry)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf(errFmtRows, rowsErr)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*core.HistoryEntry, error) {
	var (
		entry     core.HistoryEntry
		audioKey  sql.NullString
		createdAt sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.Tone,
		&entry.VoiceKey,
		&entry.SegmentCount,
		&audioKey,
		&entry.Narration,
		&entry.UsedFallback,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.AudioKey = audioKey.String
	entry.CreatedAt = createdAt.Time

	return &entry, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}

	return value
}

var _ core.HistoryRecorder = (*Store)(nil)
