package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/idiotf/entry-video-compress/internal/config"
)

// FileName is the database file under the log directory.
const FileName = "history.db"

// Store manages conversion history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to <log_dir>/history.db, creating it when needed.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	dir := strings.TrimSpace(cfg.Paths.LogDir)
	if dir == "" {
		return nil, errors.New("history requires paths.log_dir")
	}
	return OpenPath(ctx, filepath.Join(dir, FileName))
}

// OpenPath connects to the database at path.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path is the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a finished conversion and returns its id.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.InputPath) == "" {
		return 0, errors.New("record history: input path is required")
	}
	switch entry.Status {
	case StatusDone, StatusError, StatusAborted:
	default:
		return 0, fmt.Errorf("record history: unknown status %q", entry.Status)
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = entry.FinishedAt
	}
	outputs, err := encodePaths(entry.OutputPaths)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversions (
            job_id, input_path, status, frames, tiles, segments, frame_rate, duration,
            layout, policy, audio, fallback, output_paths_json, output_bytes,
            error_message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.InputPath,
		entry.Status,
		entry.Frames,
		entry.Tiles,
		entry.Segments,
		entry.FrameRate,
		entry.Duration,
		nullableString(entry.Layout),
		nullableString(entry.Policy),
		boolToInt(entry.Audio),
		boolToInt(entry.Fallback),
		outputs,
		entry.OutputBytes,
		nullableString(entry.ErrorMessage),
		formatTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert conversion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Get fetches one entry. It returns nil when no entry has the id.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM conversions WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion: %w", err)
	}
	return entry, nil
}

// LatestOutputs returns the output paths of the newest successful
// conversion of input, or nil when there is none.
func (s *Store) LatestOutputs(ctx context.Context, input string) ([]string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM conversions
        WHERE input_path = ? AND status = ?
        ORDER BY finished_at DESC, id DESC LIMIT 1`,
		input, StatusDone,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest outputs: %w", err)
	}
	return entry.OutputPaths, nil
}

// List returns the most recent entries first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM conversions ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return entries, nil
}

// Prune removes entries that finished before cutoff and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune conversions: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions`)
	if err != nil {
		return 0, fmt.Errorf("clear conversions: %w", err)
	}
	return res.RowsAffected()
}
