package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists cache rows in a SQLite table keyed by game ID.
type SQLiteStore struct {
	sqlDB *sql.DB
	opts  options

	// SQLite allows one writer at a time; serialize here instead of
	// spinning on SQLITE_BUSY.
	writeMu sync.Mutex
}

// OpenSQLite opens a SQLite cache store and applies embedded migrations.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, opts: buildOptions(opts)}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const selectColumns = `id, title, description, image_url, released, rating, metacritic, query, page, cached_at, seq`

func (s *SQLiteStore) Lookup(ctx context.Context, query string, page int) ([]domain.Game, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM games
		 WHERE query = ? AND page = ?
		 ORDER BY cached_at DESC, seq ASC`,
		query, page,
	)
	if err != nil {
		return nil, &domain.CacheIOError{Op: "lookup", Err: err}
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, &domain.CacheIOError{Op: "lookup", Err: err}
	}
	return gamesOf(entries), nil
}

func (s *SQLiteStore) LookupAll(ctx context.Context, query string) ([]domain.Game, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM games
		 WHERE query = ?
		 ORDER BY page ASC, cached_at DESC, seq ASC`,
		query,
	)
	if err != nil {
		return nil, &domain.CacheIOError{Op: "lookup all", Err: err}
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, &domain.CacheIOError{Op: "lookup all", Err: err}
	}
	return gamesOf(entries), nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, games []domain.Game, query string, page int) error {
	if len(games) == 0 {
		return nil
	}
	entries := newEntries(games, query, page, s.opts.now().UnixMilli())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return &domain.CacheIOError{Op: "upsert", Err: err}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO games (
		   id, title, description, image_url, released, rating, metacritic,
		   query, page, cached_at, seq
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   image_url = excluded.image_url,
		   released = excluded.released,
		   rating = excluded.rating,
		   metacritic = excluded.metacritic,
		   query = excluded.query,
		   page = excluded.page,
		   cached_at = excluded.cached_at,
		   seq = excluded.seq`,
	)
	if err != nil {
		_ = tx.Rollback()
		return &domain.CacheIOError{Op: "upsert", Err: err}
	}
	defer stmt.Close()

	for _, e := range entries {
		g := e.Game
		if _, err := stmt.ExecContext(ctx,
			g.ID,
			g.Title,
			nullString(g.Description),
			nullString(g.ImageURL),
			nullString(g.Released),
			nullFloat(g.Rating),
			nullInt(g.Metacritic),
			e.Query,
			e.Page,
			e.CachedAt,
			e.Seq,
		); err != nil {
			_ = tx.Rollback()
			return &domain.CacheIOError{Op: "upsert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.CacheIOError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *SQLiteStore) EvictOlderThan(ctx context.Context, cutoff int64) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM games WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, &domain.CacheIOError{Op: "evict older than", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.CacheIOError{Op: "evict older than", Err: err}
	}
	return int(n), nil
}

func (s *SQLiteStore) EvictByQuery(ctx context.Context, query string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM games WHERE query = ?`, query)
	if err != nil {
		return 0, &domain.CacheIOError{Op: "evict by query", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.CacheIOError{Op: "evict by query", Err: err}
	}
	return int(n), nil
}

func scanEntries(rows *sql.Rows) ([]domain.CacheEntry, error) {
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var (
			e           domain.CacheEntry
			description sql.NullString
			imageURL    sql.NullString
			released    sql.NullString
			rating      sql.NullFloat64
			metacritic  sql.NullInt64
		)
		if err := rows.Scan(
			&e.Game.ID,
			&e.Game.Title,
			&description,
			&imageURL,
			&released,
			&rating,
			&metacritic,
			&e.Query,
			&e.Page,
			&e.CachedAt,
			&e.Seq,
		); err != nil {
			return nil, err
		}
		if description.Valid {
			e.Game.Description = domain.StringPtr(description.String)
		}
		if imageURL.Valid {
			e.Game.ImageURL = domain.StringPtr(imageURL.String)
		}
		if released.Valid {
			e.Game.Released = domain.StringPtr(released.String)
		}
		if rating.Valid {
			e.Game.Rating = domain.Float64Ptr(rating.Float64)
		}
		if metacritic.Valid {
			e.Game.Metacritic = domain.IntPtr(int(metacritic.Int64))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
