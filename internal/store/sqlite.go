package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores records in a local database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA encoding = 'UTF-8'",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	schema, err := migrations.ReadFile("migrations/sqlite.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec migration: %w", err)
	}
	logger.Info("database migrated", "backend", "sqlite", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

// Record implements Store.
func (s *SQLite) Record(ctx context.Context, r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (url, source, verdict, probability, enriched, client_ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.URL, r.Source, r.Verdict, r.Probability, r.Enriched, r.ClientIP, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, source, verdict, probability, enriched, client_ip, created_at
		 FROM predictions ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.URL, &r.Source, &r.Verdict, &r.Probability, &r.Enriched, &r.ClientIP, &created); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats implements Store.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var since sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
		        coalesce(sum(CASE WHEN verdict = 'phishing' THEN 1 ELSE 0 END), 0),
		        coalesce(sum(CASE WHEN verdict = 'legitimate' THEN 1 ELSE 0 END), 0),
		        min(created_at)
		 FROM predictions`).Scan(&st.Total, &st.Phishing, &st.Legitimate, &since)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if since.Valid {
		t := time.Unix(0, since.Int64).UTC()
		st.Since = &t
	}
	phishingRate(&st)
	return &st, nil
}

// Prune implements Store.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close sqlite", "err", err)
	}
}
