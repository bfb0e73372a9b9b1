package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres stores records in PostgreSQL and announces each insert with
// NOTIFY so other replicas can stream it.
type Postgres struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	instance string
}

// OpenPostgres connects, pings and runs the embedded migration.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Postgres{pool: pool, logger: logger, instance: newInstanceID()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/postgres.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	s.logger.Info("database migrated", "backend", "postgres")
	return nil
}

// Pool exposes the connection pool for the notification listener.
func (s *Postgres) Pool() *pgxpool.Pool { return s.pool }

// Instance identifies this process in NOTIFY payloads.
func (s *Postgres) Instance() string { return s.instance }

// Record implements Store.
func (s *Postgres) Record(ctx context.Context, r *Record) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO predictions (url, source, verdict, probability, enriched, client_ip)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		r.URL, r.Source, r.Verdict, r.Probability, r.Enriched, r.ClientIP,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}

	payload, err := json.Marshal(NewNotification(s.instance, *r))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		s.logger.Warn("pg_notify failed", "err", err)
	}
	return nil
}

// Recent implements Store.
func (s *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, source, verdict, probability, enriched, client_ip, created_at
		 FROM predictions ORDER BY created_at DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.URL, &r.Source, &r.Verdict, &r.Probability, &r.Enriched, &r.ClientIP, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats implements Store.
func (s *Postgres) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var since *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE verdict = 'phishing'),
		        count(*) FILTER (WHERE verdict = 'legitimate'),
		        min(created_at)
		 FROM predictions`).Scan(&st.Total, &st.Phishing, &st.Legitimate, &since)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	st.Since = since
	phishingRate(&st)
	return &st, nil
}

// Prune implements Store.
func (s *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM predictions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close implements Store.
func (s *Postgres) Close() { s.pool.Close() }
