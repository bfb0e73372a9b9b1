// Package store keeps an audit log of verdicts. Only the verdict and request
// metadata are written; feature vectors are never persisted.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NotifyChannel is the Postgres NOTIFY channel carrying new records.
const NotifyChannel = "prediction_stream"

// Record is one logged prediction.
type Record struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source"` // "url" or "features"
	Verdict     string    `json:"prediction"`
	Probability float64   `json:"probability"`
	Enriched    bool      `json:"enriched"`
	ClientIP    string    `json:"client_ip,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats aggregates the log.
type Stats struct {
	Total        int64      `json:"total"`
	Phishing     int64      `json:"phishing"`
	Legitimate   int64      `json:"legitimate"`
	PhishingRate float64    `json:"phishing_rate"`
	Since        *time.Time `json:"since,omitempty"`
}

// MaxNotifyURL caps the URL carried in a Notification. Postgres rejects
// NOTIFY payloads of 8000 bytes or more, and JSON escaping can grow each
// byte to six.
const MaxNotifyURL = 1024

// Notification is the payload published on NotifyChannel.
type Notification struct {
	Instance     string `json:"instance"`
	Record       Record `json:"record"`
	URLTruncated bool   `json:"url_truncated,omitempty"`
}

// NewNotification builds the NOTIFY payload for r, cutting the URL to
// MaxNotifyURL bytes on a rune boundary.
func NewNotification(instance string, r Record) Notification {
	n := Notification{Instance: instance, Record: r}
	if len(r.URL) > MaxNotifyURL {
		cut := MaxNotifyURL
		for cut > 0 && !utf8.RuneStart(r.URL[cut]) {
			cut--
		}
		n.Record.URL = r.URL[:cut]
		n.URLTruncated = true
	}
	return n
}

// Store is the audit log backend.
type Store interface {
	Record(ctx context.Context, r *Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Stats(ctx context.Context) (*Stats, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close()
}

// Open picks a backend from the DSN: postgres:// or postgresql:// for
// Postgres, sqlite: or file: for SQLite, empty for no store.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (Store, error) {
	switch {
	case dsn == "":
		return Nop{}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pg, err := OpenPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"):
		path := dsn
		if strings.HasPrefix(dsn, "sqlite:") {
			path = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
		}
		lite, err := OpenSQLite(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unsupported store dsn %q", redact(dsn))
	}
}

// RetentionLoop prunes records older than retention once an hour.
func RetentionLoop(s Store, retention time.Duration, logger *slog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			n, err := s.Prune(ctx, time.Now().Add(-retention))
			if err != nil && ctx.Err() == nil {
				logger.Error("prune predictions failed", "err", err)
			} else if n > 0 {
				logger.Info("pruned predictions", "count", n)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, *Record) error { return nil }
func (Nop) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (Nop) Stats(context.Context) (*Stats, error) { return &Stats{}, nil }
func (Nop) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (Nop) Close() {}

func phishingRate(s *Stats) {
	if s.Total > 0 {
		s.PhishingRate = float64(s.Phishing) / float64(s.Total)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func newInstanceID() string { return uuid.NewString() }

// redact hides a password in a DSN for logging.
func redact(dsn string) string {
	at := strings.LastIndexByte(dsn, '@')
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if c := strings.IndexByte(creds, ':'); c >= 0 {
		return dsn[:scheme+3] + creds[:c] + ":***" + dsn[at:]
	}
	return dsn
}
