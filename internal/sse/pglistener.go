package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phishguard/phishguard-go/internal/store"
)

// PGListener relays verdicts recorded by other replicas from PostgreSQL
// NOTIFY into the local hub. Verdicts from this process are already
// published directly and are skipped.
type PGListener struct {
	pool     *pgxpool.Pool
	instance string
	hub      *Hub
	logger   *slog.Logger
}

// NewPGListener creates a listener for the given store's pool.
func NewPGListener(pg *store.Postgres, hub *Hub, logger *slog.Logger) *PGListener {
	return &PGListener{pool: pg.Pool(), instance: pg.Instance(), hub: hub, logger: logger}
}

// Listen blocks until ctx is cancelled or the connection fails. Run it
// inside RunWithRecovery so it reconnects.
func (pl *PGListener) Listen(ctx context.Context) {
	conn, err := pl.pool.Acquire(ctx)
	if err != nil {
		pl.logger.Error("pg-listen: acquire connection failed", "err", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", store.NotifyChannel)); err != nil {
		pl.logger.Error("pg-listen: LISTEN failed", "channel", store.NotifyChannel, "err", err)
		return
	}
	pl.logger.Info("pg-listen: subscribed", "channel", store.NotifyChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pl.logger.Error("pg-listen: notification error", "err", err)
			return
		}
		if event, ok := pl.relay(notification.Payload); ok {
			pl.hub.Publish(TopicVerdicts, event)
		}
	}
}

func (pl *PGListener) relay(payload string) (Event, bool) {
	var n store.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		pl.logger.Warn("pg-listen: unmarshal payload failed", "err", err)
		return Event{}, false
	}
	if n.Instance == pl.instance {
		return Event{}, false
	}
	data, err := json.Marshal(n.Record)
	if err != nil {
		return Event{}, false
	}
	return Event{Type: "verdict", Data: data}, true
}
