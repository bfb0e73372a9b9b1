package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
)

type recentStore struct {
	store.Nop
	records []store.Record
}

func (s recentStore) Recent(context.Context, int) ([]store.Record, error) { return s.records, nil }

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestManagerHydratesAndRelays(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := sse.NewHub(logger)
	st := recentStore{records: []store.Record{
		{ID: 2, URL: "http://b.example", Verdict: "phishing"},
		{ID: 1, URL: "http://a.example", Verdict: "legitimate"},
	}}
	m := NewManager(hub, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	require.Eventually(t, func() bool { return hub.SubscriberCount(sse.TopicVerdicts) == 1 }, time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(m.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "stats", read().Type)
	first := read()
	assert.Equal(t, "verdict", first.Type)
	assert.Contains(t, string(first.Data), "a.example")
	assert.Contains(t, string(read().Data), "b.example")

	require.Eventually(t, func() bool { return m.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(sse.TopicVerdicts, sse.Event{Type: "verdict", Data: []byte(`{"url":"http://c.example"}`)})

	live := read()
	assert.Equal(t, "verdict", live.Type)
	assert.JSONEq(t, `{"url":"http://c.example"}`, string(live.Data))
}
