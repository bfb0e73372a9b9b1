// Package ws streams verdicts to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Manager tracks active WebSocket connections and relays hub events to them.
type Manager struct {
	mu          sync.RWMutex
	connections map[*websocket.Conn]*sync.Mutex // conn -> write lock
	hub         *sse.Hub
	store       store.Store
	logger      *slog.Logger
}

// NewManager creates a new WebSocket manager.
func NewManager(hub *sse.Hub, s store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		connections: make(map[*websocket.Conn]*sync.Mutex),
		hub:         hub,
		store:       s,
		logger:      logger,
	}
}

// Run relays verdict events from the hub until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	events, cancel := m.hub.Subscribe(sse.TopicVerdicts)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				m.closeAll()
				return
			}
			m.Broadcast(ev)
		}
	}
}

// HandleWS upgrades an HTTP connection to WebSocket and registers it.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	lock := &sync.Mutex{}
	m.hydrate(r.Context(), conn, lock)

	m.mu.Lock()
	m.connections[conn] = lock
	m.mu.Unlock()

	defer m.remove(conn)

	// Clients never send anything we act on; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// ConnectionCount returns the number of open connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) hydrate(ctx context.Context, conn *websocket.Conn, lock *sync.Mutex) {
	if stats, err := m.store.Stats(ctx); err == nil {
		m.send(conn, lock, "stats", stats)
	}

	recent, err := m.store.Recent(ctx, 20)
	if err != nil {
		m.logger.Warn("ws: hydrate recent failed", "err", err)
		return
	}
	// oldest first so clients can append
	for i := len(recent) - 1; i >= 0; i-- {
		m.send(conn, lock, "verdict", recent[i])
	}
}

// Broadcast sends an event to all connected clients and drops the ones
// that fail.
func (m *Manager) Broadcast(ev sse.Event) {
	msg, err := frame(ev.Type, json.RawMessage(ev.Data))
	if err != nil {
		m.logger.Warn("ws: encode event failed", "err", err)
		return
	}

	m.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(m.connections))
	for c, l := range m.connections {
		conns[c] = l
	}
	m.mu.RUnlock()

	for conn, lock := range conns {
		if err := write(conn, lock, msg); err != nil {
			m.remove(conn)
		}
	}
}

func (m *Manager) send(conn *websocket.Conn, lock *sync.Mutex, typ string, data any) {
	msg, err := frame(typ, data)
	if err != nil {
		return
	}
	if err := write(conn, lock, msg); err != nil {
		m.logger.Debug("ws: hydrate write failed", "err", err)
	}
}

func (m *Manager) remove(conn *websocket.Conn) {
	m.mu.Lock()
	_, ok := m.connections[conn]
	delete(m.connections, conn)
	m.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.connections {
		conn.Close()
		delete(m.connections, conn)
	}
}

func frame(typ string, data any) ([]byte, error) {
	return json.Marshal(map[string]any{"type": typ, "data": data})
}

func write(conn *websocket.Conn, lock *sync.Mutex, msg []byte) error {
	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
