package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0))
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(3))
	assert.Equal(t, 5*time.Minute, Backoff(20))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLogger(&buf, "info", "text").Info("hello", "k", 1)
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	NewLogger(&buf, "warn", "json").Info("quiet")
	assert.Empty(t, buf.String())
}

func TestRunWithRecoveryRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	go func() {
		RunWithRecovery(ctx, logger, "test", func(ctx context.Context) {
			if calls.Add(1) == 1 {
				panic("first run fails")
			}
			cancel()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithRecovery did not return")
	}
	assert.Equal(t, int32(2), calls.Load())
}

// streamServer returns a server whose handler holds the response open until
// release is closed or the request context ends, and a channel closed once a
// client is streaming from it.
func streamServer(t *testing.T, release <-chan struct{}) (*http.Server, func() error, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connected := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(connected)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})}

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()
	return srv, func() error { return srv.Serve(ln) }, connected
}

func waitConnected(t *testing.T, connected <-chan struct{}) {
	t.Helper()
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
}

func TestServeShutdownEndsOpenStreams(t *testing.T) {
	release := make(chan struct{})
	srv, serve, connected := streamServer(t, release)
	stop := make(chan os.Signal, 1)

	done := make(chan error, 1)
	go func() {
		done <- serveUntil(srv, serve, stop, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), func() { close(release) })
	}()
	waitConnected(t, connected)
	start := time.Now()
	stop <- syscall.SIGTERM

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 3*time.Second)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeShutdownTimeoutIsNotFatal(t *testing.T) {
	srv, serve, connected := streamServer(t, nil)
	stop := make(chan os.Signal, 1)
	var logs bytes.Buffer

	done := make(chan error, 1)
	go func() {
		done <- serveUntil(srv, serve, stop, 200*time.Millisecond, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	}()
	waitConnected(t, connected)
	stop <- syscall.SIGTERM

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Contains(t, logs.String(), "graceful shutdown incomplete")
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}
}
