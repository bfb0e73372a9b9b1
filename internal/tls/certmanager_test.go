package tls

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertManagerDomains(t *testing.T) {
	cm := NewCertManager([]string{"Phish.Example.com", " ", "phish.example.com", "api.example.com"}, "ops@example.com", false,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, []string{"phish.example.com", "api.example.com"}, cm.Domains())
	assert.NoError(t, cm.allowCert(context.Background(), "PHISH.example.com"))
	assert.Error(t, cm.allowCert(context.Background(), "evil.example.net"))
}

func TestListenRequiresDomains(t *testing.T) {
	cm := NewCertManager(nil, "", false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := cm.Listen(context.Background())
	require.Error(t, err)
}
