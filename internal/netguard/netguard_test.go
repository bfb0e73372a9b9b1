package netguard

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.5", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fd00::1", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlocked(net.ParseIP(tt.ip)))
		})
	}
	assert.True(t, IsBlocked(nil))
}

func TestDialerRefusesPrivateLiteral(t *testing.T) {
	d := &Dialer{}
	_, err := d.DialContext(context.Background(), "tcp", "127.0.0.1:80")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	_, err = d.DialContext(context.Background(), "tcp", "no-port")
	assert.Error(t, err)
}
