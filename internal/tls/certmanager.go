// Package tls serves HTTPS with certificates managed by certmagic.
package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/caddyserver/certmagic"
)

// CertManager obtains and renews certificates for a fixed set of domains.
type CertManager struct {
	domains map[string]struct{}
	list    []string
	logger  *slog.Logger
	cfg     *certmagic.Config
}

// NewCertManager creates a CertManager for domains. Outside production the
// Let's Encrypt staging CA is used.
func NewCertManager(domains []string, email string, production bool, logger *slog.Logger) *CertManager {
	certmagic.DefaultACME.Email = email
	certmagic.DefaultACME.Agreed = true
	if !production {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}

	cm := &CertManager{domains: make(map[string]struct{}, len(domains)), logger: logger}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, dup := cm.domains[d]; !dup {
			cm.domains[d] = struct{}{}
			cm.list = append(cm.list, d)
		}
	}

	cfg := certmagic.NewDefault()
	cfg.OnDemand = &certmagic.OnDemandConfig{
		DecisionFunc: cm.allowCert,
	}
	cm.cfg = cfg
	return cm
}

// allowCert refuses on-demand issuance for names that were not configured,
// so arbitrary SNI values cannot trigger ACME orders.
func (cm *CertManager) allowCert(_ context.Context, name string) error {
	if _, ok := cm.domains[strings.ToLower(name)]; !ok {
		return fmt.Errorf("unknown domain: %s", name)
	}
	return nil
}

// Domains returns the managed domains in configuration order.
func (cm *CertManager) Domains() []string { return cm.list }

// Listen obtains certificates for every domain, then returns a TLS listener
// on the HTTPS port.
func (cm *CertManager) Listen(ctx context.Context) (net.Listener, error) {
	if len(cm.list) == 0 {
		return nil, fmt.Errorf("no TLS domains configured")
	}
	cm.logger.Info("managing certificates", "domains", cm.list)
	if err := cm.cfg.ManageSync(ctx, cm.list); err != nil {
		return nil, fmt.Errorf("manage domains: %w", err)
	}

	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", certmagic.HTTPSPort), cm.cfg.TLSConfig())
	if err != nil {
		return nil, fmt.Errorf("tls listen: %w", err)
	}
	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return ln, nil
}
