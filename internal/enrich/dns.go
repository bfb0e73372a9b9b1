package enrich

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/phishguard/phishguard-go/internal/features"
)

const fallbackResolver = "1.1.1.1:53"

// DNS looks up the registrable domain and fills dns_record. Resolved A
// records are also checked against the reported ranges.
type DNS struct {
	server string
	client *dns.Client
	kw     *features.Keywords
}

// NewDNS builds a DNS enricher. An empty server uses the first nameserver
// in /etc/resolv.conf.
func NewDNS(server string, timeout time.Duration, kw *features.Keywords) *DNS {
	if server == "" {
		server = systemResolver()
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if kw == nil {
		kw = features.DefaultKeywords()
	}
	return &DNS{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
		kw:     kw,
	}
}

func systemResolver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Name implements Enricher.
func (d *DNS) Name() string { return "dns" }

// Enrich implements Enricher.
func (d *DNS) Enrich(ctx context.Context, raw string, f *features.URLFeatures) error {
	if f.IP == 1 {
		return nil
	}
	domain := features.RegistrableDomain(raw)
	if domain == "" {
		return nil
	}

	ns, err := d.query(ctx, domain, dns.TypeNS)
	if err != nil {
		return err
	}
	hasNS := false
	if ns.Rcode == dns.RcodeSuccess {
		for _, rr := range ns.Answer {
			if _, ok := rr.(*dns.NS); ok {
				hasNS = true
				break
			}
		}
	}
	// dataset convention: 1 means no record was found
	f.DNSRecord = boolToFloat(!hasNS)

	host := features.Host(raw)
	a, err := d.query(ctx, host, dns.TypeA)
	if err != nil {
		return err
	}
	for _, rr := range a.Answer {
		if rec, ok := rr.(*dns.A); ok && d.kw.IsReportedIP(rec.A) {
			f.StatisticalReport = 1
		}
	}
	return nil
}

func (d *DNS) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	r, _, err := d.client.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return nil, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], name, err)
	}
	return r, nil
}
