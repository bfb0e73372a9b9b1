package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/netguard"
)

const shopPage = `<html><head><title>Example Shop</title>
<link rel="stylesheet" href="https://cdn.evil.net/a.css">
<link rel="icon" href="https://evil.net/favicon.ico">
<script src="/app.js"></script>
</head><body>
<a href="/home">home</a>
<a href="https://example.com/about">about</a>
<a href="https://evil.net/x">x</a>
<a href="#">null</a>
<img src="/logo.png"><img src="https://evil.net/i.png">
<form action="https://evil.net/collect"><input type="password" name="p"></form>
<iframe src="/frame" width="0" height="0"></iframe>
</body></html>`

func analyze(t *testing.T, pageURL, html string) features.URLFeatures {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	u, err := url.Parse(pageURL)
	require.NoError(t, err)
	var f features.URLFeatures
	analyzePage(doc, u, &f)
	return f
}

func TestAnalyzePageLinks(t *testing.T) {
	f := analyze(t, "https://shop.example.com/login", shopPage)

	assert.Equal(t, 10.0, f.Hyperlinks)
	assert.InDelta(t, 0.5, f.RatioIntHyperlinks, 1e-9)
	assert.InDelta(t, 0.4, f.RatioExtHyperlinks, 1e-9)
	assert.InDelta(t, 0.1, f.RatioNullHyperlinks, 1e-9)
	assert.InDelta(t, 200.0/3.0, f.RatioIntMedia, 1e-9)
	assert.InDelta(t, 100.0/3.0, f.RatioExtMedia, 1e-9)
	assert.Equal(t, 1.0, f.ExtCSS)
	assert.Equal(t, 1.0, f.ExternalFavicon)
	assert.InDelta(t, 100.0/3.0, f.LinksInTags, 1e-9)
	assert.Equal(t, 25.0, f.SafeAnchor)
}

func TestAnalyzePageForms(t *testing.T) {
	f := analyze(t, "https://shop.example.com/login", shopPage)
	assert.Equal(t, 1.0, f.LoginForm)
	assert.Equal(t, 0.0, f.SFH)
	assert.Equal(t, 0.0, f.SubmitEmail)
	assert.Equal(t, 1.0, f.IFrame)
	assert.Equal(t, 0.0, f.EmptyTitle)
	assert.Equal(t, 0.0, f.DomainInTitle)

	f = analyze(t, "https://example.com/", `<form action="mailto:x@example.com"></form><form></form>`)
	assert.Equal(t, 1.0, f.SubmitEmail)
	assert.Equal(t, 1.0, f.SFH)
}

func TestAnalyzePageScripts(t *testing.T) {
	html := `<html><body onload="prompt('pin')">
<a onmouseover="window.status='https://bank.com'" href="/">x</a>
<script>if (event.button == 2) { return false; }</script>
<p>` + strings.Repeat("lorem ", 20) + `© 2024 Other Corp</p></body></html>`
	f := analyze(t, "https://bank.example.com/", html)
	assert.Equal(t, 1.0, f.PopupWindow)
	assert.Equal(t, 1.0, f.OnMouseOver)
	assert.Equal(t, 1.0, f.RightClick)
	assert.Equal(t, 1.0, f.EmptyTitle)
	assert.Equal(t, 1.0, f.DomainInTitle)
	assert.Equal(t, 1.0, f.DomainWithCopyright)
}

func TestContentFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title></title></head><body><a href="/a">a</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewContent(ContentOptions{Timeout: 5 * time.Second, Dialer: &netguard.Dialer{AllowPrivate: true}})
	var f features.URLFeatures
	require.NoError(t, c.Enrich(context.Background(), srv.URL+"/start", &f))
	assert.Equal(t, 1.0, f.Redirections)
	assert.Equal(t, 0.0, f.ExternalRedirections)
	assert.Equal(t, 1.0, f.RatioIntRedirection)
	assert.Equal(t, 1.0, f.Hyperlinks)
	assert.Equal(t, 1.0, f.EmptyTitle)
}

func TestContentRefusesPrivateTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	c := NewContent(ContentOptions{Timeout: 2 * time.Second})
	var f features.URLFeatures
	err := c.Enrich(context.Background(), srv.URL, &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	assert.Error(t, c.Enrich(context.Background(), "ftp://example.com/x", &f))
}

func startDNS(t *testing.T, h dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: h, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSEnricher(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}
		switch {
		case q.Qtype == dns.TypeNS && q.Name == "example.test.":
			m.Answer = append(m.Answer, &dns.NS{Hdr: hdr, Ns: "ns1.example.test."})
		case q.Qtype == dns.TypeA && q.Name == "www.example.test.":
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: net.ParseIP("146.112.61.108")})
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	d := NewDNS(addr, 2*time.Second, nil)

	var f features.URLFeatures
	require.NoError(t, d.Enrich(context.Background(), "http://www.example.test/", &f))
	assert.Equal(t, 0.0, f.DNSRecord)
	assert.Equal(t, 1.0, f.StatisticalReport)

	f = features.URLFeatures{}
	require.NoError(t, d.Enrich(context.Background(), "http://missing.test/", &f))
	assert.Equal(t, 1.0, f.DNSRecord)
	assert.Equal(t, 0.0, f.StatisticalReport)

	f = features.URLFeatures{IP: 1}
	require.NoError(t, d.Enrich(context.Background(), "http://10.0.0.1/", &f))
	assert.Equal(t, 0.0, f.DNSRecord)
}

type fakeEnricher struct {
	name string
	fn   func(f *features.URLFeatures) error
}

func (e fakeEnricher) Name() string { return e.name }

func (e fakeEnricher) Enrich(_ context.Context, _ string, f *features.URLFeatures) error {
	return e.fn(f)
}

func TestChainMergesAndIsolatesFailures(t *testing.T) {
	chain := NewChain(time.Second, nil,
		fakeEnricher{"dns", func(f *features.URLFeatures) error { f.DNSRecord = 1; return nil }},
		fakeEnricher{"content", func(f *features.URLFeatures) error { f.Hyperlinks = 7; return nil }},
		fakeEnricher{"broken", func(f *features.URLFeatures) error {
			f.PageRank = 9
			return errors.New("boom")
		}},
	)
	assert.Equal(t, 3, chain.Len())

	base := features.URLFeatures{LengthURL: 20}
	v, err := chain.Enrich(context.Background(), "http://example.com", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")

	m := v.Map()
	assert.Equal(t, 20.0, m["length_url"])
	assert.Equal(t, 1.0, m["dns_record"])
	assert.Equal(t, 7.0, m["nb_hyperlinks"])
	assert.Equal(t, 0.0, m["page_rank"])

	var empty *Chain
	v, err = empty.Enrich(context.Background(), "x", base)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v[0])
}
