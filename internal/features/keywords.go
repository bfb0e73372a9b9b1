package features

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yl2chen/cidranger"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

// Keywords are the lists behind the keyword, brand and reputation features.
type Keywords struct {
	PhishHints     []string `yaml:"phish_hints"`
	Brands         []string `yaml:"brands"`
	Shorteners     []string `yaml:"shorteners"`
	SuspiciousTLDs []string `yaml:"suspicious_tlds"`
	PathExtensions []string `yaml:"path_extensions"`
	ReportedHosts  []string `yaml:"reported_hosts"`
	ReportedRanges []string `yaml:"reported_ranges"`

	brands     map[string]struct{}
	shorteners map[string]struct{}
	tlds       map[string]struct{}
	ranger     cidranger.Ranger
}

var defaultKeywords = func() *Keywords {
	k, err := parseKeywords(defaultKeywordsYAML, nil)
	if err != nil {
		panic("features: embedded keywords: " + err.Error())
	}
	return k
}()

// DefaultKeywords returns the built-in lists.
func DefaultKeywords() *Keywords { return defaultKeywords }

// LoadKeywords reads a keyword YAML file. Lists missing from the file keep
// their built-in values.
func LoadKeywords(path string) (*Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return ParseKeywords(data)
}

// ParseKeywords decodes a keyword YAML document.
func ParseKeywords(data []byte) (*Keywords, error) {
	return parseKeywords(data, defaultKeywords)
}

func parseKeywords(data []byte, fallback *Keywords) (*Keywords, error) {
	var k Keywords
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	if fallback != nil {
		k.fillFrom(fallback)
	}
	if err := k.compile(); err != nil {
		return nil, err
	}
	return &k, nil
}

func (k *Keywords) fillFrom(d *Keywords) {
	if k.PhishHints == nil {
		k.PhishHints = d.PhishHints
	}
	if k.Brands == nil {
		k.Brands = d.Brands
	}
	if k.Shorteners == nil {
		k.Shorteners = d.Shorteners
	}
	if k.SuspiciousTLDs == nil {
		k.SuspiciousTLDs = d.SuspiciousTLDs
	}
	if k.PathExtensions == nil {
		k.PathExtensions = d.PathExtensions
	}
	if k.ReportedHosts == nil {
		k.ReportedHosts = d.ReportedHosts
	}
	if k.ReportedRanges == nil {
		k.ReportedRanges = d.ReportedRanges
	}
}

func (k *Keywords) compile() error {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	set := func(in []string) map[string]struct{} {
		m := make(map[string]struct{}, len(in))
		for _, s := range in {
			m[s] = struct{}{}
		}
		return m
	}

	k.PhishHints = lower(k.PhishHints)
	k.Brands = lower(k.Brands)
	k.Shorteners = lower(k.Shorteners)
	k.SuspiciousTLDs = lower(k.SuspiciousTLDs)
	k.PathExtensions = lower(k.PathExtensions)
	k.ReportedHosts = lower(k.ReportedHosts)

	k.brands = set(k.Brands)
	k.shorteners = set(k.Shorteners)
	k.tlds = set(k.SuspiciousTLDs)

	k.ranger = cidranger.NewPCTrieRanger()
	for _, r := range k.ReportedRanges {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "/") {
			if strings.Contains(r, ":") {
				r += "/128"
			} else {
				r += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(r)
		if err != nil {
			return fmt.Errorf("reported range %q: %w", r, err)
		}
		if err := k.ranger.Insert(cidranger.NewBasicRangerEntry(*ipNet)); err != nil {
			return fmt.Errorf("reported range %q: %w", r, err)
		}
	}
	return nil
}

// IsBrand reports whether label is a listed brand.
func (k *Keywords) IsBrand(label string) bool {
	_, ok := k.brands[label]
	return ok
}

// IsShortener reports whether host is a listed URL shortener.
func (k *Keywords) IsShortener(host string) bool {
	_, ok := k.shorteners[host]
	return ok
}

// IsSuspiciousTLD reports whether tld (without the dot) is listed.
func (k *Keywords) IsSuspiciousTLD(tld string) bool {
	_, ok := k.tlds[tld]
	return ok
}

// IsReportedIP reports whether ip falls in a reported range.
func (k *Keywords) IsReportedIP(ip net.IP) bool {
	if ip == nil || k.ranger == nil {
		return false
	}
	ok, err := k.ranger.Contains(ip)
	return err == nil && ok
}

// IsReportedHost reports whether host equals or is a subdomain of a reported host.
func (k *Keywords) IsReportedHost(host string) bool {
	for _, h := range k.ReportedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
