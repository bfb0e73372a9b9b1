package features

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// parsedURL holds the pieces of a URL the extractor looks at. Every field may
// be empty; nothing here fails on malformed input.
type parsedURL struct {
	raw       string
	scheme    string
	rest      string // raw with "scheme://" removed
	host      string // lower-cased, no userinfo, port or brackets
	hasPort   bool
	path      string
	pathQuery string // lower-cased path, query and fragment
	suffix    string // public suffix, e.g. "co.uk"
	domain    string // registrable label, e.g. "example"
	subdomain string
	ip        net.IP
	ipLiteral bool
}

var (
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*$`)
	hexIPPattern  = regexp.MustCompile(`^(0x[0-9a-f]{1,2}\.){3}0x[0-9a-f]{1,2}$|^0x[0-9a-f]{1,8}$`)
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
)

func parseURL(raw string) parsedURL {
	p := parsedURL{raw: raw}
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "://"); i > 0 && schemePattern.MatchString(s[:i]) {
		p.scheme = strings.ToLower(s[:i])
		s = s[i+3:]
	}
	p.rest = s

	authority, tail := s, ""
	if j := strings.IndexAny(s, "/?#"); j >= 0 {
		authority, tail = s[:j], s[j:]
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		authority = authority[at+1:]
	}

	host := authority
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end > 0 {
			after := host[end+1:]
			host = host[1:end]
			p.hasPort = strings.HasPrefix(after, ":") && digitsPattern.MatchString(after[1:])
		}
	} else if c := strings.LastIndexByte(host, ':'); c >= 0 {
		p.hasPort = digitsPattern.MatchString(host[c+1:])
		host = host[:c]
	}
	p.host = strings.TrimSuffix(strings.ToLower(host), ".")

	p.path = tail
	if k := strings.IndexAny(tail, "?#"); k >= 0 {
		p.path = tail[:k]
	}
	p.pathQuery = strings.ToLower(tail)

	p.ip, p.ipLiteral = parseHostIP(p.host)
	if !p.ipLiteral {
		p.splitDomain()
	}
	return p
}

// splitDomain fills suffix, domain and subdomain from the public suffix list.
func (p *parsedURL) splitDomain() {
	if p.host == "" {
		return
	}
	suffix, _ := publicsuffix.PublicSuffix(p.host)
	p.suffix = suffix
	if suffix == p.host || !strings.HasSuffix(p.host, "."+suffix) {
		return
	}
	rest := strings.TrimSuffix(p.host, "."+suffix)
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		p.domain = rest[i+1:]
		p.subdomain = rest[:i]
	} else {
		p.domain = rest
	}
}

// parseHostIP recognises dotted, hex and bare-integer IPv4 forms plus IPv6.
// The returned IP is nil for the hex form when it cannot be decoded.
func parseHostIP(host string) (net.IP, bool) {
	if host == "" {
		return nil, false
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, true
	}
	if hexIPPattern.MatchString(host) {
		return hexToIP(host), true
	}
	if digitsPattern.MatchString(host) && len(host) <= 10 {
		n, err := strconv.ParseUint(host, 10, 32)
		if err == nil {
			return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n)), true
		}
	}
	return nil, false
}

func hexToIP(host string) net.IP {
	parts := strings.Split(host, ".")
	if len(parts) == 1 {
		n, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
		if err != nil {
			return nil
		}
		return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	var b [4]byte
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimPrefix(part, "0x"), 16, 8)
		if err != nil {
			return nil
		}
		b[i] = byte(n)
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}
