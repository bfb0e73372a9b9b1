package features

import (
	"math"
	"regexp"
	"strings"
)

var abnormalSubdomainPattern = regexp.MustCompile(`(http[s]?://(w[w]?|\d))([w]?(\d|-))`)

// Extractor computes the lexical features of a URL. It is safe for
// concurrent use; it holds only read-only keyword lists.
type Extractor struct {
	kw *Keywords
}

// NewExtractor returns an Extractor using kw, or the built-in lists when kw is nil.
func NewExtractor(kw *Keywords) *Extractor {
	if kw == nil {
		kw = DefaultKeywords()
	}
	return &Extractor{kw: kw}
}

var defaultExtractor = NewExtractor(nil)

// Extract maps any string to a vector using the built-in keyword lists.
func Extract(raw string) Vector {
	f := defaultExtractor.Extract(raw)
	return f.Vector()
}

// Keywords returns the lists the extractor matches against.
func (e *Extractor) Keywords() *Keywords { return e.kw }

// Extract never fails: malformed input yields zeros for whatever could not be derived.
func (e *Extractor) Extract(raw string) URLFeatures {
	p := parseURL(raw)
	lowerRaw := strings.ToLower(raw)

	var f URLFeatures
	f.LengthURL = float64(len(raw))
	f.LengthHostname = float64(len(p.host))
	f.IP = boolToFloat(p.ipLiteral)

	f.Dots = count(raw, ".")
	f.Hyphens = count(raw, "-")
	f.At = count(raw, "@")
	f.QuestionMarks = count(raw, "?")
	f.Ampersands = count(raw, "&")
	f.Pipes = count(raw, "|")
	f.Equals = count(raw, "=")
	f.Underscores = count(raw, "_")
	f.Tildes = count(raw, "~")
	f.Percents = count(raw, "%")
	f.Slashes = count(raw, "/")
	f.Stars = count(raw, "*")
	f.Colons = count(raw, ":")
	f.Commas = count(raw, ",")
	f.Semicolons = count(raw, ";")
	f.Dollars = count(raw, "$")
	f.Spaces = count(raw, " ")

	rawWords := splitWords(strings.ToLower(p.rest), "/")
	hostWords := splitWords(p.host, ".")
	pathWords := splitWords(p.path, "/")

	for _, w := range rawWords {
		if strings.Contains(w, "www") {
			f.WWW = 1
			break
		}
	}
	f.Com = boolToFloat(strings.Contains(lowerRaw, ".com"))
	f.DoubleSlash = boolToFloat(strings.LastIndex(raw, "//") > 6)
	f.HTTPInPath = count(p.pathQuery, "http")
	f.HTTPS = boolToFloat(p.scheme == "https")
	f.RatioDigitsURL = ratio(digits(raw), len(raw))
	f.RatioDigitsHost = ratio(digits(p.host), len(p.host))
	for _, label := range hostWords {
		if strings.HasPrefix(label, "xn--") {
			f.Punycode = 1
			break
		}
	}
	f.Port = boolToFloat(p.hasPort)
	if p.suffix != "" {
		f.TLDInPath = boolToFloat(strings.Contains(p.pathQuery, "."+p.suffix))
		f.TLDInSubdomain = boolToFloat(p.subdomain != "" &&
			strings.Contains("."+p.subdomain+".", "."+p.suffix+"."))
	}
	f.AbnormalSubdomain = boolToFloat(abnormalSubdomainPattern.MatchString(lowerRaw))
	f.Subdomains = math.Max(count(p.host, ".")-1, 0)
	f.PrefixSuffix = boolToFloat(strings.Contains(p.domain, "-"))
	f.RandomDomain = boolToFloat(looksRandom(p.domain))
	f.Shortener = boolToFloat(e.kw.IsShortener(p.host) ||
		(p.domain != "" && e.kw.IsShortener(p.domain+"."+p.suffix)))
	lowerPath := strings.ToLower(p.path)
	for _, ext := range e.kw.PathExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			f.PathExtension = 1
			break
		}
	}

	raws, hosts, paths := statsOf(rawWords), statsOf(hostWords), statsOf(pathWords)
	f.WordsRaw = float64(len(rawWords))
	f.CharRepeat = float64(charRepeat(rawWords))
	f.ShortestWordRaw, f.LongestWordRaw, f.AvgWordRaw = raws.shortest, raws.longest, raws.avg
	f.ShortestWordHost, f.LongestWordHost, f.AvgWordHost = hosts.shortest, hosts.longest, hosts.avg
	f.ShortestWordPath, f.LongestWordPath, f.AvgWordPath = paths.shortest, paths.longest, paths.avg

	for _, hint := range e.kw.PhishHints {
		f.PhishHints += count(p.pathQuery, hint)
	}
	f.DomainInBrand = boolToFloat(e.kw.IsBrand(p.domain))
	for _, b := range e.kw.Brands {
		if p.subdomain != "" && p.domain != b && strings.Contains(p.subdomain, b) {
			f.BrandInSubdomain = 1
		}
		if !strings.Contains(p.domain, b) && strings.Contains(p.pathQuery, b) {
			f.BrandInPath = 1
		}
	}
	if p.suffix != "" {
		tld := p.suffix[strings.LastIndexByte(p.suffix, '.')+1:]
		f.SuspiciousTLD = boolToFloat(e.kw.IsSuspiciousTLD(tld))
	}
	f.StatisticalReport = boolToFloat(e.kw.IsReportedHost(p.host) ||
		(p.ipLiteral && e.kw.IsReportedIP(p.ip)))

	return f
}

// Host returns the lower-cased hostname the extractor derives from raw.
func Host(raw string) string {
	return parseURL(raw).host
}

// RegistrableDomain returns domain plus public suffix, or the host itself
// when no registrable part can be derived.
func RegistrableDomain(raw string) string {
	p := parseURL(raw)
	if p.domain == "" {
		return p.host
	}
	return p.domain + "." + p.suffix
}

func count(s, sub string) float64 {
	return float64(strings.Count(s, sub))
}

func digits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// looksRandom flags labels with long consonant runs or near-uniform character use.
func looksRandom(label string) bool {
	if label == "" {
		return false
	}
	run := 0
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c >= 'a' && c <= 'z' && !strings.ContainsRune("aeiouy", rune(c)) {
			run++
			if run >= 5 {
				return true
			}
		} else {
			run = 0
		}
	}
	return len(label) >= 12 && entropy(label) >= 3.5
}

// entropy is the Shannon entropy of s in bits per byte.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	var h float64
	total := float64(len(s))
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / total
			h -= p * math.Log2(p)
		}
	}
	return h
}
