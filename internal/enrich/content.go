package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/netguard"
)

const (
	defaultMaxBody   = 2 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; phishguard/1.0)"
	maxRedirects     = 10
)

var (
	onMouseOverPattern = regexp.MustCompile(`onmouseover\s*=\s*["']?\s*window\.status`)
	rightClickPattern  = regexp.MustCompile(`event\.button\s*==\s*2`)
	nullLinks          = map[string]bool{
		"": true, "#": true, "#nothing": true, "#doesnotexist": true, "#null": true,
		"#void": true, "#whatever": true, "#content": true, "javascript:void(0)": true,
		"javascript:void(0);": true, "javascript:;": true, "javascript": true,
	}
)

// ContentOptions configures page fetching.
type ContentOptions struct {
	Timeout   time.Duration
	MaxBody   int64
	UserAgent string
	// Dialer defaults to a netguard.Dialer that refuses private targets.
	Dialer *netguard.Dialer
}

// Content fetches the page behind a URL and fills the page-derived features.
type Content struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

// NewContent builds a content enricher.
func NewContent(opts ContentOptions) *Content {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &netguard.Dialer{Timeout: opts.Timeout}
	}
	return &Content{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxBody:   opts.MaxBody,
		userAgent: opts.UserAgent,
	}
}

// Name implements Enricher.
func (c *Content) Name() string { return "content" }

// Enrich implements Enricher.
func (c *Content) Enrich(ctx context.Context, raw string, f *features.URLFeatures) error {
	target := strings.TrimSpace(raw)
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	countRedirects(u, resp, f)

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	analyzePage(doc, resp.Request.URL, f)
	return nil
}

// countRedirects walks the redirect chain that led to resp.
func countRedirects(origin *url.URL, resp *http.Response, f *features.URLFeatures) {
	base := features.RegistrableDomain(origin.String())
	var hops, external int
	for r := resp.Request; r != nil && r.Response != nil; r = r.Response.Request {
		hops++
		if features.RegistrableDomain(r.URL.String()) != base {
			external++
		}
	}
	f.Redirections = float64(hops)
	f.ExternalRedirections = float64(external)
	if hops > 0 {
		f.RatioIntRedirection = float64(hops-external) / float64(hops)
		f.RatioExtRedirection = float64(external) / float64(hops)
	}
}

type linkClass int

const (
	linkNull linkClass = iota
	linkInternal
	linkExternal
)

type page struct {
	url  *url.URL
	base string // registrable domain of the page
}

func (p page) classify(ref string) linkClass {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if nullLinks[lower] || strings.HasPrefix(lower, "#") || strings.HasPrefix(lower, "javascript:") {
		return linkNull
	}
	u, err := p.url.Parse(ref)
	if err != nil {
		return linkNull
	}
	if u.Host == "" || features.RegistrableDomain(u.String()) == p.base {
		return linkInternal
	}
	return linkExternal
}

// analyzePage fills the HTML-derived features of the page at pageURL.
func analyzePage(doc *goquery.Document, pageURL *url.URL, f *features.URLFeatures) {
	p := page{url: pageURL, base: features.RegistrableDomain(pageURL.String())}
	label := strings.SplitN(p.base, ".", 2)[0]

	var total, internal, external, null int
	tally := func(ref string) linkClass {
		c := p.classify(ref)
		total++
		switch c {
		case linkInternal:
			internal++
		case linkExternal:
			external++
		default:
			null++
		}
		return c
	}

	doc.Find("a[href], area[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		tally(s.AttrOr("href", ""))
	})

	var mediaTotal, mediaInternal, mediaExternal int
	doc.Find("img[src], audio[src], video[src], source[src], embed[src], iframe[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		c := tally(s.AttrOr("src", ""))
		if goquery.NodeName(s) == "script" {
			return
		}
		mediaTotal++
		switch c {
		case linkInternal:
			mediaInternal++
		case linkExternal:
			mediaExternal++
		}
	})

	f.Hyperlinks = float64(total)
	if total > 0 {
		f.RatioIntHyperlinks = float64(internal) / float64(total)
		f.RatioExtHyperlinks = float64(external) / float64(total)
		f.RatioNullHyperlinks = float64(null) / float64(total)
	}
	if mediaTotal > 0 {
		f.RatioIntMedia = 100 * float64(mediaInternal) / float64(mediaTotal)
		f.RatioExtMedia = 100 * float64(mediaExternal) / float64(mediaTotal)
	}

	doc.Find(`link[rel="stylesheet"][href]`).Each(func(_ int, s *goquery.Selection) {
		if p.classify(s.AttrOr("href", "")) == linkExternal {
			f.ExtCSS++
		}
	})

	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if strings.Contains(rel, "icon") && p.classify(s.AttrOr("href", "")) == linkExternal {
			f.ExternalFavicon = 1
		}
	})

	var tagTotal, tagInternal int
	doc.Find("link[href], script[src]").Each(func(_ int, s *goquery.Selection) {
		ref := s.AttrOr("href", s.AttrOr("src", ""))
		tagTotal++
		if p.classify(ref) == linkInternal {
			tagInternal++
		}
	})
	if tagTotal > 0 {
		f.LinksInTags = 100 * float64(tagInternal) / float64(tagTotal)
	}

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action, hasAction := s.Attr("action")
		action = strings.ToLower(strings.TrimSpace(action))
		if !hasAction || action == "" || action == "about:blank" {
			f.SFH = 1
		}
		if strings.HasPrefix(action, "mailto:") || strings.Contains(action, "mail(") {
			f.SubmitEmail = 1
		}
		if s.Find(`input[type="password"]`).Length() > 0 ||
			nullLinks[action] || (hasAction && action != "" && p.classify(action) == linkExternal) {
			f.LoginForm = 1
		}
	})

	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if s.AttrOr("width", "") == "0" || s.AttrOr("height", "") == "0" ||
			s.AttrOr("frameborder", "") == "0" ||
			strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			f.IFrame = 1
		}
	})

	var anchors, unsafe int
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		anchors++
		href := strings.ToLower(strings.TrimSpace(s.AttrOr("href", "")))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript") || strings.HasPrefix(href, "mailto") {
			unsafe++
		}
	})
	if anchors > 0 {
		f.SafeAnchor = 100 * float64(unsafe) / float64(anchors)
	}

	html, _ := doc.Html()
	lowerHTML := strings.ToLower(html)
	f.PopupWindow = boolToFloat(strings.Contains(lowerHTML, "prompt("))
	f.OnMouseOver = boolToFloat(onMouseOverPattern.MatchString(lowerHTML))
	f.RightClick = boolToFloat(rightClickPattern.MatchString(lowerHTML))

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	f.EmptyTitle = boolToFloat(title == "")
	f.DomainInTitle = boolToFloat(label == "" || !strings.Contains(title, label))

	text := strings.ToLower(doc.Text())
	if i := strings.IndexAny(text, "©™®"); i >= 0 && label != "" {
		lo, hi := max(i-50, 0), min(i+50, len(text))
		f.DomainWithCopyright = boolToFloat(!strings.Contains(text[lo:hi], label))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
