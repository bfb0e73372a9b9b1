package features

// URLFeatures holds every schema column under a typed name. Lexical fields are
// filled by the Extractor; page and external fields stay 0 unless an enricher
// or a named payload sets them.
type URLFeatures struct {
	// Lengths and raw character counts
	LengthURL      float64
	LengthHostname float64
	IP             float64
	Dots           float64
	Hyphens        float64
	At             float64
	QuestionMarks  float64
	Ampersands     float64
	Pipes          float64
	Equals         float64
	Underscores    float64
	Tildes         float64
	Percents       float64
	Slashes        float64
	Stars          float64
	Colons         float64
	Commas         float64
	Semicolons     float64
	Dollars        float64
	Spaces         float64

	// Structural flags
	WWW               float64
	Com               float64
	DoubleSlash       float64
	HTTPInPath        float64
	HTTPS             float64
	RatioDigitsURL    float64
	RatioDigitsHost   float64
	Punycode          float64
	Port              float64
	TLDInPath         float64
	TLDInSubdomain    float64
	AbnormalSubdomain float64
	Subdomains        float64
	PrefixSuffix      float64
	RandomDomain      float64
	Shortener         float64
	PathExtension     float64

	// Redirects (page)
	Redirections         float64
	ExternalRedirections float64

	// Word statistics
	WordsRaw         float64
	CharRepeat       float64
	ShortestWordRaw  float64
	ShortestWordHost float64
	ShortestWordPath float64
	LongestWordRaw   float64
	LongestWordHost  float64
	LongestWordPath  float64
	AvgWordRaw       float64
	AvgWordHost      float64
	AvgWordPath      float64

	// Keywords and reputation lists
	PhishHints        float64
	DomainInBrand     float64
	BrandInSubdomain  float64
	BrandInPath       float64
	SuspiciousTLD     float64
	StatisticalReport float64

	// Page content
	Hyperlinks          float64
	RatioIntHyperlinks  float64
	RatioExtHyperlinks  float64
	RatioNullHyperlinks float64
	ExtCSS              float64
	RatioIntRedirection float64
	RatioExtRedirection float64
	RatioIntErrors      float64
	RatioExtErrors      float64
	LoginForm           float64
	ExternalFavicon     float64
	LinksInTags         float64
	SubmitEmail         float64
	RatioIntMedia       float64
	RatioExtMedia       float64
	SFH                 float64
	IFrame              float64
	PopupWindow         float64
	SafeAnchor          float64
	OnMouseOver         float64
	RightClick          float64
	EmptyTitle          float64
	DomainInTitle       float64
	DomainWithCopyright float64

	// External services
	WhoisRegistered    float64
	RegistrationLength float64
	DomainAge          float64
	WebTraffic         float64
	DNSRecord          float64
	GoogleIndex        float64
	PageRank           float64
}

// Vector lays the fields out in schema order.
func (f *URLFeatures) Vector() Vector {
	return Vector{
		f.LengthURL, f.LengthHostname, f.IP, f.Dots, f.Hyphens,
		f.At, f.QuestionMarks, f.Ampersands, f.Pipes, f.Equals,
		f.Underscores, f.Tildes, f.Percents, f.Slashes, f.Stars,
		f.Colons, f.Commas, f.Semicolons, f.Dollars, f.Spaces,
		f.WWW, f.Com, f.DoubleSlash, f.HTTPInPath, f.HTTPS,
		f.RatioDigitsURL, f.RatioDigitsHost, f.Punycode, f.Port, f.TLDInPath,
		f.TLDInSubdomain, f.AbnormalSubdomain, f.Subdomains, f.PrefixSuffix, f.RandomDomain,
		f.Shortener, f.PathExtension, f.Redirections, f.ExternalRedirections, f.WordsRaw,
		f.CharRepeat, f.ShortestWordRaw, f.ShortestWordHost, f.ShortestWordPath, f.LongestWordRaw,
		f.LongestWordHost, f.LongestWordPath, f.AvgWordRaw, f.AvgWordHost, f.AvgWordPath,
		f.PhishHints, f.DomainInBrand, f.BrandInSubdomain, f.BrandInPath, f.SuspiciousTLD,
		f.StatisticalReport, f.Hyperlinks, f.RatioIntHyperlinks, f.RatioExtHyperlinks, f.RatioNullHyperlinks,
		f.ExtCSS, f.RatioIntRedirection, f.RatioExtRedirection, f.RatioIntErrors, f.RatioExtErrors,
		f.LoginForm, f.ExternalFavicon, f.LinksInTags, f.SubmitEmail, f.RatioIntMedia,
		f.RatioExtMedia, f.SFH, f.IFrame, f.PopupWindow, f.SafeAnchor,
		f.OnMouseOver, f.RightClick, f.EmptyTitle, f.DomainInTitle, f.DomainWithCopyright,
		f.WhoisRegistered, f.RegistrationLength, f.DomainAge, f.WebTraffic, f.DNSRecord,
		f.GoogleIndex, f.PageRank,
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
