package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, v Vector, name string) float64 {
	t.Helper()
	i, ok := Index(name)
	require.True(t, ok, "unknown feature %s", name)
	return v[i]
}

func TestSchemaShape(t *testing.T) {
	assert.Len(t, Names, Count)
	seen := make(map[string]bool, Count)
	for _, n := range Names {
		assert.False(t, seen[n], "duplicate feature %s", n)
		seen[n] = true
	}
	assert.NoError(t, CheckNames(Names[:]))
	assert.Error(t, CheckNames(Names[:Count-1]))
}

func TestExtractEmptyString(t *testing.T) {
	v := Extract("")
	assert.Len(t, v, Count)
	for i, x := range v {
		assert.Zero(t, x, "feature %s", Names[i])
	}
}

func TestExtractDeterministic(t *testing.T) {
	inputs := []string{
		"",
		"a.b.c",
		"http://www.example.com",
		"https://secure-paypal.com.login.example.tk/signin?user=a&x=1",
		"http://[::1]:8080/a//b",
		"%%%://@@@:::///",
		"javascript:alert(1)",
	}
	for _, in := range inputs {
		assert.Equal(t, Extract(in), Extract(in), in)
	}
}

func TestExtractDots(t *testing.T) {
	assert.Equal(t, 2.0, get(t, Extract("a.b.c"), "nb_dots"))
}

func TestExtractWWWAndScheme(t *testing.T) {
	v := Extract("http://www.example.com")
	assert.Equal(t, 1.0, get(t, v, "nb_www"))
	assert.Equal(t, 0.0, get(t, v, "https_token"))
	assert.Equal(t, 1.0, get(t, v, "nb_com"))
	assert.Equal(t, 15.0, get(t, v, "length_hostname"))
	assert.Equal(t, 1.0, get(t, v, "nb_subdomains"))

	assert.Equal(t, 1.0, get(t, Extract("https://example.org"), "https_token"))
}

func TestExtractIPAndHint(t *testing.T) {
	v := Extract("http://192.168.1.1/login")
	assert.Equal(t, 1.0, get(t, v, "ip"))
	assert.Equal(t, 1.0, get(t, v, "phish_hints"))
	assert.InDelta(t, 8.0/24.0, get(t, v, "ratio_digits_url"), 1e-9)
	assert.InDelta(t, 8.0/11.0, get(t, v, "ratio_digits_host"), 1e-9)
}

func TestExtractIPForms(t *testing.T) {
	tests := []struct {
		url  string
		want float64
	}{
		{"http://10.0.0.1/", 1},
		{"http://[2001:db8::1]/x", 1},
		{"http://0x7f.0x0.0x0.0x1/", 1},
		{"http://3232235777/", 1},
		{"http://example.com/", 0},
		{"http://123.example.com/", 0},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, Extract(tt.url), "ip"))
		})
	}
}

func TestExtractCharacterCounts(t *testing.T) {
	raw := "http://a-b_c.example.com/~user/x?y=1&z=2;w=$3,4*5|6%20 @"
	v := Extract(raw)
	assert.Equal(t, 1.0, get(t, v, "nb_hyphens"))
	assert.Equal(t, 1.0, get(t, v, "nb_underscore"))
	assert.Equal(t, 1.0, get(t, v, "nb_tilde"))
	assert.Equal(t, 1.0, get(t, v, "nb_qm"))
	assert.Equal(t, 1.0, get(t, v, "nb_and"))
	assert.Equal(t, 3.0, get(t, v, "nb_eq"))
	assert.Equal(t, 1.0, get(t, v, "nb_semicolumn"))
	assert.Equal(t, 1.0, get(t, v, "nb_dollar"))
	assert.Equal(t, 1.0, get(t, v, "nb_comma"))
	assert.Equal(t, 1.0, get(t, v, "nb_star"))
	assert.Equal(t, 1.0, get(t, v, "nb_or"))
	assert.Equal(t, 1.0, get(t, v, "nb_percent"))
	assert.Equal(t, 1.0, get(t, v, "nb_space"))
	assert.Equal(t, 1.0, get(t, v, "nb_at"))
	assert.Equal(t, 4.0, get(t, v, "nb_slash"))
	assert.Equal(t, float64(len(raw)), get(t, v, "length_url"))
}

func TestExtractStructure(t *testing.T) {
	v := Extract("https://paypal.com.secure-login.tk:8443/verify/account.exe")
	assert.Equal(t, 1.0, get(t, v, "port"))
	assert.Equal(t, 1.0, get(t, v, "suspecious_tld"))
	assert.Equal(t, 1.0, get(t, v, "prefix_suffix"))
	assert.Equal(t, 1.0, get(t, v, "brand_in_subdomain"))
	assert.Equal(t, 1.0, get(t, v, "path_extension"))
	assert.Equal(t, 0.0, get(t, v, "domain_in_brand"))

	v = Extract("https://www.paypal.com/")
	assert.Equal(t, 1.0, get(t, v, "domain_in_brand"))
	assert.Equal(t, 0.0, get(t, v, "brand_in_subdomain"))

	v = Extract("http://example.com/redirect?to=http://evil.com//x")
	assert.Equal(t, 1.0, get(t, v, "nb_dslash"))
	assert.Equal(t, 1.0, get(t, v, "http_in_path"))
	assert.Equal(t, 1.0, get(t, v, "tld_in_path"))

	v = Extract("http://xn--pypal-4ve.com/")
	assert.Equal(t, 1.0, get(t, v, "punycode"))

	v = Extract("https://bit.ly/3abc")
	assert.Equal(t, 1.0, get(t, v, "shortening_service"))
}

func TestExtractWords(t *testing.T) {
	v := Extract("http://www.example.com/ab/abcd/")
	// raw words: www.example.com, ab, abcd
	assert.Equal(t, 3.0, get(t, v, "length_words_raw"))
	assert.Equal(t, 2.0, get(t, v, "shortest_words_raw"))
	assert.Equal(t, 15.0, get(t, v, "longest_words_raw"))
	assert.InDelta(t, 7.0, get(t, v, "avg_words_raw"), 1e-9)
	// host words: www, example, com
	assert.Equal(t, 3.0, get(t, v, "shortest_word_host"))
	assert.Equal(t, 7.0, get(t, v, "longest_word_host"))
	assert.InDelta(t, 13.0/3.0, get(t, v, "avg_word_host"), 1e-9)
	// path words: ab, abcd
	assert.Equal(t, 2.0, get(t, v, "shortest_word_path"))
	assert.Equal(t, 4.0, get(t, v, "longest_word_path"))
	assert.Equal(t, 3.0, get(t, v, "avg_word_path"))

	v = Extract("http://example.com")
	assert.Zero(t, get(t, v, "shortest_word_path"))
	assert.Zero(t, get(t, v, "avg_word_path"))
}

func TestCharRepeat(t *testing.T) {
	// "aaa": two 2-windows, one 3-window
	assert.Equal(t, 3, charRepeat([]string{"aaa"}))
	assert.Equal(t, 0, charRepeat([]string{"abc", ""}))
}

func TestLooksRandom(t *testing.T) {
	assert.True(t, looksRandom("xkcdqwrt"))
	assert.True(t, looksRandom("a8f3k2m9x7q1"))
	assert.False(t, looksRandom("google"))
	assert.False(t, looksRandom(""))
}

func TestStatisticalReport(t *testing.T) {
	assert.Equal(t, 1.0, get(t, Extract("http://foo.at.ua/x"), "statistical_report"))
	assert.Equal(t, 1.0, get(t, Extract("http://146.112.61.108/"), "statistical_report"))
	assert.Equal(t, 0.0, get(t, Extract("http://example.com/"), "statistical_report"))
}

func TestFromMap(t *testing.T) {
	v, err := FromMap(map[string]float64{"length_url": 54, "ip": 1, "page_rank": 3})
	require.NoError(t, err)
	assert.Equal(t, 54.0, v[0])
	assert.Equal(t, 1.0, v[2])
	assert.Equal(t, 3.0, v[Count-1])
	assert.Zero(t, v[3])

	_, err = FromMap(map[string]float64{"length_url": 1, "bogus": 2})
	assert.ErrorIs(t, err, ErrUnknownFeature)
	assert.Contains(t, err.Error(), "bogus")
}

func TestVectorMapRoundTrip(t *testing.T) {
	v := Extract("https://login.example.co.uk/a")
	back, err := FromMap(v.Map())
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestParseKeywordsOverride(t *testing.T) {
	kw, err := ParseKeywords([]byte("brands: [acme]\n"))
	require.NoError(t, err)
	assert.True(t, kw.IsBrand("acme"))
	assert.False(t, kw.IsBrand("paypal"))
	// lists absent from the document keep defaults
	assert.True(t, kw.IsShortener("bit.ly"))

	e := NewExtractor(kw)
	f := e.Extract("http://acme.example.com/")
	assert.Equal(t, 1.0, f.BrandInSubdomain)

	_, err = ParseKeywords([]byte("reported_ranges: [not-a-cidr]\n"))
	assert.Error(t, err)
}
