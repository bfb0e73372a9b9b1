// Package features turns a URL into the fixed-length numeric vector the
// phishing classifier was trained on.
package features

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion identifies the column layout below. Artifacts and schema
// files carry it so a mismatch is caught at load time.
const SchemaVersion = "url-87/v1"

// Count is the number of positions in a Vector.
const Count = 87

// Vector is a feature vector in schema order.
type Vector [Count]float64

// ErrUnknownFeature is returned when a named mapping carries a name the schema does not know.
var ErrUnknownFeature = errors.New("unknown feature")

// Names lists the schema columns in position order. The spelling follows the
// training dataset so named payloads and artifacts line up.
var Names = [Count]string{
	"length_url", "length_hostname", "ip", "nb_dots", "nb_hyphens",
	"nb_at", "nb_qm", "nb_and", "nb_or", "nb_eq",
	"nb_underscore", "nb_tilde", "nb_percent", "nb_slash", "nb_star",
	"nb_colon", "nb_comma", "nb_semicolumn", "nb_dollar", "nb_space",
	"nb_www", "nb_com", "nb_dslash", "http_in_path", "https_token",
	"ratio_digits_url", "ratio_digits_host", "punycode", "port", "tld_in_path",
	"tld_in_subdomain", "abnormal_subdomain", "nb_subdomains", "prefix_suffix", "random_domain",
	"shortening_service", "path_extension", "nb_redirection", "nb_external_redirection", "length_words_raw",
	"char_repeat", "shortest_words_raw", "shortest_word_host", "shortest_word_path", "longest_words_raw",
	"longest_word_host", "longest_word_path", "avg_words_raw", "avg_word_host", "avg_word_path",
	"phish_hints", "domain_in_brand", "brand_in_subdomain", "brand_in_path", "suspecious_tld",
	"statistical_report", "nb_hyperlinks", "ratio_intHyperlinks", "ratio_extHyperlinks", "ratio_nullHyperlinks",
	"nb_extCSS", "ratio_intRedirection", "ratio_extRedirection", "ratio_intErrors", "ratio_extErrors",
	"login_form", "external_favicon", "links_in_tags", "submit_email", "ratio_intMedia",
	"ratio_extMedia", "sfh", "iframe", "popup_window", "safe_anchor",
	"onmouseover", "right_clic", "empty_title", "domain_in_title", "domain_with_copyright",
	"whois_registered_domain", "domain_registration_length", "domain_age", "web_traffic", "dns_record",
	"google_index", "page_rank",
}

var index = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// Index returns the position of a named column.
func Index(name string) (int, bool) {
	i, ok := index[name]
	return i, ok
}

// FromMap builds a Vector from a name->value mapping. Absent names stay 0;
// names outside the schema are rejected.
func FromMap(m map[string]float64) (Vector, error) {
	var v Vector
	var unknown []string
	for name, val := range m {
		i, ok := index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v[i] = val
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Vector{}, fmt.Errorf("%w: %s", ErrUnknownFeature, strings.Join(unknown, ", "))
	}
	return v, nil
}

// Map returns the vector as a name->value mapping.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Count)
	for i, n := range Names {
		m[n] = v[i]
	}
	return m
}

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// CheckNames reports whether names matches the schema exactly, in order.
func CheckNames(names []string) error {
	if len(names) != Count {
		return fmt.Errorf("schema has %d features, got %d", Count, len(names))
	}
	for i, n := range names {
		if n != Names[i] {
			return fmt.Errorf("feature %d: want %q, got %q", i, Names[i], n)
		}
	}
	return nil
}
