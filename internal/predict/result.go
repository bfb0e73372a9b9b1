package predict

import "github.com/phishguard/phishguard-go/internal/features"

// Result is the prediction output returned to every caller.
type Result struct {
	URL         string             `json:"url,omitempty"`
	Prediction  string             `json:"prediction"`
	Probability float64            `json:"probability"`
	Schema      string             `json:"schema"`
	Enriched    bool               `json:"enriched,omitempty"`
	Features    map[string]float64 `json:"features,omitempty"`

	Vector features.Vector `json:"-"`
}

// BatchItem is one entry of a batch response. Exactly one of Prediction or
// Error is set.
type BatchItem struct {
	URL         string   `json:"url"`
	Prediction  string   `json:"prediction,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Error       string   `json:"error,omitempty"`
}
