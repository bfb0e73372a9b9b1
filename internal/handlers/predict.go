package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
	"github.com/phishguard/phishguard-go/internal/predict"
	"github.com/phishguard/phishguard-go/internal/ratelimit"
	"github.com/phishguard/phishguard-go/internal/review"
)

// DefaultMaxBody caps request bodies when no limit is configured.
const DefaultMaxBody = 64 << 10

// PredictHandler serves the public prediction API.
type PredictHandler struct {
	svc      *predict.Service
	reviewer *review.Reviewer
	limiter  *ratelimit.Limiter
	maxBody  int64
	logger   *slog.Logger
}

// NewPredictHandler creates a new PredictHandler. reviewer may be nil.
func NewPredictHandler(svc *predict.Service, reviewer *review.Reviewer, limiter *ratelimit.Limiter, maxBody int64, logger *slog.Logger) *PredictHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &PredictHandler{svc: svc, reviewer: reviewer, limiter: limiter, maxBody: maxBody, logger: logger}
}

type predictRequest struct {
	URL             string             `json:"url"`
	Features        map[string]float64 `json:"features"`
	Enrich          bool               `json:"enrich"`
	IncludeFeatures bool               `json:"include_features"`
}

type legacyResponse struct {
	URL        string `json:"url,omitempty"`
	Prediction string `json:"prediction"`
}

// Legacy handles POST /predict. The body is either {"url": "..."} or a flat
// mapping of feature names to numbers; the response carries only the verdict.
func (ph *PredictHandler) Legacy(w http.ResponseWriter, r *http.Request) {
	if ph.limiter.Check(w, r, "predict") {
		return
	}

	var body map[string]json.RawMessage
	if err := decodeBody(w, r, ph.maxBody, &body, false); err != nil {
		badBody(w, err)
		return
	}
	if body == nil {
		jsonError(w, "body must be a JSON object", http.StatusBadRequest)
		return
	}

	req := predict.Request{ClientIP: clientIP(r)}
	if raw, ok := body["url"]; ok {
		if err := json.Unmarshal(raw, &req.URL); err != nil {
			jsonError(w, "url must be a string", http.StatusBadRequest)
			return
		}
		delete(body, "url")
	}
	if len(body) > 0 {
		m, err := numericMap(body)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Features = m
	}

	res, err := ph.svc.Predict(r.Context(), req)
	if err != nil {
		ph.fail(w, err)
		return
	}
	writeJSON(w, legacyResponse{URL: res.URL, Prediction: res.Prediction})
}

// Predict handles POST /v1/predict.
func (ph *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if ph.limiter.Check(w, r, "predict") {
		return
	}

	var body predictRequest
	if err := decodeBody(w, r, ph.maxBody, &body, true); err != nil {
		badBody(w, err)
		return
	}

	res, err := ph.svc.Predict(r.Context(), predict.Request{
		URL:             body.URL,
		Features:        body.Features,
		Enrich:          body.Enrich,
		IncludeFeatures: body.IncludeFeatures,
		ClientIP:        clientIP(r),
	})
	if err != nil {
		ph.fail(w, err)
		return
	}
	writeJSON(w, res)
}

// Batch handles POST /v1/predict/batch.
func (ph *PredictHandler) Batch(w http.ResponseWriter, r *http.Request) {
	if ph.limiter.Check(w, r, "batch") {
		return
	}

	var body struct {
		URLs []string `json:"urls"`
	}
	if err := decodeBody(w, r, ph.maxBody, &body, true); err != nil {
		badBody(w, err)
		return
	}

	items, err := ph.svc.PredictBatch(r.Context(), body.URLs, clientIP(r))
	if err != nil {
		ph.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"results": items})
}

// Explain handles POST /v1/explain: a prediction plus a short rationale
// from Claude.
func (ph *PredictHandler) Explain(w http.ResponseWriter, r *http.Request) {
	if !ph.reviewer.Enabled() {
		jsonError(w, "explanations are not configured", http.StatusServiceUnavailable)
		return
	}
	if ph.limiter.Check(w, r, "explain") {
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(w, r, ph.maxBody, &body, true); err != nil {
		badBody(w, err)
		return
	}
	if body.URL == "" {
		jsonError(w, "url is required", http.StatusBadRequest)
		return
	}

	res, err := ph.svc.Predict(r.Context(), predict.Request{URL: body.URL, ClientIP: clientIP(r)})
	if err != nil {
		ph.fail(w, err)
		return
	}
	text := ph.reviewer.Review(r.Context(), body.URL, model.Prediction{
		Verdict:     model.Verdict(res.Prediction),
		Probability: res.Probability,
	}, res.Vector)

	writeJSON(w, struct {
		*predict.Result
		Review string `json:"review"`
	}{res, text})
}

// Schema handles GET /v1/schema.
func (ph *PredictHandler) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"schema":   features.SchemaVersion,
		"features": features.Names[:],
	})
}

// Healthz handles GET /healthz.
func (ph *PredictHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	m := ph.svc.Model()
	writeJSON(w, map[string]any{
		"status":     "ok",
		"schema":     m.Schema(),
		"trees":      m.NumTrees(),
		"enrichment": ph.svc.EnrichmentAvailable(),
		"review":     ph.reviewer.Enabled(),
	})
}

func (ph *PredictHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, predict.ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrDimension):
		ph.logger.Error("feature schema mismatch at prediction time", "err", err)
		jsonError(w, "model and feature schema disagree: "+err.Error(), http.StatusInternalServerError)
	default:
		ph.logger.Error("prediction failed", "err", err)
		jsonError(w, "prediction failed", http.StatusInternalServerError)
	}
}

// numericMap decodes every value of body as a number, naming the first
// offending key in sorted order.
func numericMap(body map[string]json.RawMessage) (map[string]float64, error) {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]float64, len(body))
	for _, k := range keys {
		var v float64
		if err := json.Unmarshal(body[k], &v); err != nil {
			return nil, fmt.Errorf("feature %q must be a number", k)
		}
		out[k] = v
	}
	return out, nil
}
