// Package predict turns prediction requests into verdicts: it resolves the
// feature vector, runs the model and fans the outcome out to the audit log
// and live stream.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phishguard/phishguard-go/internal/enrich"
	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
)

// ErrInvalidInput marks requests the caller must fix.
var ErrInvalidInput = errors.New("invalid input")

// DefaultMaxBatch bounds PredictBatch when Options.MaxBatch is unset.
const DefaultMaxBatch = 100

const batchWorkers = 8

// Request is one prediction request. Exactly one of URL or Features is set.
type Request struct {
	URL             string
	Features        map[string]float64
	Enrich          bool
	IncludeFeatures bool
	ClientIP        string
}

// Options wires a Service. Model is required; the rest is optional.
type Options struct {
	Model     *model.Model
	Extractor *features.Extractor
	Chain     *enrich.Chain
	Store     store.Store
	Hub       *sse.Hub
	Logger    *slog.Logger
	MaxBatch  int
}

// Service resolves requests to verdicts. It is safe for concurrent use.
type Service struct {
	model     *model.Model
	extractor *features.Extractor
	chain     *enrich.Chain
	store     store.Store
	hub       *sse.Hub
	logger    *slog.Logger
	maxBatch  int
}

// New creates a prediction service.
func New(opts Options) *Service {
	s := &Service{
		model:     opts.Model,
		extractor: opts.Extractor,
		chain:     opts.Chain,
		store:     opts.Store,
		hub:       opts.Hub,
		logger:    opts.Logger,
		maxBatch:  opts.MaxBatch,
	}
	if s.extractor == nil {
		s.extractor = features.NewExtractor(nil)
	}
	if s.store == nil {
		s.store = store.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	return s
}

// Model returns the loaded model.
func (s *Service) Model() *model.Model { return s.model }

// MaxBatch is the largest accepted batch.
func (s *Service) MaxBatch() int { return s.maxBatch }

// EnrichmentAvailable reports whether any enricher is configured.
func (s *Service) EnrichmentAvailable() bool { return s.chain.Len() > 0 }

// Predict validates req, resolves its vector and runs the model.
func (s *Service) Predict(ctx context.Context, req Request) (*Result, error) {
	hasURL := strings.TrimSpace(req.URL) != ""
	switch {
	case hasURL && req.Features != nil:
		return nil, fmt.Errorf("%w: provide either url or features, not both", ErrInvalidInput)
	case !hasURL && req.Features == nil:
		return nil, fmt.Errorf("%w: url or features is required", ErrInvalidInput)
	}

	start := time.Now()
	vec, enriched, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	pred, err := s.model.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	res := &Result{
		URL:         req.URL,
		Prediction:  string(pred.Verdict),
		Probability: pred.Probability,
		Schema:      s.model.Schema(),
		Enriched:    enriched,
		Vector:      vec,
	}
	if req.IncludeFeatures {
		res.Features = vec.Map()
	}

	source := "url"
	if !hasURL {
		source = "features"
	}
	s.logger.Debug("prediction",
		"source", source,
		"prediction", res.Prediction,
		"probability", res.Probability,
		"enriched", enriched,
		"elapsed", time.Since(start))
	s.emit(ctx, &store.Record{
		URL:         req.URL,
		Source:      source,
		Verdict:     res.Prediction,
		Probability: res.Probability,
		Enriched:    enriched,
		ClientIP:    req.ClientIP,
	})
	return res, nil
}

// PredictBatch predicts each URL concurrently. Item failures are reported
// per item; only an empty or oversized batch fails the whole call.
func (s *Service) PredictBatch(ctx context.Context, urls []string, clientIP string) ([]BatchItem, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: urls must not be empty", ErrInvalidInput)
	}
	if len(urls) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit of %d", ErrInvalidInput, len(urls), s.maxBatch)
	}

	items := make([]BatchItem, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for i, u := range urls {
		g.Go(func() error {
			items[i].URL = u
			res, err := s.Predict(gctx, Request{URL: u, ClientIP: clientIP})
			if err != nil {
				items[i].Error = itemError(err)
				return nil
			}
			items[i].Prediction = res.Prediction
			p := res.Probability
			items[i].Probability = &p
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func (s *Service) resolve(ctx context.Context, req Request) (features.Vector, bool, error) {
	if req.Features != nil {
		v, err := features.FromMap(req.Features)
		if err != nil {
			return v, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return v, false, nil
	}

	f := s.extractor.Extract(req.URL)
	if !req.Enrich || s.chain.Len() == 0 {
		return f.Vector(), false, nil
	}
	v, err := s.chain.Enrich(ctx, req.URL, f)
	if err != nil {
		s.logger.Warn("enrichment incomplete", "url", req.URL, "err", err)
	}
	return v, true, nil
}

// emit records and publishes a verdict. Failures are logged only.
func (s *Service) emit(ctx context.Context, rec *store.Record) {
	if err := s.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("record prediction failed", "err", err)
	}
	if s.hub == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("marshal verdict event", "err", err)
		return
	}
	s.hub.Publish(sse.TopicVerdicts, sse.Event{Type: "verdict", Data: data})
}

func itemError(err error) string {
	msg := err.Error()
	if errors.Is(err, ErrInvalidInput) {
		msg = strings.TrimPrefix(msg, ErrInvalidInput.Error()+": ")
	}
	return msg
}
