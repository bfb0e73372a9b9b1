// Package enrich fills the page and external features that the lexical
// extractor leaves at zero. Every enricher needs the network, so none run
// unless configured and requested.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phishguard/phishguard-go/internal/features"
)

// Enricher sets a subset of feature fields for a URL.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, raw string, f *features.URLFeatures) error
}

// Chain runs enrichers concurrently under a shared deadline.
type Chain struct {
	enrichers []Enricher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChain returns a chain over the given enrichers.
func NewChain(timeout time.Duration, logger *slog.Logger, enrichers ...Enricher) *Chain {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{enrichers: enrichers, timeout: timeout, logger: logger}
}

// Len is the number of enrichers in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.enrichers)
}

// Enrich runs every enricher on its own copy of base and merges the
// positions each one changed. A failing enricher contributes nothing; the
// joined error is returned for logging only. On overlap the later enricher wins.
func (c *Chain) Enrich(ctx context.Context, raw string, base features.URLFeatures) (features.Vector, error) {
	out := base.Vector()
	if c.Len() == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	errs := make([]error, len(c.enrichers))
	results := make([]*features.URLFeatures, len(c.enrichers))
	var g errgroup.Group
	for i, e := range c.enrichers {
		g.Go(func() error {
			local := base
			start := time.Now()
			if err := e.Enrich(ctx, raw, &local); err != nil {
				errs[i] = fmt.Errorf("%s: %w", e.Name(), err)
				return nil
			}
			results[i] = &local
			c.logger.Debug("enrichment done", "enricher", e.Name(), "elapsed", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	orig := base.Vector()
	for _, r := range results {
		if r == nil {
			continue
		}
		rv := r.Vector()
		for j := range rv {
			if rv[j] != orig[j] {
				out[j] = rv[j]
			}
		}
	}
	return out, errors.Join(errs...)
}
