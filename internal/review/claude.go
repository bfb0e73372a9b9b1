// Package review asks Claude for a short rationale behind a verdict.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
)

// Fallback is returned when no rationale could be produced.
const Fallback = "Automated review unavailable; the verdict is based on URL features alone."

const systemPrompt = `You review verdicts from a phishing URL classifier. You receive the URL, the verdict, the phishing probability and the non-zero lexical features.
Answer in at most two sentences, naming the strongest signals for the verdict. Do not repeat the feature list and do not speculate about page content you were not given.`

// Options configures the reviewer.
type Options struct {
	APIKey  string
	Model   string
	Bedrock bool
	Timeout time.Duration
	// extra client options, e.g. a base URL in tests
	ClientOptions []option.RequestOption
}

// Reviewer produces rationales. A zero Reviewer is disabled.
type Reviewer struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a reviewer. It is disabled when neither an API key nor AWS
// credentials for Bedrock are available.
func New(ctx context.Context, opts Options, logger *slog.Logger) *Reviewer {
	r := &Reviewer{model: opts.Model, timeout: opts.Timeout, logger: logger}
	if r.timeout == 0 {
		r.timeout = 20 * time.Second
	}

	clientOpts := append([]option.RequestOption{}, opts.ClientOptions...)
	switch {
	case opts.Bedrock:
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
			logger.Warn("review: bedrock requested but AWS credentials not configured")
			return r
		}
		clientOpts = append(clientOpts, bedrock.WithLoadDefaultConfig(ctx))
	case opts.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	default:
		return r
	}

	client := anthropic.NewClient(clientOpts...)
	r.client = &client
	logger.Info("review enabled", "model", r.model, "bedrock", opts.Bedrock)
	return r
}

// Enabled reports whether a model client is configured.
func (r *Reviewer) Enabled() bool { return r != nil && r.client != nil }

// Review returns a rationale for the prediction, or Fallback on any failure.
func (r *Reviewer) Review(ctx context.Context, url string, p model.Prediction, v features.Vector) string {
	if !r.Enabled() {
		return Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	message, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 200,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(url, p, v))),
		},
	})
	if err != nil {
		r.logger.Warn("review: claude request failed", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Fallback
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		r.logger.Warn("review: empty claude response")
		return Fallback
	}
	return text
}

func prompt(url string, p model.Prediction, v features.Vector) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nVerdict: %s\nPhishing probability: %.3f\nFeatures:\n", url, p.Verdict, p.Probability)

	m := v.Map()
	names := make([]string, 0, len(m))
	for name, val := range m {
		if val != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s=%g\n", name, m[name])
	}
	return b.String()
}
