// Package extract turns text blocks and links into a persona through an LLM.
package extract

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/facet/internal/cache"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/inference"
	"github.com/hpungsan/facet/internal/persona"
	"github.com/hpungsan/facet/internal/retry"
)

// SnippetLen bounds how much of an unparseable response is echoed back.
const SnippetLen = 500

// Options tunes an Extractor.
type Options struct {
	Temperature float32
	MaxTokens   int
	Retry       retry.Config
	// Timeout bounds one extraction including every retry. 0 is unbounded.
	Timeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultOptions matches the default configuration.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   2000,
		Retry:       retry.DefaultConfig(),
		Timeout:     120 * time.Second,
	}
}

// Result is a finished extraction.
type Result struct {
	Persona          *persona.Persona `json:"persona"`
	TokensUsed       int              `json:"tokens_used"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Cached           bool             `json:"cached"`
	// InputTokensEstimate is the rough prompt size of the input.
	InputTokensEstimate int `json:"input_tokens_estimate"`
}

// Extractor runs extractions against one backend and one cache.
// Concurrent misses for the same input share a single backend call.
type Extractor struct {
	backend inference.Backend
	cache   cache.Cache
	opts    Options
	logger  *zap.Logger
	group   singleflight.Group
}

type extraction struct {
	persona *persona.Persona
	tokens  int
}

// New creates an Extractor.
func New(backend inference.Backend, c cache.Cache, opts Options, logger *zap.Logger) *Extractor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger.Named("retry")
	}
	return &Extractor{
		backend: backend,
		cache:   c,
		opts:    opts,
		logger:  logger.Named("extract"),
	}
}

// Extract validates in, answers from the cache when possible, and otherwise
// asks the backend for a persona, normalizes it and caches it.
func (e *Extractor) Extract(ctx context.Context, in persona.Input) (*Result, error) {
	start := e.opts.Now()

	if err := persona.ValidateInput(in); err != nil {
		return nil, err
	}
	in = persona.NewInput(in.TextBlocks, in.Links)
	estimate := persona.EstimateTokens(in)

	if p, ok := e.lookup(ctx, in); ok {
		e.logger.Debug("cache hit", zap.String("key", cache.Fingerprint(in)))
		return &Result{
			Persona:             p,
			TokensUsed:          0,
			ProcessingTimeMs:    e.opts.Now().Sub(start).Milliseconds(),
			Cached:              true,
			InputTokensEstimate: estimate,
		}, nil
	}

	key := cache.Fingerprint(in)
	ch := e.group.DoChan(key, func() (any, error) {
		// The flight outlives any single caller; only the budget stops it.
		fctx := context.WithoutCancel(ctx)
		if e.opts.Timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, e.opts.Timeout)
			defer cancel()
		}
		return e.run(fctx, in)
	})

	select {
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTimeout("extraction did not finish before the request deadline", ctx.Err())
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := res.Val.(*extraction)
		if res.Shared {
			e.logger.Debug("joined in-flight extraction", zap.String("key", key))
		}
		return &Result{
			Persona:             out.persona.Clone(),
			TokensUsed:          out.tokens,
			ProcessingTimeMs:    e.opts.Now().Sub(start).Milliseconds(),
			InputTokensEstimate: estimate,
		}, nil
	}
}

func (e *Extractor) lookup(ctx context.Context, in persona.Input) (*persona.Persona, bool) {
	p, ok, err := e.cache.Lookup(ctx, in)
	if err != nil {
		e.logger.Warn("cache lookup failed; treating as miss", zap.Error(err))
		return nil, false
	}
	return p, ok
}

func (e *Extractor) run(ctx context.Context, in persona.Input) (*extraction, error) {
	req := inference.Request{
		System:      SystemPrompt,
		Messages:    []inference.Message{{Role: inference.RoleUser, Content: BuildUserPrompt(in)}},
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		JSON:        true,
	}

	resp, err := retry.Run(ctx, e.opts.Retry, func(ctx context.Context) (*inference.Response, error) {
		return e.backend.Complete(ctx, req)
	})
	if err != nil {
		return nil, e.upstreamError(ctx, err)
	}

	raw, err := Parse(resp.Text)
	if err != nil {
		e.logger.Warn("unusable model output", zap.Error(err), zap.Int("response_len", len(resp.Text)))
		return nil, err
	}

	p := persona.Normalize(raw, in, e.opts.Now())
	if err := e.cache.Store(ctx, in, p); err != nil {
		e.logger.Warn("cache store failed", zap.Error(err))
	}

	e.logger.Info("persona extracted",
		zap.String("name", p.Name),
		zap.Int("tokens_used", resp.TokensUsed),
		zap.Int("text_blocks", len(in.TextBlocks)),
		zap.Int("links", len(in.Links)))

	return &extraction{persona: p, tokens: resp.TokensUsed}, nil
}

// upstreamError keeps rate-limit and timeout failures, turns an expired
// budget into a timeout, and reports anything else as a failed extraction.
func (e *Extractor) upstreamError(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeout(fmt.Sprintf("extraction exceeded its %s budget", e.opts.Timeout), err)
	}
	if fErr, ok := errors.As(err); ok {
		return fErr
	}
	return errors.NewExtractionFailed(fmt.Sprintf("inference failed: %v", err), nil, err)
}

// Parse decodes model output that must be exactly one JSON object.
func Parse(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.NewExtractionFailed("empty response from inference backend", nil, nil)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil || raw == nil {
		if err == nil {
			err = stderrors.New("response is not a JSON object")
		}
		return nil, errors.NewExtractionFailed(
			"model response is not a valid JSON object",
			map[string]any{"response_snippet": snippet(text)},
			err,
		)
	}
	return raw, nil
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= SnippetLen {
		return s
	}
	return string(r[:SnippetLen])
}
