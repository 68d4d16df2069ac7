// Package rate resolves a current exchange rate from a cache or upstream
// sources under a shared time budget.
package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealfx/internal/metrics"
)

// ErrUnavailable is returned once every source and retry is exhausted within
// the budget. The wrapped message aggregates all attempt errors.
var ErrUnavailable = errors.New("exchange rate unavailable")

// backoffGuard is shaved off the remaining budget before sleeping so the
// attempt after the delay still has time to run.
const backoffGuard = 50 * time.Millisecond

// ProviderOptions tune resolution behaviour.
type ProviderOptions struct {
	MaxAttempts    int           // attempts per source
	BackoffBase    time.Duration // first retry delay; doubles per attempt
	Budget         time.Duration // total wall-clock budget per resolution
	AttemptTimeout time.Duration // upper bound for a single attempt
	TTL            time.Duration // cache freshness window
}

// Provider resolves a positive exchange rate, consulting the cache first and
// falling back to the configured sources in order.
type Provider struct {
	sources []Source
	cache   Cache
	opts    ProviderOptions
	logger  zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProvider wires sources and a cache into a Provider.
func NewProvider(sources []Source, cache Cache, opts ProviderOptions, logger zerolog.Logger) *Provider {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 200 * time.Millisecond
	}
	if opts.Budget <= 0 {
		opts.Budget = 12 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}

	return &Provider{
		sources: sources,
		cache:   cache,
		opts:    opts,
		logger:  logger.With().Str("component", "rate_provider").Logger(),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Resolve returns a fresh or cached rate. The deadline is computed once on
// entry; no attempt or backoff delay may run past it.
func (p *Provider) Resolve(ctx context.Context) (decimal.Decimal, error) {
	start := p.now()

	if p.cache != nil {
		if quote, ok := p.cache.Get(); ok && quote.Fresh(start, p.opts.TTL) {
			metrics.RateCacheLookups.WithLabelValues("hit").Inc()
			return quote.Rate, nil
		}
		metrics.RateCacheLookups.WithLabelValues("miss").Inc()
	}

	deadline := start.Add(p.opts.Budget)

	var attemptErrs []string
	for _, source := range p.sources {
		rate, ok := p.trySource(ctx, source, deadline, &attemptErrs)
		if !ok {
			continue
		}

		if p.cache != nil {
			if err := p.cache.Put(Quote{Rate: rate, FetchedAt: p.now()}); err != nil {
				p.logger.Warn().Err(err).Msg("failed to persist rate quote")
			}
		}
		return rate, nil
	}

	return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(attemptErrs, " | "))
}

// trySource runs the retry loop for one source within whatever budget
// remains, appending every failure to attemptErrs.
func (p *Provider) trySource(ctx context.Context, source Source, deadline time.Time, attemptErrs *[]string) (decimal.Decimal, bool) {
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			*attemptErrs = append(*attemptErrs,
				fmt.Sprintf("%s: budget exhausted before attempt %d", source.Name(), attempt))
			metrics.RateAttempts.WithLabelValues(source.Name(), "budget_exhausted").Inc()
			return decimal.Decimal{}, false
		}

		timeout := remaining
		if timeout > p.opts.AttemptTimeout {
			timeout = p.opts.AttemptTimeout
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		rate, err := source.Fetch(attemptCtx)
		cancel()

		if err == nil {
			metrics.RateAttempts.WithLabelValues(source.Name(), "ok").Inc()
			p.logger.Debug().
				Str("source", source.Name()).
				Int("attempt", attempt).
				Str("rate", rate.String()).
				Msg("rate fetched")
			return rate, true
		}

		metrics.RateAttempts.WithLabelValues(source.Name(), "error").Inc()
		*attemptErrs = append(*attemptErrs,
			fmt.Sprintf("%s attempt %d/%d: %v", source.Name(), attempt, p.opts.MaxAttempts, err))
		p.logger.Warn().Err(err).
			Str("source", source.Name()).
			Int("attempt", attempt).
			Msg("rate fetch attempt failed")

		if ctx.Err() != nil {
			return decimal.Decimal{}, false
		}

		if attempt < p.opts.MaxAttempts {
			remaining = deadline.Sub(p.now())
			if remaining <= 0 {
				return decimal.Decimal{}, false
			}

			delay := p.opts.BackoffBase << uint(attempt-1)
			if ceiling := remaining - backoffGuard; delay > ceiling {
				delay = ceiling
			}
			if delay > 0 {
				if err := p.sleep(ctx, delay); err != nil {
					return decimal.Decimal{}, false
				}
			}
		}
	}
	return decimal.Decimal{}, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
