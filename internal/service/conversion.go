// Package service orchestrates idempotent, order-respecting currency
// conversion per external deal id.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealfx/internal/metrics"
	"dealfx/internal/money"
	"dealfx/internal/storage"
)

// AmountScale is the fixed scale of deal amounts (major-currency cents).
const AmountScale int32 = 2

// RateResolver yields the current exchange rate within its own time budget.
type RateResolver interface {
	Resolve(ctx context.Context) (decimal.Decimal, error)
}

// Event is one authenticated webhook delivery. LogicalVersion is the
// event-supplied timestamp acting as the optimistic-concurrency token.
type Event struct {
	ExternalID     int64
	Amount         string
	Currency       string
	LogicalVersion time.Time
}

// Outcome statuses returned to the HTTP boundary.
const (
	OutcomeConverted    = "converted"
	OutcomeIgnoredStale = "ignored_stale_event"
)

// Outcome is the result of processing one event.
type Outcome struct {
	Status          string
	ExternalID      int64
	SourceAmount    string
	ConvertedAmount string
	Rate            string
}

// Conversion composes the authenticator's output, the rate provider, and the
// deal store into the upsert -> convert -> persist pipeline. All cross-request
// safety derives from the store's conditioned writes; the service holds no
// locks.
type Conversion struct {
	store  storage.DealStore
	rates  RateResolver
	logger zerolog.Logger
}

// NewConversion constructs the orchestrator.
func NewConversion(store storage.DealStore, rates RateResolver, logger zerolog.Logger) *Conversion {
	return &Conversion{
		store:  store,
		rates:  rates,
		logger: logger.With().Str("component", "conversion").Logger(),
	}
}

// Handle processes one event: merge it into the deal row, resolve a rate,
// compute the converted amount, and attach the outcome conditioned on the
// logical version stamped at upsert time. Stale and superseded events are
// reported identically and never mutate fresher data.
func (c *Conversion) Handle(ctx context.Context, event Event) (Outcome, error) {
	amount, err := money.Canonicalize(event.Amount, AmountScale)
	if err != nil {
		return Outcome{}, &ValidationError{Field: "amount", Reason: "must be a signed decimal string"}
	}

	deal, err := c.store.UpsertReceived(ctx, event.ExternalID, amount, event.LogicalVersion)
	if err != nil {
		if errors.Is(err, storage.ErrStaleVersion) {
			metrics.StaleEventsIgnored.Inc()
			c.logger.Info().
				Int64("external_id", event.ExternalID).
				Time("logical_version", event.LogicalVersion).
				Msg("ignored stale event")
			return Outcome{Status: OutcomeIgnoredStale, ExternalID: event.ExternalID}, nil
		}
		return Outcome{}, &StorageError{Op: "upsert", Err: err}
	}

	version := event.LogicalVersion
	if deal.LogicalVersion != nil {
		version = *deal.LogicalVersion
	}

	rateValue, err := c.rates.Resolve(ctx)
	if err != nil {
		c.markFailed(ctx, event.ExternalID, version)
		return Outcome{}, err
	}

	minor, err := money.ToMinorUnits(amount, AmountScale)
	if err != nil {
		c.markFailed(ctx, event.ExternalID, version)
		return Outcome{}, err
	}

	rateStr := rateValue.StringFixed(money.RateScale)
	convertedMinor, err := money.MultiplyMinorByRate(minor, rateStr, AmountScale)
	if err != nil {
		c.markFailed(ctx, event.ExternalID, version)
		return Outcome{}, err
	}
	converted := money.FromMinorUnits(convertedMinor, AmountScale)

	if err := c.store.MarkConverted(ctx, event.ExternalID, version, converted, rateStr); err != nil {
		if errors.Is(err, storage.ErrSuperseded) {
			metrics.StaleEventsIgnored.Inc()
			c.logger.Info().
				Int64("external_id", event.ExternalID).
				Time("logical_version", version).
				Msg("conversion superseded by newer event")
			return Outcome{Status: OutcomeIgnoredStale, ExternalID: event.ExternalID}, nil
		}
		return Outcome{}, &StorageError{Op: "mark converted", Err: err}
	}

	metrics.DealsConverted.Inc()
	c.logger.Info().
		Int64("external_id", event.ExternalID).
		Str("source_amount", amount).
		Str("converted_amount", converted).
		Str("rate", rateStr).
		Msg("deal converted")

	return Outcome{
		Status:          OutcomeConverted,
		ExternalID:      event.ExternalID,
		SourceAmount:    amount,
		ConvertedAmount: converted,
		Rate:            rateStr,
	}, nil
}

// markFailed records the failure under the same version guard. A superseded
// write is swallowed: it must never mask the original conversion error.
func (c *Conversion) markFailed(ctx context.Context, externalID int64, version time.Time) {
	if err := c.store.MarkFailed(ctx, externalID, version); err != nil && !errors.Is(err, storage.ErrSuperseded) {
		c.logger.Error().Err(err).
			Int64("external_id", externalID).
			Msg("failed to mark deal failed")
	}
}
