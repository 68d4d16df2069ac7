package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealStatus enumerates the persisted deal lifecycle states.
type DealStatus string

const (
	StatusReceived  DealStatus = "received"
	StatusConverted DealStatus = "converted"
	StatusFailed    DealStatus = "failed"
	// StatusHealthcheck marks probe rows written (and rolled back) by the
	// database health check.
	StatusHealthcheck DealStatus = "healthcheck"
)

// Deal is one row per external CRM deal identifier. ConvertedAmount and Rate
// are only non-nil when Status is converted, and were computed against the
// SourceAmount stored at the same LogicalVersion.
type Deal struct {
	ID              int64
	ExternalID      int64
	SourceAmount    decimal.Decimal
	ConvertedAmount *decimal.Decimal
	Rate            *decimal.Decimal
	Status          DealStatus
	LogicalVersion  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HealthReport summarises a successful database probe.
type HealthReport struct {
	Database string
	Schema   string
	ProbeID  int64
}
