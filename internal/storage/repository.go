package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrStaleVersion indicates the upsert-merge was rejected because the
	// stored logical version is newer than the event's.
	ErrStaleVersion = errors.New("storage: stale logical version")
	// ErrSuperseded indicates a version-conditioned outcome write matched no
	// row because a newer event overwrote the deal in the meantime.
	ErrSuperseded = errors.New("storage: write superseded by newer version")
	// ErrDealNotFound indicates no row exists for the external id.
	ErrDealNotFound = errors.New("storage: deal not found")
)

const (
	upsertReceivedSQL = `INSERT INTO deals (
        external_id,
        source_amount,
        status,
        logical_version
    ) VALUES (
        $1, $2, 'received', $3
    )
    ON CONFLICT (external_id) DO UPDATE
    SET
        source_amount    = EXCLUDED.source_amount,
        status           = 'received',
        converted_amount = NULL,
        rate             = NULL,
        logical_version  = EXCLUDED.logical_version,
        updated_at       = NOW()
    WHERE deals.logical_version IS NULL
       OR deals.logical_version <= EXCLUDED.logical_version
    RETURNING id, external_id, source_amount, status, logical_version, created_at, updated_at;`

	markConvertedSQL = `UPDATE deals
    SET converted_amount = $3,
        rate             = $4,
        status           = 'converted',
        updated_at       = NOW()
    WHERE external_id = $1
      AND logical_version = $2;`

	markFailedSQL = `UPDATE deals
    SET status     = 'failed',
        updated_at = NOW()
    WHERE external_id = $1
      AND logical_version = $2;`

	getDealSQL = `SELECT
        id, external_id, source_amount, converted_amount, rate, status, logical_version, created_at, updated_at
    FROM deals
    WHERE external_id = $1;`

	listRecentDealsSQL = `SELECT
        id, external_id, source_amount, converted_amount, rate, status, logical_version, created_at, updated_at
    FROM deals
    WHERE status <> 'healthcheck'
    ORDER BY updated_at DESC
    LIMIT $1;`

	healthProbeSQL = `INSERT INTO deals (external_id, source_amount, status)
    VALUES ($1, 0.01, 'healthcheck')
    RETURNING id;`

	currentDatabaseSQL = `SELECT current_database(), current_schema();`
)

// DealStore defines the persistence operations of the conversion pipeline.
type DealStore interface {
	UpsertReceived(ctx context.Context, externalID int64, amount string, version time.Time) (Deal, error)
	MarkConverted(ctx context.Context, externalID int64, version time.Time, convertedAmount, rate string) error
	MarkFailed(ctx context.Context, externalID int64, version time.Time) error
	GetDeal(ctx context.Context, externalID int64) (Deal, error)
	ListRecentDeals(ctx context.Context, limit int) ([]Deal, error)
}

// HealthChecker probes database connectivity and schema access.
type HealthChecker interface {
	HealthProbe(ctx context.Context) (HealthReport, error)
}

// Store provides pgx-backed access to the deals table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertReceived merges an inbound event into the deal row as one atomic
// conditioned write. Rows holding a strictly newer logical version are left
// untouched and ErrStaleVersion is returned.
func (s *Store) UpsertReceived(ctx context.Context, externalID int64, amount string, version time.Time) (Deal, error) {
	pool, err := s.getPool()
	if err != nil {
		return Deal{}, err
	}

	row := pool.QueryRow(ctx, upsertReceivedSQL, externalID, amount, version.UTC())

	var (
		deal       Deal
		amountStr  string
		versionVal sql.NullTime
	)
	if scanErr := row.Scan(
		&deal.ID,
		&deal.ExternalID,
		&amountStr,
		&deal.Status,
		&versionVal,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Deal{}, ErrStaleVersion
		}
		return Deal{}, fmt.Errorf("upsert received deal: %w", scanErr)
	}

	deal.SourceAmount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return Deal{}, fmt.Errorf("parse source amount: %w", err)
	}
	if versionVal.Valid {
		v := versionVal.Time
		deal.LogicalVersion = &v
	}
	return deal, nil
}

// MarkConverted attaches the conversion outcome, strictly conditioned on the
// logical version stamped at upsert time. ErrSuperseded means a newer event
// overwrote the row and the result must be discarded.
func (s *Store) MarkConverted(ctx context.Context, externalID int64, version time.Time, convertedAmount, rate string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, markConvertedSQL, externalID, version.UTC(), convertedAmount, rate)
	if execErr != nil {
		return fmt.Errorf("mark deal converted: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrSuperseded
	}
	return nil
}

// MarkFailed records a conversion failure under the same version guard.
func (s *Store) MarkFailed(ctx context.Context, externalID int64, version time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, markFailedSQL, externalID, version.UTC())
	if execErr != nil {
		return fmt.Errorf("mark deal failed: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrSuperseded
	}
	return nil
}

// GetDeal loads a single deal by its external id.
func (s *Store) GetDeal(ctx context.Context, externalID int64) (Deal, error) {
	pool, err := s.getPool()
	if err != nil {
		return Deal{}, err
	}

	deal, scanErr := scanDeal(pool.QueryRow(ctx, getDealSQL, externalID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Deal{}, ErrDealNotFound
		}
		return Deal{}, fmt.Errorf("get deal: %w", scanErr)
	}
	return deal, nil
}

// ListRecentDeals lists deals ordered by most recent activity.
func (s *Store) ListRecentDeals(ctx context.Context, limit int) ([]Deal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDealsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent deals: %w", queryErr)
	}
	defer rows.Close()

	deals := make([]Deal, 0, limit)
	for rows.Next() {
		deal, scanErr := scanDeal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		deals = append(deals, deal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deals, nil
}

// HealthProbe inserts a healthcheck probe row inside a transaction and rolls
// it back, verifying connectivity, schema, and write access without leaving
// state behind.
func (s *Store) HealthProbe(ctx context.Context) (HealthReport, error) {
	pool, err := s.getPool()
	if err != nil {
		return HealthReport{}, err
	}

	var report HealthReport
	if scanErr := pool.QueryRow(ctx, currentDatabaseSQL).Scan(&report.Database, &report.Schema); scanErr != nil {
		return HealthReport{}, fmt.Errorf("query database identity: %w", scanErr)
	}

	tx, txErr := pool.Begin(ctx)
	if txErr != nil {
		return HealthReport{}, fmt.Errorf("begin health probe tx: %w", txErr)
	}
	defer tx.Rollback(ctx)

	probeID := int64(2_000_000_000) + rand.Int63n(1_000_000)
	if scanErr := tx.QueryRow(ctx, healthProbeSQL, probeID).Scan(&report.ProbeID); scanErr != nil {
		return HealthReport{}, fmt.Errorf("health probe insert: %w", scanErr)
	}

	if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		return HealthReport{}, fmt.Errorf("health probe rollback: %w", rbErr)
	}
	return report, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var (
		deal         Deal
		amountStr    string
		convertedStr sql.NullString
		rateStr      sql.NullString
		versionVal   sql.NullTime
	)

	if err := row.Scan(
		&deal.ID,
		&deal.ExternalID,
		&amountStr,
		&convertedStr,
		&rateStr,
		&deal.Status,
		&versionVal,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	); err != nil {
		return Deal{}, err
	}

	var err error
	deal.SourceAmount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return Deal{}, fmt.Errorf("parse source amount: %w", err)
	}

	if convertedStr.Valid {
		converted, convErr := decimal.NewFromString(convertedStr.String)
		if convErr != nil {
			return Deal{}, fmt.Errorf("parse converted amount: %w", convErr)
		}
		deal.ConvertedAmount = &converted
	}
	if rateStr.Valid {
		rate, convErr := decimal.NewFromString(rateStr.String)
		if convErr != nil {
			return Deal{}, fmt.Errorf("parse rate: %w", convErr)
		}
		deal.Rate = &rate
	}
	if versionVal.Valid {
		v := versionVal.Time
		deal.LogicalVersion = &v
	}

	return deal, nil
}

var (
	_ DealStore     = (*Store)(nil)
	_ HealthChecker = (*Store)(nil)
)
