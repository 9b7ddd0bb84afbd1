// Package warehouse implements the single transactional writer every job
// handler uses to land raw payloads and rebuild fact/metrics/summary rows.
// One call = one transaction, covering raw upsert, fact
// delete-then-insert scoped to the natural keys touched, daily metrics
// rebuild for every touched date, and daily summary rebuild for the same
// dates. An optional cursor-update closure runs inside the same
// transaction so cursor advancement is never observed without its writes
// or vice versa.
package warehouse

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commerce-ingest-worker/internal/dbx"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient"
)

// Writer owns the one transaction per run that the dispatcher's handlers
// delegate persistence to.
type Writer struct {
	pool *dbx.Pool
	log  *zap.Logger
}

// New builds a Writer bound to the process-wide pool.
func New(pool *dbx.Pool, log *zap.Logger) *Writer {
	return &Writer{pool: pool, log: log.Named("warehouse")}
}

// RawCommerceRow is one landed commerce order payload.
type RawCommerceRow struct {
	IntegrationID   uuid.UUID
	ExternalID      string
	Payload         json.RawMessage
	SourceCreatedAt string
	SourceUpdatedAt string
}

// CommerceRebuild is everything one commerce handler run needs persisted.
type CommerceRebuild struct {
	IntegrationID uuid.UUID
	AccountID     uuid.UUID
	ShopRef       string
	Raw           []RawCommerceRow
	Facts         []model.CommerceOrderFact
	// CursorUpdate runs inside the same transaction as the writes above;
	// it is nil when the handler has nothing to advance.
	CursorUpdate func(ctx context.Context, tx *gorm.DB) error
}

// WriteCommerce persists a commerce run end-to-end and returns the set of
// order_date values rebuilt.
func (w *Writer) WriteCommerce(ctx context.Context, r CommerceRebuild) ([]string, error) {
	var touchedDates []string

	err := w.pool.Transaction(ctx, func(tx *gorm.DB) error {
		if err := upsertCommerceRaw(ctx, tx, r.Raw); err != nil {
			return err
		}

		orderNames := make([]string, 0, len(r.Facts))
		dateSet := map[string]struct{}{}
		for _, f := range r.Facts {
			orderNames = append(orderNames, f.OrderName)
			dateSet[f.OrderDate] = struct{}{}
		}

		if err := replaceCommerceFacts(ctx, tx, r.IntegrationID, orderNames, r.Facts); err != nil {
			return err
		}

		for date := range dateSet {
			touchedDates = append(touchedDates, date)
		}
		sort.Strings(touchedDates)

		for _, date := range touchedDates {
			if err := rebuildCommerceDailyMetrics(ctx, tx, r.AccountID, r.ShopRef, date); err != nil {
				return err
			}
			if err := rebuildDailySummary(ctx, tx, r.AccountID, date); err != nil {
				return err
			}
		}

		if r.CursorUpdate != nil {
			if err := r.CursorUpdate(ctx, tx); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, sourceclient.Classify(model.ErrDBWrite, err)
	}

	return touchedDates, nil
}

// RawAdsRow is one landed ad insight payload.
type RawAdsRow struct {
	IntegrationID uuid.UUID
	Date          string
	AdID          string
	Payload       json.RawMessage
}

// AdsRebuild is everything one ads handler run needs persisted.
type AdsRebuild struct {
	IntegrationID uuid.UUID
	AccountID     uuid.UUID
	AdAccountRef  string
	Raw           []RawAdsRow
	Facts         []model.AdsDailyFact
}

// WriteAds persists an ads run end-to-end and returns the set of dates
// rebuilt.
func (w *Writer) WriteAds(ctx context.Context, r AdsRebuild) ([]string, error) {
	var touchedDates []string

	err := w.pool.Transaction(ctx, func(tx *gorm.DB) error {
		if err := upsertAdsRaw(ctx, tx, r.Raw); err != nil {
			return err
		}

		dateSet := map[string]struct{}{}
		for _, f := range r.Facts {
			dateSet[f.Date] = struct{}{}
		}
		for date := range dateSet {
			touchedDates = append(touchedDates, date)
		}
		sort.Strings(touchedDates)

		if err := replaceAdsFacts(ctx, tx, r.IntegrationID, r.AdAccountRef, touchedDates, r.Facts); err != nil {
			return err
		}

		for _, date := range touchedDates {
			if err := rebuildAdsDailyMetrics(ctx, tx, r.AccountID, r.AdAccountRef, date); err != nil {
				return err
			}
			if err := rebuildDailySummary(ctx, tx, r.AccountID, date); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, sourceclient.Classify(model.ErrDBWrite, err)
	}

	return touchedDates, nil
}
