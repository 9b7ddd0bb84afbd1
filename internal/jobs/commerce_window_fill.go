package jobs

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"commerce-ingest-worker/internal/cursor"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient/commerce"
	"commerce-ingest-worker/internal/warehouse"
)

// cursorJobTypeCommerce is the job_type the order-update cursor is
// stored under; it is shared by commerce_fresh and commerce_window_fill
// because both read/advance the same watermark.
const cursorJobTypeCommerce = "commerce"

// cursorKeyOrderUpdatedAt is the cursor key both commerce handlers use.
const cursorKeyOrderUpdatedAt = "last_synced_order_updated_at"

// defaultWindowDays is the trailing window a commerce window_fill covers.
const defaultWindowDays = 7

// CommerceWindowFillHandler backfills a trailing window of commerce
// orders.
type CommerceWindowFillHandler struct {
	deps Deps
}

func (h *CommerceWindowFillHandler) Run(ctx context.Context, run model.SyncRun, integ model.Integration) (Stats, error) {
	account, err := h.deps.Store.GetAccount(ctx, integ.AccountID)
	if err != nil {
		return nil, err
	}

	client, shopCurrency, err := h.deps.NewCommerce(ctx, integ)
	if err != nil {
		return nil, err
	}

	windowStart := h.deps.Clock.Now().AddDate(0, 0, -defaultWindowDays)

	orders, apiCalls, err := client.FetchCreatedSince(ctx, shopCurrency, windowStart, h.deps.Clock.Sleep)
	if err != nil {
		return nil, err
	}

	raw, facts, maxUpdatedAt := buildCommerceRebuildInputs(integ, integ.ExternalRef, orders)

	var cursorInitialized bool
	touchedDates, err := h.deps.Warehouse.WriteCommerce(ctx, warehouse.CommerceRebuild{
		IntegrationID: integ.ID,
		AccountID:     account.ID,
		ShopRef:       integ.ExternalRef,
		Raw:           raw,
		Facts:         facts,
		CursorUpdate: func(ctx context.Context, tx *gorm.DB) error {
			if maxUpdatedAt == "" {
				return nil
			}
			initialized, err := cursor.InitIfAbsent(ctx, tx, integ.ID, cursorJobTypeCommerce, cursorKeyOrderUpdatedAt, maxUpdatedAt)
			cursorInitialized = initialized
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	return Stats{
		"fetched_orders":     len(orders),
		"persisted_orders":   len(facts),
		"dates_affected":     touchedDates,
		"api_calls":          apiCalls,
		"window_start":       windowStart.UTC().Format(time.RFC3339),
		"window_end":         h.deps.Clock.Now().UTC().Format(time.RFC3339),
		"cursor_initialized": cursorInitialized,
	}, nil
}

// buildCommerceRebuildInputs normalises the fetched orders, deduplicating
// by external order id within the run, and tracks the
// maximum updated_at observed for optional cursor initialisation.
func buildCommerceRebuildInputs(integ model.Integration, shopRef string, orders []commerce.Order) ([]warehouse.RawCommerceRow, []model.CommerceOrderFact, string) {
	seen := make(map[string]commerce.Order, len(orders))
	for _, o := range orders {
		seen[o.ID] = o // last write for this external id wins within the run
	}

	raw := make([]warehouse.RawCommerceRow, 0, len(seen))
	facts := make([]model.CommerceOrderFact, 0, len(seen))
	var maxUpdatedAt time.Time

	for _, o := range seen {
		n := normalizeOrder(o)
		payload, _ := json.Marshal(o)

		raw = append(raw, warehouse.RawCommerceRow{
			IntegrationID:   integ.ID,
			ExternalID:      o.ID,
			Payload:         payload,
			SourceCreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
			SourceUpdatedAt: o.UpdatedAt.UTC().Format(time.RFC3339),
		})

		facts = append(facts, model.CommerceOrderFact{
			IntegrationID: integ.ID,
			AccountID:     integ.AccountID,
			ShopRef:       shopRef,
			OrderName:     n.OrderName,
			Gross:         n.Gross,
			Net:           n.Net,
			RefundTotal:   n.RefundTotal,
			Currency:      n.Currency,
			OrderDate:     n.OrderDate,
			Status:        n.Status,
			UpdatedAt:     o.UpdatedAt,
		})

		if o.UpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = o.UpdatedAt
		}
	}

	var maxUpdatedAtStr string
	if !maxUpdatedAt.IsZero() {
		maxUpdatedAtStr = maxUpdatedAt.UTC().Format(time.RFC3339)
	}

	return raw, facts, maxUpdatedAtStr
}
