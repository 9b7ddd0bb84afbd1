package warehouse

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-ingest-worker/internal/model"
)

// upsertCommerceRaw lands raw order payloads, last-write-wins on
// (integration id, external id).
func upsertCommerceRaw(ctx context.Context, tx *gorm.DB, rows []RawCommerceRow) error {
	for _, batch := range chunk(rows) {
		for _, row := range batch {
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO commerce_raw_orders (integration_id, external_id, payload, source_created_at, source_updated_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (integration_id, external_id)
				 DO UPDATE SET payload = EXCLUDED.payload,
				               source_created_at = EXCLUDED.source_created_at,
				               source_updated_at = EXCLUDED.source_updated_at`,
				row.IntegrationID, row.ExternalID, string(row.Payload), row.SourceCreatedAt, row.SourceUpdatedAt,
			)
			if res.Error != nil {
				return fmt.Errorf("warehouse: upsert commerce raw: %w", res.Error)
			}
		}
	}
	return nil
}

// replaceCommerceFacts deletes existing fact rows for the order_name set
// touched by this run and re-inserts the fresh set, scoped to one
// integration.
func replaceCommerceFacts(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, orderNames []string, facts []model.CommerceOrderFact) error {
	for _, batch := range chunk(orderNames) {
		res := tx.WithContext(ctx).Exec(
			`DELETE FROM commerce_fact_orders WHERE integration_id = ? AND order_name IN ?`,
			integrationID, batch,
		)
		if res.Error != nil {
			return fmt.Errorf("warehouse: delete commerce facts: %w", res.Error)
		}
	}

	for _, batch := range chunk(facts) {
		for _, f := range batch {
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO commerce_fact_orders
				 (integration_id, account_id, shop_ref, order_name, gross, net, refund_total, currency, order_date, status, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.IntegrationID, f.AccountID, f.ShopRef, f.OrderName,
				f.Gross.String(), f.Net.String(), f.RefundTotal.String(), f.Currency, f.OrderDate, f.Status, f.UpdatedAt,
			)
			if res.Error != nil {
				return fmt.Errorf("warehouse: insert commerce fact: %w", res.Error)
			}
		}
	}
	return nil
}

// rebuildCommerceDailyMetrics recomputes the per-shop-per-day aggregate
// wholesale from the fact table for one date.
func rebuildCommerceDailyMetrics(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, shopRef, date string) error {
	res := tx.WithContext(ctx).Exec(
		`DELETE FROM commerce_daily_metrics WHERE account_id = ? AND shop_ref = ? AND date = ?`,
		accountID, shopRef, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: delete commerce daily metrics: %w", res.Error)
	}

	res = tx.WithContext(ctx).Exec(
		`INSERT INTO commerce_daily_metrics (account_id, shop_ref, date, orders, revenue_net, revenue_gross, refund_total, currency)
		 SELECT account_id, shop_ref, order_date, COUNT(*), SUM(net), SUM(gross), SUM(refund_total), MAX(currency)
		 FROM commerce_fact_orders
		 WHERE account_id = ? AND shop_ref = ? AND order_date = ?
		 GROUP BY account_id, shop_ref, order_date`,
		accountID, shopRef, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: rebuild commerce daily metrics: %w", res.Error)
	}
	return nil
}

// upsertAdsRaw lands raw ad-insight payloads keyed by (integration, date,
// ad id).
func upsertAdsRaw(ctx context.Context, tx *gorm.DB, rows []RawAdsRow) error {
	for _, batch := range chunk(rows) {
		for _, row := range batch {
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO ads_raw_insights (integration_id, date, ad_id, payload)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (integration_id, date, ad_id)
				 DO UPDATE SET payload = EXCLUDED.payload`,
				row.IntegrationID, row.Date, row.AdID, string(row.Payload),
			)
			if res.Error != nil {
				return fmt.Errorf("warehouse: upsert ads raw: %w", res.Error)
			}
		}
	}
	return nil
}

// replaceAdsFacts deletes and re-inserts the ads-daily fact rows for
// every touched date.
func replaceAdsFacts(ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, adAccountRef string, dates []string, facts []model.AdsDailyFact) error {
	if len(dates) > 0 {
		res := tx.WithContext(ctx).Exec(
			`DELETE FROM ads_fact_daily WHERE integration_id = ? AND ad_account_ref = ? AND date IN ?`,
			integrationID, adAccountRef, dates,
		)
		if res.Error != nil {
			return fmt.Errorf("warehouse: delete ads facts: %w", res.Error)
		}
	}

	for _, batch := range chunk(facts) {
		for _, f := range batch {
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO ads_fact_daily
				 (integration_id, account_id, ad_account_ref, date, spend, impressions, clicks, purchase_count, purchase_value, currency)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.IntegrationID, f.AccountID, f.AdAccountRef, f.Date,
				f.Spend.String(), f.Impressions, f.Clicks, f.PurchaseCount, f.PurchaseValue.String(), f.Currency,
			)
			if res.Error != nil {
				return fmt.Errorf("warehouse: insert ads fact: %w", res.Error)
			}
		}
	}
	return nil
}

// rebuildAdsDailyMetrics recomputes the per-ad-account-per-day aggregate
// wholesale from the ads fact table.
func rebuildAdsDailyMetrics(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, adAccountRef, date string) error {
	res := tx.WithContext(ctx).Exec(
		`DELETE FROM ads_daily_metrics WHERE account_id = ? AND ad_account_ref = ? AND date = ?`,
		accountID, adAccountRef, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: delete ads daily metrics: %w", res.Error)
	}

	res = tx.WithContext(ctx).Exec(
		`INSERT INTO ads_daily_metrics (account_id, ad_account_ref, date, spend, impressions, clicks, purchase_count, purchase_value, currency)
		 SELECT account_id, ad_account_ref, date, SUM(spend), SUM(impressions), SUM(clicks), SUM(purchase_count), SUM(purchase_value), MAX(currency)
		 FROM ads_fact_daily
		 WHERE account_id = ? AND ad_account_ref = ? AND date = ?
		 GROUP BY account_id, ad_account_ref, date`,
		accountID, adAccountRef, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: rebuild ads daily metrics: %w", res.Error)
	}
	return nil
}

// rebuildDailySummary recomputes the blended per-account-per-day row by
// joining commerce and ads daily metrics for one date. MER and AOV are
// computed in SQL with the same null/zero rules as
// model.ComputeMER/ComputeAOV so the
// warehouse and any in-process recomputation agree.
func rebuildDailySummary(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, date string) error {
	res := tx.WithContext(ctx).Exec(
		`DELETE FROM daily_summary WHERE account_id = ? AND date = ?`,
		accountID, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: delete daily summary: %w", res.Error)
	}

	res = tx.WithContext(ctx).Exec(
		`INSERT INTO daily_summary (account_id, date, revenue_net, ads_spend, mer, orders, aov)
		 SELECT ?, ?,
		        COALESCE(c.revenue_net, 0),
		        COALESCE(a.spend, 0),
		        CASE WHEN COALESCE(a.spend, 0) > 0 THEN COALESCE(c.revenue_net, 0) / a.spend ELSE NULL END,
		        COALESCE(c.orders, 0),
		        CASE WHEN COALESCE(c.orders, 0) > 0 THEN COALESCE(c.revenue_net, 0) / c.orders ELSE 0 END
		 FROM (SELECT SUM(revenue_net) AS revenue_net, SUM(orders) AS orders
		       FROM commerce_daily_metrics WHERE account_id = ? AND date = ?) c
		 FULL OUTER JOIN (SELECT SUM(spend) AS spend
		       FROM ads_daily_metrics WHERE account_id = ? AND date = ?) a ON true`,
		accountID, date, accountID, date, accountID, date,
	)
	if res.Error != nil {
		return fmt.Errorf("warehouse: rebuild daily summary: %w", res.Error)
	}
	return nil
}
