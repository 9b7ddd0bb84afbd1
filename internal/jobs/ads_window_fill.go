package jobs

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient/ads"
	"commerce-ingest-worker/internal/warehouse"
)

// AdsWindowFillHandler fetches the full attribution window of ad insights.
type AdsWindowFillHandler struct {
	deps Deps
}

func (h *AdsWindowFillHandler) Run(ctx context.Context, run model.SyncRun, integ model.Integration) (Stats, error) {
	return runAdsWindow(ctx, h.deps, integ, false)
}

// AdsFreshHandler re-fetches the same attribution window ending
// yesterday, with no persistent cursor.
type AdsFreshHandler struct {
	deps Deps
}

func (h *AdsFreshHandler) Run(ctx context.Context, run model.SyncRun, integ model.Integration) (Stats, error) {
	return runAdsWindow(ctx, h.deps, integ, true)
}

// runAdsWindow is shared by both ads handlers; they differ only in
// whether the window ends today (window_fill) or yesterday (fresh).
func runAdsWindow(ctx context.Context, deps Deps, integ model.Integration, endsYesterday bool) (Stats, error) {
	account, err := deps.Store.GetAccount(ctx, integ.AccountID)
	if err != nil {
		return nil, err
	}

	if deps.Config.AttributionWindowExceedsSafeCeiling() {
		deps.Log.Warn("ads attribution window exceeds safe ceiling",
			zap.Int("ads_attribution_window_days", deps.Config.AdsAttributionWindowDays))
	}

	client, err := deps.NewAds(ctx, integ)
	if err != nil {
		return nil, err
	}

	end := deps.Clock.Now()
	if endsYesterday {
		end = end.AddDate(0, 0, -1)
	}
	days := windowDates(end, deps.Config.AdsAttributionWindowDays)

	var allInsights []ads.Insight
	var raw []warehouse.RawAdsRow
	totalRetries := 0
	apiCalls := 0

	for _, day := range days {
		insights, retries, err := client.FetchDay(ctx, day)
		totalRetries += retries
		apiCalls++
		if err != nil {
			return nil, err
		}
		allInsights = append(allInsights, insights...)
		for _, ins := range insights {
			payload, _ := json.Marshal(ins)
			raw = append(raw, warehouse.RawAdsRow{
				IntegrationID: integ.ID,
				Date:          day,
				AdID:          ins.AdID,
				Payload:       payload,
			})
		}
	}

	facts := aggregateAdsFacts(integ, integ.ExternalRef, days, allInsights)

	touchedDates, err := deps.Warehouse.WriteAds(ctx, warehouse.AdsRebuild{
		IntegrationID: integ.ID,
		AccountID:     account.ID,
		AdAccountRef:  integ.ExternalRef,
		Raw:           raw,
		Facts:         facts,
	})
	if err != nil {
		return nil, err
	}

	return Stats{
		"fetched_insight_rows": len(allInsights),
		"dates_affected":       touchedDates,
		"api_calls":            apiCalls,
		"retries":              totalRetries,
		"window_days":          len(days),
	}, nil
}

// windowDates enumerates the attribution window as YYYY-MM-DD strings,
// ending at end (inclusive), oldest first.
func windowDates(end time.Time, days int) []string {
	out := make([]string, days)
	for i := 0; i < days; i++ {
		d := end.AddDate(0, 0, -(days - 1 - i))
		out[i] = d.UTC().Format("2006-01-02")
	}
	return out
}

// aggregateAdsFacts sums spend/impressions/clicks/purchase count/purchase
// value across ads for each (ad-account, date).
func aggregateAdsFacts(integ model.Integration, adAccountRef string, days []string, insights []ads.Insight) []model.AdsDailyFact {
	byDate := make(map[string]*model.AdsDailyFact, len(days))
	for _, d := range days {
		byDate[d] = &model.AdsDailyFact{
			IntegrationID: integ.ID,
			AccountID:     integ.AccountID,
			AdAccountRef:  adAccountRef,
			Date:          d,
		}
	}

	for _, ins := range insights {
		f, ok := byDate[ins.Date]
		if !ok {
			continue
		}
		f.Spend = f.Spend.Add(normalizeMoney(&ins.Spend))
		f.Impressions += ins.Impressions
		f.Clicks += ins.Clicks
		f.PurchaseCount += ins.PurchaseCount
		f.PurchaseValue = f.PurchaseValue.Add(normalizeMoney(&ins.PurchaseValue))
		if ins.Currency != "" {
			f.Currency = ins.Currency
		}
	}

	out := make([]model.AdsDailyFact, 0, len(byDate))
	for _, d := range days {
		out = append(out, *byDate[d])
	}
	return out
}
