package jobs

import (
	"context"

	"go.uber.org/zap"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/config"
	"commerce-ingest-worker/internal/dbx"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient/ads"
	"commerce-ingest-worker/internal/sourceclient/commerce"
	"commerce-ingest-worker/internal/store"
	"commerce-ingest-worker/internal/warehouse"
)

// Stats is the structured result a handler hands back to the dispatcher
// on success.
type Stats map[string]any

// Handler is implemented by each of the four job types the dispatcher
// can run.
type Handler interface {
	Run(ctx context.Context, run model.SyncRun, integ model.Integration) (Stats, error)
}

// CommerceClientFactory builds an authenticated commerce client for one
// integration, returning the shop's currency alongside it.
type CommerceClientFactory func(ctx context.Context, integ model.Integration) (*commerce.Client, string, error)

// AdsClientFactory builds an authenticated ads client for one
// integration.
type AdsClientFactory func(ctx context.Context, integ model.Integration) (*ads.Client, error)

// Deps are the shared dependencies every handler needs; constructed once
// at process startup and passed down explicitly rather than held in
// package-level shared state.
type Deps struct {
	Pool        *dbx.Pool
	Store       *store.Store
	Warehouse   *warehouse.Writer
	Clock       clock.Clock
	Config      config.Config
	Log         *zap.Logger
	NewCommerce CommerceClientFactory
	NewAds      AdsClientFactory
}

// NewHandlers builds the closed set of handlers keyed by model.JobType,
// the table the dispatcher looks job types up in at runtime.
func NewHandlers(deps Deps) map[model.JobType]Handler {
	return map[model.JobType]Handler{
		model.JobCommerceFresh:      &CommerceFreshHandler{deps: deps},
		model.JobCommerceWindowFill: &CommerceWindowFillHandler{deps: deps},
		model.JobAdsFresh:           &AdsFreshHandler{deps: deps},
		model.JobAdsWindowFill:      &AdsWindowFillHandler{deps: deps},
	}
}
