// Package commerce implements the paginated, cost-aware GraphQL client for
// the commerce platform's orders API.
package commerce

import "time"

// Order is the normalised subset of a commerce order node this worker
// needs. Money fields stay as raw strings from the source; normalisation
// into decimal.Decimal happens in internal/jobs.
type Order struct {
	ID                 string
	Name               *string
	OrderNumber        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Currency           *string
	ShopCurrency       string
	Total              string
	CurrentTotal       *string
	TotalRefunds        *string
	FinancialStatus    *string
	FulfillmentStatus  *string
}

// PageResult is one page of orders plus the throttle telemetry carried on
// that response, surfaced to the caller so the pagination loop can pace
// itself between pages.
type PageResult struct {
	Orders      []Order
	HasNextPage bool
	EndCursor   string
	Telemetry   CostTelemetryRaw
	APICalls    int
}

// CostTelemetryRaw mirrors the wire shape of cost.throttleStatus before
// it's handed to internal/throttle.
type CostTelemetryRaw struct {
	CurrentlyAvailable float64
	MaximumAvailable   float64
	RestoreRate        float64
	RequestedQueryCost float64
}

// sortKey is the GraphQL orders connection sort key this client uses.
type sortKey string

const (
	sortByCreatedAt sortKey = "CREATED_AT"
	sortByUpdatedAt sortKey = "UPDATED_AT"
)
