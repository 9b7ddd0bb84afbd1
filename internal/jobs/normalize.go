// Package jobs implements the four sync job handlers the dispatcher
// resolves job types to.
package jobs

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"commerce-ingest-worker/internal/sourceclient/commerce"
)

// normalizeMoney parses a source money string, defaulting to zero on an
// empty/missing value -- a missing monetary field is recoverable, not a
// hard schema error.
func normalizeMoney(s *string) decimal.Decimal {
	if s == nil || *s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizedOrder is the post-normalisation shape shared by both commerce
// handlers before it becomes a model.CommerceOrderFact.
type normalizedOrder struct {
	OrderName   string
	Gross       decimal.Decimal
	Net         decimal.Decimal
	RefundTotal decimal.Decimal
	Currency    string
	OrderDate   string
	Status      *string
}

// normalizeOrder applies the monetary, status, name and date-bucket
// rules shared by both commerce handlers.
func normalizeOrder(o commerce.Order) normalizedOrder {
	gross := normalizeMoney(o.CurrentTotal)
	if o.CurrentTotal == nil || *o.CurrentTotal == "" {
		gross = normalizeMoney(&o.Total)
	}

	refundTotal := normalizeMoney(o.TotalRefunds)

	net := gross.Sub(refundTotal)
	if net.IsNegative() {
		net = decimal.Zero
	}

	currency := o.ShopCurrency
	if o.Currency != nil && *o.Currency != "" {
		currency = *o.Currency
	}

	return normalizedOrder{
		OrderName:   orderName(o),
		Gross:       gross,
		Net:         net,
		RefundTotal: refundTotal,
		Currency:    currency,
		OrderDate:   orderDate(o.CreatedAt),
		Status:      orderStatus(o.FinancialStatus, o.FulfillmentStatus),
	}
}

// orderStatus concatenates financial_status and fulfilment_status with
// " / ", skipping nulls; nil only if both are null.
func orderStatus(financial, fulfilment *string) *string {
	var parts []string
	if financial != nil && *financial != "" {
		parts = append(parts, *financial)
	}
	if fulfilment != nil && *fulfilment != "" {
		parts = append(parts, *fulfilment)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, " / ")
	return &joined
}

// orderName picks source name, else "#<order_number>", else
// "order_<id-without-prefix>".
func orderName(o commerce.Order) string {
	if o.Name != nil && *o.Name != "" {
		return *o.Name
	}
	if o.OrderNumber != nil && *o.OrderNumber != "" {
		return "#" + *o.OrderNumber
	}
	return "order_" + idWithoutPrefix(o.ID)
}

// idWithoutPrefix strips a "gid://.../Order/" style prefix, keeping only
// the trailing numeric/opaque segment.
func idWithoutPrefix(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// orderDate buckets on the first 10 characters of the created_at ISO
// string, i.e. the UTC date.
func orderDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
