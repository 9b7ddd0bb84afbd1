package jobs

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-ingest-worker/internal/sourceclient/commerce"
)

func ptr(s string) *string { return &s }

func TestNormalizeOrder_FullyPaidOrder(t *testing.T) {
	o := commerce.Order{
		ID:                "gid://commerce/Order/1",
		CreatedAt:          time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		Currency:           ptr("AUD"),
		ShopCurrency:       "AUD",
		Total:              "150",
		CurrentTotal:       ptr("150"),
		TotalRefunds:       ptr("0"),
		FinancialStatus:    ptr("paid"),
		FulfillmentStatus:  ptr("fulfilled"),
	}

	n := normalizeOrder(o)

	assert.True(t, n.Gross.Equal(mustDecimal("150")))
	assert.True(t, n.Net.Equal(mustDecimal("150")))
	assert.True(t, n.RefundTotal.Equal(mustDecimal("0")))
	assert.Equal(t, "AUD", n.Currency)
	assert.Equal(t, "2026-01-20", n.OrderDate)
	require.NotNil(t, n.Status)
	assert.Equal(t, "paid / fulfilled", *n.Status)
	assert.Equal(t, "order_1", n.OrderName)
}

func TestNormalizeOrder_PartiallyRefundedOrder(t *testing.T) {
	o := commerce.Order{
		ID:                "gid://commerce/Order/2",
		CreatedAt:          time.Date(2026, 1, 22, 8, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2026, 1, 22, 8, 0, 0, 0, time.UTC),
		Currency:           ptr("AUD"),
		ShopCurrency:       "AUD",
		Total:              "80",
		CurrentTotal:       ptr("80"),
		TotalRefunds:       ptr("10"),
		FinancialStatus:    ptr("refunded"),
		FulfillmentStatus:  nil,
	}

	n := normalizeOrder(o)

	assert.True(t, n.Net.Equal(mustDecimal("70")))
	assert.Equal(t, "2026-01-22", n.OrderDate)
	require.NotNil(t, n.Status)
	assert.Equal(t, "refunded", *n.Status)
}

func TestNormalizeOrder_NetNeverNegative(t *testing.T) {
	o := commerce.Order{
		ID:           "1",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		ShopCurrency: "USD",
		Total:        "50",
		CurrentTotal: ptr("50"),
		TotalRefunds: ptr("999"),
	}

	n := normalizeOrder(o)
	assert.True(t, n.Net.Equal(mustDecimal("0")))
}

func TestNormalizeOrder_StatusNilWhenBothMissing(t *testing.T) {
	o := commerce.Order{ID: "1", CreatedAt: time.Now(), UpdatedAt: time.Now(), ShopCurrency: "USD", Total: "1"}
	n := normalizeOrder(o)
	assert.Nil(t, n.Status)
}

func TestOrderName_PrefersName(t *testing.T) {
	o := commerce.Order{ID: "gid://commerce/Order/9", Name: ptr("#1001"), OrderNumber: ptr("1001")}
	assert.Equal(t, "#1001", orderName(o))
}

func TestOrderName_FallsBackToOrderNumber(t *testing.T) {
	o := commerce.Order{ID: "gid://commerce/Order/9", OrderNumber: ptr("1002")}
	assert.Equal(t, "#1002", orderName(o))
}

func TestOrderName_FallsBackToID(t *testing.T) {
	o := commerce.Order{ID: "gid://commerce/Order/9"}
	assert.Equal(t, "order_9", orderName(o))
}

func TestCurrency_FallsBackToShopCurrency(t *testing.T) {
	o := commerce.Order{
		ID:           "1",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		ShopCurrency: "CAD",
		Total:        "1",
		CurrentTotal: ptr("1"),
	}
	n := normalizeOrder(o)
	assert.Equal(t, "CAD", n.Currency)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
