// Package model defines the persistent domain types the worker reads and
// writes. These are plain structs; persistence goes through
// internal/dbx with hand-written SQL, never struct-tag based ORM mapping.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntegrationType is the closed set of external source kinds.
type IntegrationType string

const (
	IntegrationCommerce IntegrationType = "commerce"
	IntegrationAds      IntegrationType = "ads"
)

// IntegrationStatus is the closed set of integration health states.
type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationStatusError  IntegrationStatus = "error"
	IntegrationDisconnected IntegrationStatus = "disconnected"
)

// Account is a tenant. Read-only to the worker.
type Account struct {
	ID          uuid.UUID
	Currency    string
	DisplayName string
}

// Integration is a connection between an Account and an external source.
// The worker mutates only Status, and only on fatal auth errors.
type Integration struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Type           IntegrationType
	Status         IntegrationStatus
	ExternalRef    string // shop id or ad-account id
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IntegrationSecret holds a credential for an integration. Read-only to
// the worker; rotated by the OAuth flow (out of scope here).
type IntegrationSecret struct {
	IntegrationID  uuid.UUID
	Key            string
	EncryptedValue string
	UpdatedAt      time.Time
}

// JobType is the closed tagged union of sync jobs the dispatcher knows how
// to run. An unrecognised job_type value read from the database has no
// entry in the handler table, which the dispatcher treats as its runtime
// unknown-job-type fallback.
type JobType string

const (
	JobCommerceFresh      JobType = "commerce_fresh"
	JobCommerceWindowFill JobType = "commerce_window_fill"
	JobAdsFresh           JobType = "ads_fresh"
	JobAdsWindowFill      JobType = "ads_window_fill"
)

// KnownJobTypes enumerates every job type the dispatcher can resolve a
// handler for. The dispatcher itself resolves handlers through the map
// built by jobs.NewHandlers and does not read this list.
var KnownJobTypes = []JobType{
	JobCommerceFresh,
	JobCommerceWindowFill,
	JobAdsFresh,
	JobAdsWindowFill,
}

// RunTrigger is who caused a Sync Run to be enqueued.
type RunTrigger string

const (
	TriggerAuto   RunTrigger = "auto"
	TriggerUser   RunTrigger = "user"
	TriggerSystem RunTrigger = "system"
)

// RunStatus is the closed lifecycle of a Sync Run: queued -> running ->
// {success, error}, never reused.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ErrorCode is the closed set of error kinds a terminated run may carry.
type ErrorCode string

const (
	ErrAuth              ErrorCode = "auth_error"
	ErrRateLimited       ErrorCode = "rate_limited"
	ErrSourceUnavailable ErrorCode = "source_unavailable"
	ErrBulkNotReady      ErrorCode = "bulk_not_ready"
	ErrSchemaMismatch    ErrorCode = "schema_mismatch"
	ErrDBWrite           ErrorCode = "db_write_error"
	ErrUnknownJobType    ErrorCode = "unknown_job_type"
	ErrWorker            ErrorCode = "worker_error"
)

// MaxErrorMessageLen is the stored ceiling for Sync Run error_message.
const MaxErrorMessageLen = 1000

// TruncateErrorMessage enforces MaxErrorMessageLen, appending a
// truncation indicator when the input exceeded it.
func TruncateErrorMessage(msg string) string {
	const indicator = "...[truncated]"
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	cut := MaxErrorMessageLen - len(indicator)
	if cut < 0 {
		cut = 0
	}
	return msg[:cut] + indicator
}

// SyncRun is a single attempt to execute one job for one integration.
type SyncRun struct {
	ID               uuid.UUID
	IntegrationID    uuid.UUID
	JobType          string
	Trigger          RunTrigger
	Status           RunStatus
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	RateLimited      bool
	RateLimitResetAt *time.Time
	RetryCount       int
	ErrorCode        *ErrorCode
	ErrorMessage     *string
	Stats            map[string]any
}

// SyncCursor is a watermark per (integration, job type, cursor key).
// CursorValue must never regress.
type SyncCursor struct {
	IntegrationID uuid.UUID
	JobType       string
	CursorKey     string
	CursorValue   string
	UpdatedAt     time.Time
}

// CommerceOrderFact is one normalised commerce order row.
type CommerceOrderFact struct {
	IntegrationID uuid.UUID
	AccountID     uuid.UUID
	ShopRef       string
	OrderName     string
	Gross         decimal.Decimal
	Net           decimal.Decimal
	RefundTotal   decimal.Decimal
	Currency      string
	OrderDate     string // YYYY-MM-DD
	Status        *string
	UpdatedAt     time.Time
}

// AdsDailyFact is one (ad-account, date) row.
type AdsDailyFact struct {
	IntegrationID   uuid.UUID
	AccountID       uuid.UUID
	AdAccountRef    string
	Date            string // YYYY-MM-DD
	Spend           decimal.Decimal
	Impressions     int64
	Clicks          int64
	PurchaseCount   int64
	PurchaseValue   decimal.Decimal
	Currency        string
}

// CommerceDailyMetrics is the regenerated-wholesale per-shop-per-day
// aggregate.
type CommerceDailyMetrics struct {
	ShopRef     string
	AccountID   uuid.UUID
	Date        string
	Orders      int64
	RevenueNet  decimal.Decimal
	RevenueGross decimal.Decimal
	RefundTotal decimal.Decimal
	Currency    string
}

// AdsDailyMetrics is the regenerated-wholesale per-ad-account-per-day
// aggregate.
type AdsDailyMetrics struct {
	AdAccountRef  string
	AccountID     uuid.UUID
	Date          string
	Spend         decimal.Decimal
	Impressions   int64
	Clicks        int64
	PurchaseCount int64
	PurchaseValue decimal.Decimal
	Currency      string
}

// DailySummary is the blended per-account-per-day view.
type DailySummary struct {
	AccountID  uuid.UUID
	Date       string
	RevenueNet decimal.Decimal
	AdsSpend   decimal.Decimal
	MER        *decimal.Decimal
	Orders     int64
	AOV        decimal.Decimal
}

// ComputeMER computes the marketing efficiency ratio: revenue_net /
// ads_spend when ads_spend > 0, else nil (SQL NULL).
func ComputeMER(revenueNet, adsSpend decimal.Decimal) *decimal.Decimal {
	if adsSpend.IsPositive() {
		mer := revenueNet.Div(adsSpend)
		return &mer
	}
	return nil
}

// ComputeAOV computes the average order value: revenue_net / orders
// when orders > 0, else 0.
func ComputeAOV(revenueNet decimal.Decimal, orders int64) decimal.Decimal {
	if orders > 0 {
		return revenueNet.Div(decimal.NewFromInt(orders))
	}
	return decimal.Zero
}
