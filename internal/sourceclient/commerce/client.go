package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient"
	"commerce-ingest-worker/internal/throttle"
)

// bulkTimeout is the ceiling for one commerce query before the worker
// classifies the failure as bulk_not_ready.
const bulkTimeout = 300 * time.Second

// pageSize is the number of orders requested per GraphQL page.
const pageSize = 100

// Client is the commerce GraphQL client for one integration's shop.
type Client struct {
	http       *resty.Client
	shopDomain string
	apiVersion string
	log        *zap.Logger
}

// Config carries what the client needs to authenticate against one shop.
type Config struct {
	ShopDomain   string
	OfflineToken string
	APIVersion   string
	IPv4Override string
}

// New builds a Client for one shop's commerce GraphQL endpoint.
func New(cfg Config, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopDomain, cfg.APIVersion)).
		SetTimeout(bulkTimeout).
		SetHeader("X-Commerce-Access-Token", cfg.OfflineToken).
		SetHeader("Content-Type", "application/json")

	if cfg.IPv4Override != "" {
		dialer := &net.Dialer{}
		httpClient.SetTransport(&http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, "tcp4", addr)
			},
		})
	}

	return &Client{
		http:       httpClient,
		shopDomain: cfg.ShopDomain,
		apiVersion: cfg.APIVersion,
		log:        log.Named("commerce_client"),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data struct {
		Orders struct {
			Edges []struct {
				Cursor string   `json:"cursor"`
				Node   orderDTO `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"orders"`
	} `json:"data"`
	Extensions struct {
		Cost struct {
			RequestedQueryCost float64 `json:"requestedQueryCost"`
			ThrottleStatus     struct {
				MaximumAvailable   float64 `json:"maximumAvailable"`
				CurrentlyAvailable float64 `json:"currentlyAvailable"`
				RestoreRate        float64 `json:"restoreRate"`
			} `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
	Errors []struct {
		Message   string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

type orderDTO struct {
	ID                string  `json:"id"`
	Name              *string `json:"name"`
	OrderNumber       *string `json:"orderNumber"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
	Currency          *string `json:"currencyCode"`
	Total             string  `json:"totalPriceSet"`
	CurrentTotal      *string `json:"currentTotalPriceSet"`
	TotalRefunds      *string `json:"totalRefundedSet"`
	FinancialStatus   *string `json:"displayFinancialStatus"`
	FulfillmentStatus *string `json:"displayFulfillmentStatus"`
}

const ordersQuery = `
query($first: Int!, $after: String, $query: String!, $sortKey: OrderSortKeys!) {
  orders(first: $first, after: $after, query: $query, sortKey: $sortKey) {
    edges {
      cursor
      node {
        id
        name
        orderNumber: legacyResourceId
        createdAt
        updatedAt
        currencyCode
        totalPriceSet
        currentTotalPriceSet
        totalRefundedSet
        displayFinancialStatus
        displayFulfillmentStatus
      }
    }
    pageInfo { hasNextPage }
  }
}`

// fetchPage issues one GraphQL page request and maps the response,
// applying the worker's closed error classification.
func (c *Client) fetchPage(ctx context.Context, shopCurrency, filter string, key sortKey, after string) (PageResult, error) {
	vars := map[string]any{
		"first":   pageSize,
		"query":   filter,
		"sortKey": string(key),
	}
	if after != "" {
		vars["after"] = after
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(graphqlRequest{Query: ordersQuery, Variables: vars}).
		Post("/graphql.json")

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return PageResult{}, sourceclient.Classify(model.ErrBulkNotReady, err)
		}
		return PageResult{}, sourceclient.Classify(model.ErrSourceUnavailable, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return PageResult{}, sourceclient.Classify(model.ErrAuth, fmt.Errorf("commerce auth failed: status %d", resp.StatusCode()))
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return PageResult{}, sourceclient.Classify(model.ErrRateLimited, fmt.Errorf("commerce rate limited: status %d", resp.StatusCode()))
	}
	if resp.StatusCode() >= 500 {
		return PageResult{}, sourceclient.Classify(model.ErrSourceUnavailable, fmt.Errorf("commerce server error: status %d", resp.StatusCode()))
	}
	if resp.StatusCode() >= 400 {
		return PageResult{}, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("commerce request rejected: status %d, body %s", resp.StatusCode(), resp.String()))
	}

	var body graphqlResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return PageResult{}, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("commerce response decode: %w", err))
	}

	for _, e := range body.Errors {
		switch e.Extensions.Code {
		case "ACCESS_DENIED", "UNAUTHENTICATED":
			return PageResult{}, sourceclient.Classify(model.ErrAuth, errors.New(e.Message))
		case "THROTTLED", "MAX_COST_EXCEEDED":
			return PageResult{}, sourceclient.Classify(model.ErrRateLimited, errors.New(e.Message))
		default:
			return PageResult{}, sourceclient.Classify(model.ErrSchemaMismatch, errors.New(e.Message))
		}
	}

	orders := make([]Order, 0, len(body.Data.Orders.Edges))
	var endCursor string
	for _, edge := range body.Data.Orders.Edges {
		endCursor = edge.Cursor
		createdAt, err := time.Parse(time.RFC3339, edge.Node.CreatedAt)
		if err != nil {
			return PageResult{}, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("order %s: bad created_at: %w", edge.Node.ID, err))
		}
		updatedAt, err := time.Parse(time.RFC3339, edge.Node.UpdatedAt)
		if err != nil {
			return PageResult{}, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("order %s: bad updated_at: %w", edge.Node.ID, err))
		}
		orders = append(orders, Order{
			ID:                edge.Node.ID,
			Name:              edge.Node.Name,
			OrderNumber:       edge.Node.OrderNumber,
			CreatedAt:         createdAt,
			UpdatedAt:         updatedAt,
			Currency:          edge.Node.Currency,
			ShopCurrency:      shopCurrency,
			Total:             edge.Node.Total,
			CurrentTotal:      edge.Node.CurrentTotal,
			TotalRefunds:      edge.Node.TotalRefunds,
			FinancialStatus:   edge.Node.FinancialStatus,
			FulfillmentStatus: edge.Node.FulfillmentStatus,
		})
	}

	hasNext := body.Data.Orders.PageInfo.HasNextPage
	if hasNext && endCursor == "" {
		c.log.Warn("commerce API reported hasNextPage with no cursor, terminating pagination",
			zap.String("shop", c.shopDomain))
		hasNext = false
	}

	return PageResult{
		Orders:      orders,
		HasNextPage: hasNext,
		EndCursor:   endCursor,
		APICalls:    1,
		Telemetry: CostTelemetryRaw{
			CurrentlyAvailable: body.Extensions.Cost.ThrottleStatus.CurrentlyAvailable,
			MaximumAvailable:   body.Extensions.Cost.ThrottleStatus.MaximumAvailable,
			RestoreRate:        body.Extensions.Cost.ThrottleStatus.RestoreRate,
			RequestedQueryCost: body.Extensions.Cost.RequestedQueryCost,
		},
	}, nil
}

// FetchAll paginates fully, following page_info.hasNextPage+endCursor and
// applying internal/throttle between pages. clock.Sleep
// is injected via sleepFn so tests don't actually wait.
func (c *Client) FetchAll(ctx context.Context, shopCurrency, filter string, key sortKey, sleepFn func(time.Duration)) ([]Order, int, error) {
	var all []Order
	var after string
	calls := 0

	for {
		page, err := c.fetchPage(ctx, shopCurrency, filter, key, after)
		if err != nil {
			return all, calls, err
		}
		calls += page.APICalls
		all = append(all, page.Orders...)

		delay := throttle.Delay(throttle.CostTelemetry{
			CurrentlyAvailable: page.Telemetry.CurrentlyAvailable,
			MaximumAvailable:   page.Telemetry.MaximumAvailable,
			RestoreRate:        page.Telemetry.RestoreRate,
			RequestedQueryCost: page.Telemetry.RequestedQueryCost,
		})
		if delay > 0 {
			sleepFn(delay)
		}

		if !page.HasNextPage {
			break
		}
		after = page.EndCursor
	}

	return all, calls, nil
}

// FetchCreatedSince implements the window_fill fetch:
// filter created_at >= since, sorted by CREATED_AT.
func (c *Client) FetchCreatedSince(ctx context.Context, shopCurrency string, since time.Time, sleepFn func(time.Duration)) ([]Order, int, error) {
	filter := fmt.Sprintf("created_at:>='%s'", since.UTC().Format(time.RFC3339))
	return c.FetchAll(ctx, shopCurrency, filter, sortByCreatedAt, sleepFn)
}

// FetchUpdatedSince implements the fresh fetch: filter
// updated_at >= cursor, sorted by UPDATED_AT.
func (c *Client) FetchUpdatedSince(ctx context.Context, shopCurrency string, since time.Time, sleepFn func(time.Duration)) ([]Order, int, error) {
	filter := fmt.Sprintf("updated_at:>='%s'", since.UTC().Format(time.RFC3339))
	return c.FetchAll(ctx, shopCurrency, filter, sortByUpdatedAt, sleepFn)
}
