package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient"
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 5
	backoffBase    = 1 * time.Second
	backoffFactor  = 2.0
	backoffMax     = 60 * time.Second
	jitterCeilMS   = 250
)

// Client is the ads REST client for one ad-account integration.
type Client struct {
	http         *resty.Client
	adAccountRef string
	clock        clock.Clock
	log          *zap.Logger
}

// Config carries what the client needs to authenticate against one
// ad-account.
type Config struct {
	BaseURL       string
	AccessToken   string
	AdAccountRef  string
	IPv4Override  string

	// Clock is used for the backoff sleep between retries; defaults to
	// clock.System{} when unset so tests can inject a clock.Fake and
	// avoid real sleeps.
	Clock clock.Clock
}

// New builds a Client using the same resty-construction idiom as the
// commerce client.
func New(cfg Config, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(requestTimeout).
		SetHeader("Authorization", "Bearer "+cfg.AccessToken)

	if cfg.IPv4Override != "" {
		dialer := &net.Dialer{}
		httpClient.SetTransport(&http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, "tcp4", addr)
			},
		})
	}

	cl := cfg.Clock
	if cl == nil {
		cl = clock.System{}
	}

	return &Client{
		http:         httpClient,
		adAccountRef: cfg.AdAccountRef,
		clock:        cl,
		log:          log.Named("ads_client"),
	}
}

type insightsResponse struct {
	Data []struct {
		AdID          string `json:"ad_id"`
		DateStart     string `json:"date_start"`
		Spend         string `json:"spend"`
		Impressions   string `json:"impressions"`
		Clicks        string `json:"clicks"`
		PurchaseCount string `json:"purchase_count"`
		PurchaseValue string `json:"purchase_value"`
		Currency      string `json:"currency"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchDay fetches ad-level insights for exactly one day (time range
// [day, day], level=ad, effective_status in {ACTIVE,PAUSED}), following
// paging.next until exhaustion, with exponential backoff and jitter on
// 429/5xx responses.
//
// Retries is returned so the handler can report it in run stats.
func (c *Client) FetchDay(ctx context.Context, day string) ([]Insight, int, error) {
	var all []Insight
	retries := 0
	url := c.insightsURL(day, "")

	for url != "" {
		page, pageRetries, err := c.fetchPageWithBackoff(ctx, url)
		retries += pageRetries
		if err != nil {
			return all, retries, err
		}
		all = append(all, page.Insights...)
		url = page.NextURL
	}

	return all, retries, nil
}

func (c *Client) insightsURL(day, after string) string {
	base := fmt.Sprintf("/v1/%s/insights?level=ad&effective_status=ACTIVE,PAUSED&time_range=%s,%s", c.adAccountRef, day, day)
	if after != "" {
		base += "&after=" + after
	}
	return base
}

// fetchPageWithBackoff performs one page fetch, retrying on 429/5xx with
// exponential backoff and additive jitter bounded at jitterCeilMS,
// grounded loosely on dutchgtr's Stats.consecutive429/maybeGlobalCooloff
// shape but implemented with cenkalti/backoff/v5 rather than a hand-rolled
// counter.
func (c *Client) fetchPageWithBackoff(ctx context.Context, url string) (PageResult, int, error) {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     backoffBase,
		Multiplier:          backoffFactor,
		MaxInterval:         backoffMax,
		RandomizationFactor: 0,
	}
	eb.Reset()

	retries := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		page, retryable, err := c.fetchPage(ctx, url)
		if err == nil {
			return page, retries, nil
		}
		if !retryable || attempt == maxAttempts {
			return PageResult{}, retries, err
		}

		retries++
		wait := eb.NextBackOff()
		if wait == backoff.Stop {
			wait = backoffMax
		}
		jitter := time.Duration(rand.Intn(jitterCeilMS+1)) * time.Millisecond
		c.log.Debug("ads fetch retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait+jitter))
		c.clock.Sleep(wait + jitter)
	}

	return PageResult{}, retries, sourceclient.Classify(model.ErrRateLimited, fmt.Errorf("ads fetch exhausted %d attempts", maxAttempts))
}

// fetchPage performs a single HTTP round trip. The bool return reports
// whether the error is retryable (429/5xx/network); non-retryable errors
// (auth, malformed schema) short-circuit the backoff loop.
func (c *Client) fetchPage(ctx context.Context, url string) (PageResult, bool, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return PageResult{}, true, sourceclient.Classify(model.ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return PageResult{}, false, sourceclient.Classify(model.ErrAuth, fmt.Errorf("ads auth failed: status %d", resp.StatusCode()))
	case resp.StatusCode() == http.StatusTooManyRequests:
		return PageResult{}, true, sourceclient.Classify(model.ErrRateLimited, fmt.Errorf("ads rate limited: status %d", resp.StatusCode()))
	case resp.StatusCode() >= 500:
		return PageResult{}, true, sourceclient.Classify(model.ErrSourceUnavailable, fmt.Errorf("ads server error: status %d", resp.StatusCode()))
	case resp.StatusCode() >= 400:
		return PageResult{}, false, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("ads request rejected: status %d, body %s", resp.StatusCode(), resp.String()))
	}

	var body insightsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return PageResult{}, false, sourceclient.Classify(model.ErrSchemaMismatch, fmt.Errorf("ads response decode: %w", err))
	}

	insights := make([]Insight, 0, len(body.Data))
	for _, d := range body.Data {
		impressions, _ := parseIntSafe(d.Impressions)
		clicks, _ := parseIntSafe(d.Clicks)
		purchaseCount, _ := parseIntSafe(d.PurchaseCount)
		insights = append(insights, Insight{
			AdID:          d.AdID,
			Date:          d.DateStart,
			Spend:         d.Spend,
			Impressions:   impressions,
			Clicks:        clicks,
			PurchaseCount: purchaseCount,
			PurchaseValue: d.PurchaseValue,
			Currency:      d.Currency,
		})
	}

	return PageResult{Insights: insights, NextURL: body.Paging.Next}, false, nil
}
