package commerce

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-ingest-worker/internal/logging"
	"commerce-ingest-worker/internal/sourceclient"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	log, err := logging.New(logging.Options{Level: "error"})
	require.NoError(t, err)

	c := New(Config{ShopDomain: "shop.example.com", OfflineToken: "tok", APIVersion: "2025-01"}, log)
	c.http.SetBaseURL(srv.URL)
	return c
}

func TestFetchAll_SinglePageNoNext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"orders": {"edges": [
				{"cursor": "c1", "node": {"id": "1", "createdAt": "2026-01-20T10:00:00Z", "updatedAt": "2026-01-20T10:00:00Z", "totalPriceSet": "150"}}
			], "pageInfo": {"hasNextPage": false}}},
			"extensions": {"cost": {"requestedQueryCost": 2, "throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 998, "restoreRate": 50}}}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	orders, calls, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "AUD", orders[0].ShopCurrency)
}

func TestFetchAll_PaginatesUntilHasNextPageFalse(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Write([]byte(`{
				"data": {"orders": {"edges": [
					{"cursor": "c1", "node": {"id": "1", "createdAt": "2026-01-20T10:00:00Z", "updatedAt": "2026-01-20T10:00:00Z", "totalPriceSet": "10"}}
				], "pageInfo": {"hasNextPage": true}}},
				"extensions": {"cost": {"requestedQueryCost": 1, "throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 900, "restoreRate": 50}}}
			}`))
			return
		}
		w.Write([]byte(`{
			"data": {"orders": {"edges": [
				{"cursor": "c2", "node": {"id": "2", "createdAt": "2026-01-21T10:00:00Z", "updatedAt": "2026-01-21T10:00:00Z", "totalPriceSet": "20"}}
			], "pageInfo": {"hasNextPage": false}}},
			"extensions": {"cost": {"requestedQueryCost": 1, "throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 999, "restoreRate": 50}}}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var slept []time.Duration
	orders, calls, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(d time.Duration) { slept = append(slept, d) })

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, orders, 2)
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "2", orders[1].ID)
}

func TestFetchAll_HasNextPageWithEmptyCursorTerminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"orders": {"edges": [
				{"cursor": "", "node": {"id": "1", "createdAt": "2026-01-20T10:00:00Z", "updatedAt": "2026-01-20T10:00:00Z", "totalPriceSet": "10"}}
			], "pageInfo": {"hasNextPage": true}}},
			"extensions": {"cost": {"requestedQueryCost": 1, "throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 999, "restoreRate": 50}}}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	orders, calls, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, orders, 1)
}

func TestFetchAll_AuthErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.Error(t, err)
	assert.Equal(t, sourceclient.ErrorKind("auth_error"), sourceclient.KindOf(err))
}

func TestFetchAll_RateLimitedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.Error(t, err)
	assert.Equal(t, sourceclient.ErrorKind("rate_limited"), sourceclient.KindOf(err))
}

func TestFetchAll_GraphQLThrottledErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "throttled", "extensions": {"code": "THROTTLED"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.Error(t, err)
	assert.Equal(t, sourceclient.ErrorKind("rate_limited"), sourceclient.KindOf(err))
}

func TestFetchAll_ServerErrorClassifiedSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.FetchAll(t.Context(), "AUD", "", sortByCreatedAt, func(time.Duration) {})

	require.Error(t, err)
	assert.Equal(t, sourceclient.ErrorKind("source_unavailable"), sourceclient.KindOf(err))
}
