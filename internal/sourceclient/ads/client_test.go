package ads

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/logging"
	"commerce-ingest-worker/internal/sourceclient"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	log, err := logging.New(logging.Options{Level: "error"})
	require.NoError(t, err)
	fake := clock.NewFake(time.Now())
	return New(Config{BaseURL: srv.URL, AccessToken: "tok", AdAccountRef: "act_1", Clock: fake}, log)
}

func TestFetchDay_SinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"ad_id": "a1", "date_start": "2026-01-20", "spend": "10.50", "impressions": "100", "clicks": "5", "purchase_count": "1", "purchase_value": "50"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	insights, retries, err := c.FetchDay(t.Context(), "2026-01-20")

	require.NoError(t, err)
	assert.Equal(t, 0, retries)
	require.Len(t, insights, 1)
	assert.Equal(t, "a1", insights[0].AdID)
	assert.Equal(t, int64(100), insights[0].Impressions)
}

func TestFetchDay_RetriesOn429ThenSucceeds(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data": [{"ad_id": "a1", "date_start": "2026-01-20", "spend": "5", "impressions": "10", "clicks": "1", "purchase_count": "0", "purchase_value": "0"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	insights, retries, err := c.FetchDay(t.Context(), "2026-01-20")

	require.NoError(t, err)
	assert.Equal(t, 1, retries)
	require.Len(t, insights, 1)
}

func TestFetchDay_PaginatesViaPagingNext(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Write([]byte(`{"data": [{"ad_id": "a1", "date_start": "2026-01-20", "spend": "1", "impressions": "1", "clicks": "1", "purchase_count": "0", "purchase_value": "0"}], "paging": {"next": "cursor2"}}`))
			return
		}
		w.Write([]byte(`{"data": [{"ad_id": "a2", "date_start": "2026-01-20", "spend": "2", "impressions": "2", "clicks": "2", "purchase_count": "0", "purchase_value": "0"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	insights, _, err := c.FetchDay(t.Context(), "2026-01-20")

	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, "a1", insights[0].AdID)
	assert.Equal(t, "a2", insights[1].AdID)
}

func TestFetchDay_AuthErrorNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, retries, err := c.FetchDay(t.Context(), "2026-01-20")

	require.Error(t, err)
	assert.Equal(t, 0, retries)
	assert.Equal(t, 1, requests)
	assert.Equal(t, sourceclient.ErrorKind("auth_error"), sourceclient.KindOf(err))
}

func TestParseIntSafe_EmptyIsZero(t *testing.T) {
	v, err := parseIntSafe("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestParseIntSafe_ParsesDigits(t *testing.T) {
	v, err := parseIntSafe("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}
