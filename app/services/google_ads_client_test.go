package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
)

func newTestGoogleAdsClient(serverURL string) *GoogleAdsClient {
	return NewGoogleAdsClient(config.PlatformAPIConfig{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
}

func googleTestCredential() models.GoogleAdsCredential {
	return models.GoogleAdsCredential{
		ClientID:       "client",
		ClientSecret:   "secret",
		RefreshToken:   "refresh",
		DeveloperToken: "dev-token",
		CustomerID:     "123-456-7890",
		AccessToken:    "access",
	}
}

func TestNormalizeGoogleCustomerID(t *testing.T) {
	assert.Equal(t, "1234567890", NormalizeGoogleCustomerID("123-456-7890"))
	assert.Equal(t, "1234567890", NormalizeGoogleCustomerID("1234567890"))
	assert.Equal(t, "1234567890", NormalizeGoogleCustomerID(NormalizeGoogleCustomerID("123-456-7890")))
}

func TestGoogleAdsClientFetchMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/1234567890/googleAds:search", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))

		var req googleAdsSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "FROM campaign")
		assert.Contains(t, req.Query, "BETWEEN '2026-03-01' AND '2026-03-07'")

		_, _ = w.Write([]byte(`{
			"results": [
				{
					"campaign": {"id": "987", "name": "Brand"},
					"metrics": {
						"impressions": "5000",
						"clicks": "125",
						"costMicros": "42500000",
						"conversions": 10.0,
						"conversionsValue": 320.5
					},
					"segments": {"date": "2026-03-01"}
				}
			]
		}`))
	}))
	defer srv.Close()

	client := newTestGoogleAdsClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), googleTestCredential(), testWindow())

	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "987", m.ExternalCampaignID)
	assert.Equal(t, int64(5000), m.Impressions)
	assert.Equal(t, int64(125), m.Clicks)
	assert.InDelta(t, 42.5, m.Investment, 0.0001) // costMicros scaled down
	assert.Equal(t, int64(10), m.Leads)
	assert.InDelta(t, 320.5, m.Revenue, 0.0001)
	assert.Zero(t, m.Sales)
}

func TestGoogleAdsClientPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req googleAdsSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.PageToken == "" {
			_, _ = w.Write([]byte(`{
				"results": [{"campaign": {"id": "1"}, "metrics": {"impressions": "1", "clicks": "0", "costMicros": "0"}, "segments": {"date": "2026-03-01"}}],
				"nextPageToken": "tok-2"
			}`))
			return
		}
		assert.Equal(t, "tok-2", req.PageToken)
		_, _ = w.Write([]byte(`{
			"results": [{"campaign": {"id": "2"}, "metrics": {"impressions": "2", "clicks": "0", "costMicros": "0"}, "segments": {"date": "2026-03-02"}}]
		}`))
	}))
	defer srv.Close()

	client := newTestGoogleAdsClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), googleTestCredential(), testWindow())

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, metrics, 2)
	assert.Equal(t, "2", metrics[1].ExternalCampaignID)
}

func TestGoogleAdsClientAPIErrorCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "The caller does not have permission", "status": "PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	client := newTestGoogleAdsClient(srv.URL)
	_, err := client.FetchMetrics(context.Background(), googleTestCredential(), testWindow())

	require.Error(t, err)
	pe, ok := AsPlatformError(err)
	require.True(t, ok)
	assert.Equal(t, models.PlatformGoogleAds, pe.Platform)
	assert.Equal(t, ErrorCategoryPermission, pe.Category)
}
