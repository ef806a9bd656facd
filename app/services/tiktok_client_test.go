package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
)

func newTestTikTokClient(serverURL string) *TikTokClient {
	return NewTikTokClient(config.PlatformAPIConfig{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
}

func tiktokTestCredential() models.TikTokCredential {
	return models.TikTokCredential{
		AccessToken:  "tt-token",
		AdvertiserID: "555",
	}
}

func TestTikTokClientFetchMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/report/integrated/get/", r.URL.Path)
		assert.Equal(t, "tt-token", r.Header.Get("Access-Token"))
		assert.Equal(t, "555", r.URL.Query().Get("advertiser_id"))
		assert.Equal(t, "BASIC", r.URL.Query().Get("report_type"))
		assert.Equal(t, "AUCTION_CAMPAIGN", r.URL.Query().Get("data_level"))

		_, _ = w.Write([]byte(`{
			"code": 0,
			"message": "OK",
			"data": {
				"list": [
					{
						"dimensions": {"campaign_id": "tt-9", "stat_time_day": "2026-03-01 00:00:00"},
						"metrics": {
							"impressions": "8000",
							"clicks": "160",
							"spend": "120.40",
							"conversion": "16",
							"complete_payment": "4",
							"total_complete_payment": "640.00"
						}
					}
				],
				"page_info": {"page": 1, "total_page": 1}
			}
		}`))
	}))
	defer srv.Close()

	client := newTestTikTokClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), tiktokTestCredential(), testWindow())

	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "tt-9", m.ExternalCampaignID)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), m.Date)
	assert.Equal(t, int64(8000), m.Impressions)
	assert.Equal(t, int64(16), m.Leads)
	assert.Equal(t, int64(4), m.Sales)
	assert.InDelta(t, 640.0, m.Revenue, 0.0001)
}

func TestTikTokClientPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{
				"code": 0,
				"data": {
					"list": [{"dimensions": {"campaign_id": "b", "stat_time_day": "2026-03-02 00:00:00"}, "metrics": {"impressions": "2", "clicks": "0", "spend": "0", "conversion": "0", "complete_payment": "0", "total_complete_payment": "0"}}],
					"page_info": {"page": 2, "total_page": 2}
				}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"code": 0,
			"data": {
				"list": [{"dimensions": {"campaign_id": "a", "stat_time_day": "2026-03-01 00:00:00"}, "metrics": {"impressions": "1", "clicks": "0", "spend": "0", "conversion": "0", "complete_payment": "0", "total_complete_payment": "0"}}],
				"page_info": {"page": 1, "total_page": 2}
			}
		}`))
	}))
	defer srv.Close()

	client := newTestTikTokClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), tiktokTestCredential(), testWindow())

	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "a", metrics[0].ExternalCampaignID)
	assert.Equal(t, "b", metrics[1].ExternalCampaignID)
}

func TestTikTokClientEmbeddedErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 with a failure code in the body
		_, _ = w.Write([]byte(`{"code": 40105, "message": "Access token is expired", "data": {}}`))
	}))
	defer srv.Close()

	client := newTestTikTokClient(srv.URL)
	_, err := client.FetchMetrics(context.Background(), tiktokTestCredential(), testWindow())

	require.Error(t, err)
	pe, ok := AsPlatformError(err)
	require.True(t, ok)
	assert.Equal(t, models.PlatformTikTokAds, pe.Platform)
	assert.Equal(t, ErrorCategoryAuth, pe.Category)
	assert.Contains(t, pe.Detail, "40105")
}
