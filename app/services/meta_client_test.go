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

func testWindow() DateRange {
	return DateRange{
		Since: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
	}
}

func newTestMetaClient(serverURL string) *MetaClient {
	return NewMetaClient(config.PlatformAPIConfig{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
}

func TestNormalizeMetaAccountID(t *testing.T) {
	assert.Equal(t, "act_123456", NormalizeMetaAccountID("123456"))
	assert.Equal(t, "act_123456", NormalizeMetaAccountID("act_123456"))
	assert.Equal(t, "act_123456", NormalizeMetaAccountID(" 123456 "))
	// Applying it twice must not stack prefixes
	assert.Equal(t, "act_123456", NormalizeMetaAccountID(NormalizeMetaAccountID("123456")))
}

func TestMetaClientFetchMetrics(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		assert.Equal(t, "campaign", r.URL.Query().Get("level"))
		assert.Equal(t, "1", r.URL.Query().Get("time_increment"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{
					"campaign_id": "c-100",
					"campaign_name": "Spring",
					"date_start": "2026-03-01",
					"date_stop": "2026-03-01",
					"impressions": "12000",
					"clicks": "300",
					"spend": "450.50",
					"actions": [
						{"action_type": "lead", "value": "12"},
						{"action_type": "purchase", "value": "3"},
						{"action_type": "link_click", "value": "280"}
					],
					"action_values": [
						{"action_type": "purchase", "value": "900.00"}
					]
				}
			],
			"paging": {}
		}`))
	}))
	defer srv.Close()

	client := newTestMetaClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), models.MetaCredential{
		AccessToken: "token",
		AccountID:   "123456",
	}, testWindow())

	require.NoError(t, err)
	assert.Equal(t, "/act_123456/insights", requestedPath)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "c-100", m.ExternalCampaignID)
	assert.Equal(t, int64(12000), m.Impressions)
	assert.Equal(t, int64(300), m.Clicks)
	assert.InDelta(t, 450.50, m.Investment, 0.0001)
	assert.Equal(t, int64(12), m.Leads)
	assert.Equal(t, int64(3), m.Sales)
	assert.InDelta(t, 900.0, m.Revenue, 0.0001)
}

func TestMetaClientFetchMetricsEmptyAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [], "paging": {}}`))
	}))
	defer srv.Close()

	client := newTestMetaClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), models.MetaCredential{
		AccessToken: "token",
		AccountID:   "123456",
	}, testWindow())

	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestMetaClientFetchMetricsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "page2" {
			_, _ = w.Write([]byte(`{
				"data": [{"campaign_id": "c-2", "date_start": "2026-03-02", "date_stop": "2026-03-02", "impressions": "2", "clicks": "0", "spend": "0"}],
				"paging": {}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"data": [{"campaign_id": "c-1", "date_start": "2026-03-01", "date_stop": "2026-03-01", "impressions": "1", "clicks": "0", "spend": "0"}],
			"paging": {"next": "` + srv.URL + `/act_123456/insights?after=page2"}
		}`))
	}))
	defer srv.Close()

	client := newTestMetaClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), models.MetaCredential{
		AccessToken: "token",
		AccountID:   "123456",
	}, testWindow())

	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "c-1", metrics[0].ExternalCampaignID)
	assert.Equal(t, "c-2", metrics[1].ExternalCampaignID)
}

func TestMetaClientAPIErrorCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Error validating access token: Session has expired", "type": "OAuthException", "code": 190}}`))
	}))
	defer srv.Close()

	client := newTestMetaClient(srv.URL)
	_, err := client.FetchMetrics(context.Background(), models.MetaCredential{
		AccessToken: "stale",
		AccountID:   "123456",
	}, testWindow())

	require.Error(t, err)
	pe, ok := AsPlatformError(err)
	require.True(t, ok)
	assert.Equal(t, models.PlatformMeta, pe.Platform)
	assert.Equal(t, ErrorCategoryAuth, pe.Category)
	assert.Contains(t, pe.Detail, "Session has expired")
}

func TestMetaClientRejectsForeignCredential(t *testing.T) {
	client := newTestMetaClient("http://unused")
	_, err := client.FetchMetrics(context.Background(), models.TikTokCredential{
		AccessToken:  "token",
		AdvertiserID: "999",
	}, testWindow())

	assert.Error(t, err)
}

func TestMetaClientFetchAdInsights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ad", r.URL.Query().Get("level"))
		assert.Equal(t, "age,gender,device_platform,publisher_platform", r.URL.Query().Get("breakdowns"))

		_, _ = w.Write([]byte(`{
			"data": [
				{
					"ad_id": "a-1",
					"ad_name": "Creative A",
					"campaign_name": "Spring",
					"date_start": "2026-03-01",
					"date_stop": "2026-03-01",
					"impressions": "500",
					"clicks": "20",
					"spend": "10.00",
					"actions": [{"action_type": "lead", "value": "2"}],
					"age": "25-34",
					"gender": "male",
					"device_platform": "mobile_app",
					"publisher_platform": "facebook"
				}
			],
			"paging": {}
		}`))
	}))
	defer srv.Close()

	client := newTestMetaClient(srv.URL)
	insights, err := client.FetchAdInsights(context.Background(), models.MetaCredential{
		AccessToken: "token",
		AccountID:   "123456",
	}, testWindow())

	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "a-1", insights[0].AdID)
	assert.Equal(t, "25-34", insights[0].AgeRange)
	assert.Equal(t, "facebook", insights[0].PublisherPlatform)
	assert.Equal(t, int64(2), insights[0].Conversions)
}
