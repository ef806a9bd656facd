package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

const tiktokStatTimeLayout = "2006-01-02 15:04:05"

type tiktokReportResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		List []struct {
			Dimensions struct {
				CampaignID  string `json:"campaign_id"`
				StatTimeDay string `json:"stat_time_day"`
			} `json:"dimensions"`
			Metrics struct {
				Impressions          string `json:"impressions"`
				Clicks               string `json:"clicks"`
				Spend                string `json:"spend"`
				Conversion           string `json:"conversion"`
				CompletePayment      string `json:"complete_payment"`
				TotalCompletePayment string `json:"total_complete_payment"`
			} `json:"metrics"`
		} `json:"list"`
		PageInfo struct {
			Page      int `json:"page"`
			TotalPage int `json:"total_page"`
		} `json:"page_info"`
	} `json:"data"`
}

// TikTokClient fetches campaign metrics from the TikTok Business API
type TikTokClient struct {
	cfg    config.PlatformAPIConfig
	client *http.Client
}

// NewTikTokClient creates a TikTok adapter
func NewTikTokClient(cfg config.PlatformAPIConfig) *TikTokClient {
	return &TikTokClient{
		cfg:    cfg,
		client: newPlatformHTTPClient(cfg.Timeout),
	}
}

func (c *TikTokClient) Platform() models.Platform { return models.PlatformTikTokAds }

// FetchMetrics pulls campaign-level daily metrics for the window.
// Conversions map to leads, complete payments to sales and the payment
// total to revenue.
func (c *TikTokClient) FetchMetrics(ctx context.Context, cred models.Credential, window DateRange) ([]RawMetric, error) {
	tiktokCred, ok := cred.(models.TikTokCredential)
	if !ok {
		return nil, fmt.Errorf("%w: expected tiktok_ads credential, got %s", models.ErrUnknownPlatform, cred.Platform())
	}

	var metrics []RawMetric
	page := 1
	for {
		out, err := c.fetchPage(ctx, tiktokCred, window, page)
		if err != nil {
			return nil, err
		}

		for _, item := range out.Data.List {
			date, err := time.Parse(tiktokStatTimeLayout, item.Dimensions.StatTimeDay)
			if err != nil {
				return nil, NewPlatformError(models.PlatformTikTokAds,
					fmt.Sprintf("unparseable stat_time_day %q", item.Dimensions.StatTimeDay), err)
			}
			metrics = append(metrics, RawMetric{
				ExternalCampaignID: item.Dimensions.CampaignID,
				Date:               date,
				Impressions:        parseWireInt(item.Metrics.Impressions),
				Clicks:             parseWireInt(item.Metrics.Clicks),
				Investment:         parseWireFloat(item.Metrics.Spend),
				Leads:              parseWireInt(item.Metrics.Conversion),
				Sales:              parseWireInt(item.Metrics.CompletePayment),
				Revenue:            parseWireFloat(item.Metrics.TotalCompletePayment),
			})
		}

		if out.Data.PageInfo.TotalPage <= page {
			break
		}
		page++
	}

	return metrics, nil
}

// fetchPage executes one page of the integrated report
func (c *TikTokClient) fetchPage(ctx context.Context, cred models.TikTokCredential, window DateRange, page int) (*tiktokReportResponse, error) {
	dimensions, _ := json.Marshal([]string{"campaign_id", "stat_time_day"})
	reportMetrics, _ := json.Marshal([]string{
		"impressions", "clicks", "spend", "conversion", "complete_payment", "total_complete_payment",
	})

	params := url.Values{}
	params.Set("advertiser_id", cred.AdvertiserID)
	params.Set("report_type", "BASIC")
	params.Set("data_level", "AUCTION_CAMPAIGN")
	params.Set("dimensions", string(dimensions))
	params.Set("metrics", string(reportMetrics))
	params.Set("start_date", window.Since.Format(utils.MetricDateLayout))
	params.Set("end_date", window.Until.Format(utils.MetricDateLayout))
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", "200")

	endpoint := c.cfg.BaseURL + "/report/integrated/get/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Access-Token", cred.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewPlatformError(models.PlatformTikTokAds, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewPlatformError(models.PlatformTikTokAds, fmt.Sprintf("failed to read response: %v", err), err)
	}

	var out tiktokReportResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewPlatformError(models.PlatformTikTokAds, fmt.Sprintf("malformed response: %v", err), err)
	}

	// The API reports failures with code != 0 inside an HTTP 200 body.
	if out.Code != 0 {
		return nil, NewPlatformError(models.PlatformTikTokAds,
			fmt.Sprintf("%s (code %d)", out.Message, out.Code), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewPlatformError(models.PlatformTikTokAds, fmt.Sprintf("http status %d", resp.StatusCode), nil)
	}

	return &out, nil
}
