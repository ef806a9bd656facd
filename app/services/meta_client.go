package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

// metaInsightRow mirrors one entry of the Graph API insights response.
// Numeric fields arrive as strings.
type metaInsightRow struct {
	CampaignID        string           `json:"campaign_id"`
	CampaignName      string           `json:"campaign_name"`
	AdID              string           `json:"ad_id"`
	AdName            string           `json:"ad_name"`
	DateStart         string           `json:"date_start"`
	DateStop          string           `json:"date_stop"`
	Impressions       string           `json:"impressions"`
	Clicks            string           `json:"clicks"`
	Spend             string           `json:"spend"`
	Actions           []metaActionItem `json:"actions"`
	ActionValues      []metaActionItem `json:"action_values"`
	Age               string           `json:"age"`
	Gender            string           `json:"gender"`
	DevicePlatform    string           `json:"device_platform"`
	PublisherPlatform string           `json:"publisher_platform"`
}

type metaActionItem struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type metaInsightsResponse struct {
	Data   []metaInsightRow `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *metaAPIError `json:"error"`
}

type metaAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// RawAdInsight is one ad-level breakdown row from the Meta insights import
type RawAdInsight struct {
	AdID              string
	AdName            string
	CampaignName      string
	Date              time.Time
	AgeRange          string
	Gender            string
	DeviceType        string
	PublisherPlatform string
	Impressions       int64
	Clicks            int64
	Spend             float64
	Conversions       int64
}

// MetaClient fetches campaign metrics and ad insights from the Graph API
type MetaClient struct {
	cfg    config.PlatformAPIConfig
	client *http.Client
}

// NewMetaClient creates a Meta adapter
func NewMetaClient(cfg config.PlatformAPIConfig) *MetaClient {
	return &MetaClient{
		cfg:    cfg,
		client: newPlatformHTTPClient(cfg.Timeout),
	}
}

func (c *MetaClient) Platform() models.Platform { return models.PlatformMeta }

// NormalizeMetaAccountID prefixes the numeric account id with act_ the way
// the Graph API expects. Applying it to an already prefixed id is a no-op.
func NormalizeMetaAccountID(accountID string) string {
	trimmed := strings.TrimSpace(accountID)
	if strings.HasPrefix(trimmed, "act_") {
		return trimmed
	}
	return "act_" + trimmed
}

// FetchMetrics pulls campaign-level daily insights for the window
func (c *MetaClient) FetchMetrics(ctx context.Context, cred models.Credential, window DateRange) ([]RawMetric, error) {
	metaCred, ok := cred.(models.MetaCredential)
	if !ok {
		return nil, fmt.Errorf("%w: expected meta credential, got %s", models.ErrUnknownPlatform, cred.Platform())
	}

	endpoint := fmt.Sprintf("%s/%s/insights", c.cfg.BaseURL, NormalizeMetaAccountID(metaCred.AccountID))
	params := url.Values{}
	params.Set("access_token", metaCred.AccessToken)
	params.Set("level", "campaign")
	params.Set("fields", "campaign_id,campaign_name,impressions,clicks,spend,actions,action_values")
	params.Set("time_increment", "1")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		window.Since.Format(utils.MetricDateLayout), window.Until.Format(utils.MetricDateLayout)))
	params.Set("limit", "500")

	rows, err := c.fetchAllPages(ctx, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	metrics := make([]RawMetric, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse(utils.MetricDateLayout, row.DateStart)
		if err != nil {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("unparseable insight date %q", row.DateStart), err)
		}
		metrics = append(metrics, RawMetric{
			ExternalCampaignID: row.CampaignID,
			Date:               date,
			Impressions:        parseWireInt(row.Impressions),
			Clicks:             parseWireInt(row.Clicks),
			Investment:         parseWireFloat(row.Spend),
			Leads:              sumMetaActions(row.Actions, "lead", "leadgen_grouped"),
			Sales:              sumMetaActions(row.Actions, "purchase", "offsite_conversion.fb_pixel_purchase"),
			Revenue:            sumMetaActionValues(row.ActionValues, "purchase", "offsite_conversion.fb_pixel_purchase"),
		})
	}

	return metrics, nil
}

// FetchAdInsights pulls ad-level insights broken down by demographics and
// delivery placement for the window
func (c *MetaClient) FetchAdInsights(ctx context.Context, cred models.Credential, window DateRange) ([]RawAdInsight, error) {
	metaCred, ok := cred.(models.MetaCredential)
	if !ok {
		return nil, fmt.Errorf("%w: expected meta credential, got %s", models.ErrUnknownPlatform, cred.Platform())
	}

	endpoint := fmt.Sprintf("%s/%s/insights", c.cfg.BaseURL, NormalizeMetaAccountID(metaCred.AccountID))
	params := url.Values{}
	params.Set("access_token", metaCred.AccessToken)
	params.Set("level", "ad")
	params.Set("fields", "ad_id,ad_name,campaign_name,impressions,clicks,spend,actions")
	params.Set("breakdowns", "age,gender,device_platform,publisher_platform")
	params.Set("time_increment", "1")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		window.Since.Format(utils.MetricDateLayout), window.Until.Format(utils.MetricDateLayout)))
	params.Set("limit", "500")

	rows, err := c.fetchAllPages(ctx, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	insights := make([]RawAdInsight, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse(utils.MetricDateLayout, row.DateStart)
		if err != nil {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("unparseable insight date %q", row.DateStart), err)
		}
		insights = append(insights, RawAdInsight{
			AdID:              row.AdID,
			AdName:            row.AdName,
			CampaignName:      row.CampaignName,
			Date:              date,
			AgeRange:          row.Age,
			Gender:            row.Gender,
			DeviceType:        row.DevicePlatform,
			PublisherPlatform: row.PublisherPlatform,
			Impressions:       parseWireInt(row.Impressions),
			Clicks:            parseWireInt(row.Clicks),
			Spend:             parseWireFloat(row.Spend),
			Conversions:       sumMetaActions(row.Actions, "lead", "purchase"),
		})
	}

	return insights, nil
}

// fetchAllPages walks the paging.next chain until exhaustion
func (c *MetaClient) fetchAllPages(ctx context.Context, requestURL string) ([]metaInsightRow, error) {
	var rows []metaInsightRow

	for requestURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("request failed: %v", err), err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("failed to read response: %v", err), err)
		}

		var out metaInsightsResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("malformed response: %v", err), err)
		}

		if out.Error != nil {
			return nil, NewPlatformError(models.PlatformMeta,
				fmt.Sprintf("%s (type %s, code %d)", out.Error.Message, out.Error.Type, out.Error.Code), nil)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, NewPlatformError(models.PlatformMeta, fmt.Sprintf("http status %d", resp.StatusCode), nil)
		}

		rows = append(rows, out.Data...)
		requestURL = out.Paging.Next
	}

	return rows, nil
}

func sumMetaActions(actions []metaActionItem, types ...string) int64 {
	var total int64
	for _, action := range actions {
		for _, t := range types {
			if action.ActionType == t {
				total += parseWireInt(action.Value)
			}
		}
	}
	return total
}

func sumMetaActionValues(values []metaActionItem, types ...string) float64 {
	var total float64
	for _, value := range values {
		for _, t := range types {
			if value.ActionType == t {
				total += parseWireFloat(value.Value)
			}
		}
	}
	return total
}
