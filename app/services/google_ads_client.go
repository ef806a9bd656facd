package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

type googleAdsSearchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type googleAdsSearchResponse struct {
	Results []struct {
		Campaign struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"campaign"`
		Metrics struct {
			Impressions      string  `json:"impressions"`
			Clicks           string  `json:"clicks"`
			CostMicros       string  `json:"costMicros"`
			Conversions      float64 `json:"conversions"`
			ConversionsValue float64 `json:"conversionsValue"`
		} `json:"metrics"`
		Segments struct {
			Date string `json:"date"`
		} `json:"segments"`
	} `json:"results"`
	NextPageToken string `json:"nextPageToken"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GoogleAdsClient fetches campaign metrics via the Google Ads API GAQL search
type GoogleAdsClient struct {
	cfg    config.PlatformAPIConfig
	client *http.Client
}

// NewGoogleAdsClient creates a Google Ads adapter
func NewGoogleAdsClient(cfg config.PlatformAPIConfig) *GoogleAdsClient {
	return &GoogleAdsClient{
		cfg:    cfg,
		client: newPlatformHTTPClient(cfg.Timeout),
	}
}

func (c *GoogleAdsClient) Platform() models.Platform { return models.PlatformGoogleAds }

// NormalizeGoogleCustomerID strips the dashes of a display-formatted
// customer id (123-456-7890). Applying it to a bare id is a no-op.
func NormalizeGoogleCustomerID(customerID string) string {
	var b strings.Builder
	for _, r := range customerID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FetchMetrics pulls campaign-level daily metrics for the window.
// Conversions map to leads and conversion value to revenue; the API has no
// separate sale counter, so sales stay zero for this platform.
func (c *GoogleAdsClient) FetchMetrics(ctx context.Context, cred models.Credential, window DateRange) ([]RawMetric, error) {
	googleCred, ok := cred.(models.GoogleAdsCredential)
	if !ok {
		return nil, fmt.Errorf("%w: expected google_ads credential, got %s", models.ErrUnknownPlatform, cred.Platform())
	}

	query := fmt.Sprintf(
		"SELECT campaign.id, campaign.name, metrics.impressions, metrics.clicks, "+
			"metrics.cost_micros, metrics.conversions, metrics.conversions_value, segments.date "+
			"FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'",
		window.Since.Format(utils.MetricDateLayout), window.Until.Format(utils.MetricDateLayout))

	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:search",
		c.cfg.BaseURL, NormalizeGoogleCustomerID(googleCred.CustomerID))

	var metrics []RawMetric
	pageToken := ""
	for {
		out, err := c.search(ctx, googleCred, endpoint, query, pageToken)
		if err != nil {
			return nil, err
		}

		for _, result := range out.Results {
			date, err := time.Parse(utils.MetricDateLayout, result.Segments.Date)
			if err != nil {
				return nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("unparseable segment date %q", result.Segments.Date), err)
			}
			metrics = append(metrics, RawMetric{
				ExternalCampaignID: result.Campaign.ID,
				Date:               date,
				Impressions:        parseWireInt(result.Metrics.Impressions),
				Clicks:             parseWireInt(result.Metrics.Clicks),
				Investment:         float64(parseWireInt(result.Metrics.CostMicros)) / 1e6,
				Leads:              int64(result.Metrics.Conversions),
				Revenue:            result.Metrics.ConversionsValue,
			})
		}

		if out.NextPageToken == "" {
			break
		}
		pageToken = out.NextPageToken
	}

	return metrics, nil
}

// search executes one page of a GAQL search
func (c *GoogleAdsClient) search(ctx context.Context, cred models.GoogleAdsCredential, endpoint, query, pageToken string) (*googleAdsSearchResponse, error) {
	payload, err := json.Marshal(googleAdsSearchRequest{Query: query, PageToken: pageToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("developer-token", cred.DeveloperToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("failed to read response: %v", err), err)
	}

	var out googleAdsSearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("malformed response: %v", err), err)
	}

	if out.Error != nil {
		return nil, NewPlatformError(models.PlatformGoogleAds,
			fmt.Sprintf("%s (status %s)", out.Error.Message, out.Error.Status), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("http status %d", resp.StatusCode), nil)
	}

	return &out, nil
}
