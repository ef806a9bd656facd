package services

import (
	"math"

	"github.com/trafficlab/traffic-api/models"
)

// Ratios are recomputed here from raw counters for every platform.
// Platform-reported ratio fields never cross the adapter boundary, so the
// same formulas hold across Meta, Google Ads and TikTok regardless of how
// each platform rounds or defines its own.

// NormalizeMetric builds the canonical daily metric row for one campaign
// from the raw counters a platform reported. Every division is guarded:
// a zero denominator yields a zero ratio, never NaN or Inf.
func NormalizeMetric(campaignID uint, raw RawMetric) *models.CampaignMetric {
	return &models.CampaignMetric{
		CampaignID:  campaignID,
		MetricDate:  raw.Date,
		Impressions: raw.Impressions,
		Clicks:      raw.Clicks,
		Investment:  raw.Investment,
		Leads:       raw.Leads,
		Sales:       raw.Sales,
		Revenue:     raw.Revenue,
		CTR:         ratio(float64(raw.Clicks)*100, float64(raw.Impressions)),
		CPL:         ratio(raw.Investment, float64(raw.Leads)),
		ROAS:        ratio(raw.Revenue, raw.Investment),
	}
}

// NormalizeAdInsight builds an ad-level insight row from a raw Meta
// breakdown entry, recomputing CTR, CPC and CPM from the counters.
func NormalizeAdInsight(integrationID uint, raw RawAdInsight) *models.AdInsight {
	return &models.AdInsight{
		IntegrationID:     integrationID,
		AdID:              raw.AdID,
		InsightDate:       raw.Date,
		AgeRange:          raw.AgeRange,
		Gender:            raw.Gender,
		DeviceType:        raw.DeviceType,
		PublisherPlatform: raw.PublisherPlatform,
		AdName:            raw.AdName,
		CampaignName:      raw.CampaignName,
		Impressions:       raw.Impressions,
		Clicks:            raw.Clicks,
		Spend:             raw.Spend,
		Conversions:       raw.Conversions,
		CTR:               ratio(float64(raw.Clicks)*100, float64(raw.Impressions)),
		CPC:               ratio(raw.Spend, float64(raw.Clicks)),
		CPM:               ratio(raw.Spend*1000, float64(raw.Impressions)),
		DayOfWeek:         int(raw.Date.Weekday()),
	}
}

// ratio divides with a zero-denominator guard and rounds to 4 decimals so
// replays of identical inputs write identical rows.
func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return math.Round(numerator/denominator*10000) / 10000
}
