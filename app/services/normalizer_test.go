package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMetric(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	metric := NormalizeMetric(42, RawMetric{
		ExternalCampaignID: "123",
		Date:               day,
		Impressions:        10000,
		Clicks:             250,
		Investment:         500,
		Leads:              25,
		Sales:              5,
		Revenue:            1500,
	})

	assert.Equal(t, uint(42), metric.CampaignID)
	assert.Equal(t, day, metric.MetricDate)
	assert.Equal(t, int64(10000), metric.Impressions)
	assert.InDelta(t, 2.5, metric.CTR, 0.0001) // 250/10000*100
	assert.InDelta(t, 20.0, metric.CPL, 0.0001) // 500/25
	assert.InDelta(t, 3.0, metric.ROAS, 0.0001) // 1500/500
}

func TestNormalizeMetricZeroDenominators(t *testing.T) {
	metric := NormalizeMetric(1, RawMetric{
		Date:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Clicks:     10,
		Investment: 0,
		Leads:      0,
		Revenue:    100,
	})

	// No impressions, leads, or spend: every ratio collapses to zero
	assert.Zero(t, metric.CTR)
	assert.Zero(t, metric.CPL)
	assert.Zero(t, metric.ROAS)
}

func TestNormalizeMetricRounding(t *testing.T) {
	metric := NormalizeMetric(1, RawMetric{
		Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Impressions: 3,
		Clicks:      1,
	})

	// 1/3*100 rounded to 4 decimals
	assert.Equal(t, 33.3333, metric.CTR)
}

func TestNormalizeAdInsight(t *testing.T) {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday

	insight := NormalizeAdInsight(7, RawAdInsight{
		AdID:              "ad-1",
		AdName:            "Spring promo",
		CampaignName:      "Spring",
		Date:              day,
		AgeRange:          "25-34",
		Gender:            "female",
		DeviceType:        "mobile_app",
		PublisherPlatform: "instagram",
		Impressions:       2000,
		Clicks:            40,
		Spend:             80,
		Conversions:       8,
	})

	assert.Equal(t, uint(7), insight.IntegrationID)
	assert.InDelta(t, 2.0, insight.CTR, 0.0001) // 40/2000*100
	assert.InDelta(t, 2.0, insight.CPC, 0.0001) // 80/40
	assert.InDelta(t, 40.0, insight.CPM, 0.0001) // 80*1000/2000
	assert.Equal(t, 1, insight.DayOfWeek)
}

func TestNormalizeAdInsightZeroActivity(t *testing.T) {
	insight := NormalizeAdInsight(7, RawAdInsight{
		AdID: "ad-1",
		Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	})

	assert.Zero(t, insight.CTR)
	assert.Zero(t, insight.CPC)
	assert.Zero(t, insight.CPM)
}
