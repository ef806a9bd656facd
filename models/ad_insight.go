package models

import (
	"time"

	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// AdInsight is the Meta-only extended-granularity record: one row per ad,
// date and demographic breakdown tuple. The composite unique index makes
// re-imports of overlapping windows idempotent, same as campaign_metrics.
type AdInsight struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	IntegrationID uint `gorm:"not null;index:idx_ad_insights_integration_id" json:"integration_id"`

	AdID              string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_ad_insights_breakdown,priority:1" json:"ad_id"`
	InsightDate       time.Time `gorm:"type:date;not null;uniqueIndex:uk_ad_insights_breakdown,priority:2" json:"insight_date"`
	AgeRange          string    `gorm:"type:varchar(16);not null;default:'';uniqueIndex:uk_ad_insights_breakdown,priority:3" json:"age_range"`
	Gender            string    `gorm:"type:varchar(16);not null;default:'';uniqueIndex:uk_ad_insights_breakdown,priority:4" json:"gender"`
	DeviceType        string    `gorm:"type:varchar(32);not null;default:'';uniqueIndex:uk_ad_insights_breakdown,priority:5" json:"device_type"`
	PublisherPlatform string    `gorm:"type:varchar(32);not null;default:'';uniqueIndex:uk_ad_insights_breakdown,priority:6" json:"publisher_platform"`

	AdName       string `gorm:"type:varchar(255)" json:"ad_name"`
	CampaignName string `gorm:"type:varchar(255)" json:"campaign_name"`

	Impressions int64   `gorm:"not null;default:0" json:"impressions"`
	Clicks      int64   `gorm:"not null;default:0" json:"clicks"`
	Spend       float64 `gorm:"type:numeric(14,2);not null;default:0" json:"spend"`
	Conversions int64   `gorm:"not null;default:0" json:"conversions"`

	CTR float64 `gorm:"type:numeric(10,4);not null;default:0" json:"ctr"`
	CPC float64 `gorm:"type:numeric(14,4);not null;default:0" json:"cpc"`
	CPM float64 `gorm:"type:numeric(14,4);not null;default:0" json:"cpm"`

	// Imports run at day granularity, so only the weekday is derivable
	// from the insight date.
	DayOfWeek int `gorm:"not null;default:0" json:"day_of_week"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (AdInsight) TableName() string {
	return "ad_insights"
}

// BeforeCreate is called before creating a new record
func (a *AdInsight) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// AdInsightFilter represents filter criteria for ad insights
type AdInsightFilter struct {
	IntegrationID *uint      `json:"integration_id,omitempty"`
	AdID          *string    `json:"ad_id,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
}
