package models

import (
	"time"

	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// CampaignMetric is the canonical per-day performance record for one
// campaign. At most one row exists per (campaign_id, metric_date); the
// composite unique index is the conflict target that makes sync replays
// idempotent. Rows are written exclusively by the sync engine and are
// read-only to the dashboard.
type CampaignMetric struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"not null;uniqueIndex:uk_campaign_metrics_campaign_date,priority:1" json:"campaign_id"`
	MetricDate time.Time `gorm:"type:date;not null;uniqueIndex:uk_campaign_metrics_campaign_date,priority:2" json:"metric_date"`

	Impressions int64   `gorm:"not null;default:0" json:"impressions"`
	Clicks      int64   `gorm:"not null;default:0" json:"clicks"`
	Investment  float64 `gorm:"type:numeric(14,2);not null;default:0" json:"investment"`
	Leads       int64   `gorm:"not null;default:0" json:"leads"`
	Sales       int64   `gorm:"not null;default:0" json:"sales"`
	Revenue     float64 `gorm:"type:numeric(14,2);not null;default:0" json:"revenue"`

	// Derived ratios, always recomputed from the raw counters above at
	// write time, never copied from platform-reported ratio fields.
	CTR  float64 `gorm:"type:numeric(10,4);not null;default:0" json:"ctr"`
	CPL  float64 `gorm:"type:numeric(14,4);not null;default:0" json:"cpl"`
	ROAS float64 `gorm:"type:numeric(10,4);not null;default:0" json:"roas"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

// TableName returns the table name for the model
func (CampaignMetric) TableName() string {
	return "campaign_metrics"
}

// BeforeCreate is called before creating a new record
func (m *CampaignMetric) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CampaignMetricFilter represents filter criteria for campaign metrics
type CampaignMetricFilter struct {
	ID         *uint      `json:"id,omitempty"`
	CampaignID *uint      `json:"campaign_id,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
}
