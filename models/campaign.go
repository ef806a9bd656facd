package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// Campaign represents an advertising campaign belonging to a client.
// Campaigns are created by the dashboard CRUD flow, never by the sync
// engine; here they serve as the foreign-key target for metrics.
type Campaign struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UUID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	ClientID uint      `gorm:"not null;index:idx_campaigns_client_id" json:"client_id"`
	Platform Platform  `gorm:"type:ad_platform;not null;index:idx_campaigns_platform" json:"platform"`
	Name     string    `gorm:"type:varchar(255);not null" json:"name"`
	// ExternalID is the platform-side campaign identifier when known.
	ExternalID *string    `gorm:"type:varchar(128)" json:"external_id,omitempty"`
	IsActive   *bool      `gorm:"not null;default:true;index:idx_campaigns_is_active" json:"is_active"`
	CreatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`

	// Relations
	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.IsActive == nil {
		c.IsActive = utils.ToPtr(true)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	ClientID *uint      `json:"client_id,omitempty"`
	Platform *Platform  `json:"platform,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}
