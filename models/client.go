package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// Client represents an agency client (advertiser). Rows are created and
// managed by the dashboard CRUD flow; the sync engine only reads them
// through campaign ownership.
type Client struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_clients_uuid" json:"uuid"`
	CustomerID uint       `gorm:"not null;index:idx_clients_customer_id" json:"customer_id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	IsActive   *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Client) TableName() string {
	return "clients"
}

// BeforeCreate is called before creating a new record
func (c *Client) BeforeCreate(tx *gorm.DB) error {
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
