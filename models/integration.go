package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// CredentialSourceKind tells how an integration's secret is stored
type CredentialSourceKind string

const (
	// CredentialSourceVault points at a named secret in the secret store.
	CredentialSourceVault CredentialSourceKind = "vault"
	// CredentialSourceInline keeps the sealed secret on the row itself.
	//
	// Deprecated: legacy path kept until all integrations migrate to the
	// vault reference. New integrations must use CredentialSourceVault.
	CredentialSourceInline CredentialSourceKind = "inline"
)

// Integration represents one client's connection to one ad platform
type Integration struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_integrations_uuid" json:"uuid"`
	ClientID   uint      `gorm:"not null;index:idx_integrations_client_id" json:"client_id"`
	CustomerID uint      `gorm:"not null;index:idx_integrations_customer_id" json:"customer_id"`
	Platform   Platform  `gorm:"type:ad_platform;not null;index:idx_integrations_platform" json:"platform"`

	// SecretName is the indirection into the secret store. When set it takes
	// precedence over the inline sealed credential.
	SecretName *string `gorm:"type:varchar(255)" json:"secret_name,omitempty"`
	// SealedCredential is the chacha20poly1305-sealed JSON credential bundle
	// for the deprecated inline source.
	SealedCredential []byte         `gorm:"type:bytea" json:"-"`
	VaultScopes      pq.StringArray `gorm:"type:text[]" json:"vault_scopes,omitempty"`

	IsActive     *bool      `gorm:"not null;default:true;index:idx_integrations_is_active" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	// Relations
	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

// TableName returns the table name for the model
func (Integration) TableName() string {
	return "integrations"
}

// BeforeCreate is called before creating a new record
func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == uuid.Nil {
		i.UUID = uuid.New()
	}
	if i.IsActive == nil {
		i.IsActive = utils.ToPtr(true)
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (i *Integration) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	i.UpdatedAt = &now
	return nil
}

// CredentialSource reports where this integration's secret lives
func (i *Integration) CredentialSource() CredentialSourceKind {
	if i.SecretName != nil && *i.SecretName != "" {
		return CredentialSourceVault
	}
	return CredentialSourceInline
}

// IntegrationFilter represents filter criteria for integrations
type IntegrationFilter struct {
	ID         *uint      `json:"id,omitempty"`
	UUID       *uuid.UUID `json:"uuid,omitempty"`
	ClientID   *uint      `json:"client_id,omitempty"`
	CustomerID *uint      `json:"customer_id,omitempty"`
	Platform   *Platform  `json:"platform,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
}
