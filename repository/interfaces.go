// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/trafficlab/traffic-api/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// IntegrationRepository defines operations for ad platform integrations
type IntegrationRepository interface {
	Repository[models.Integration, models.IntegrationFilter]
	// ListActive returns every active integration for the platform.
	ListActive(ctx context.Context, platform models.Platform) ([]*models.Integration, error)
	// UpdateLastSynced advances the integration's last-synced marker.
	UpdateLastSynced(ctx context.Context, id uint, syncedAt time.Time) error
	// UpdateCredentialToken writes a refreshed OAuth access token back onto
	// the integration's sealed inline credential for reuse in later runs.
	UpdateCredentialToken(ctx context.Context, id uint, sealedCredential []byte) error
	Deactivate(ctx context.Context, id uint) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	// ListByClientAndPlatform returns the client's active campaigns on one platform.
	ListByClientAndPlatform(ctx context.Context, clientID uint, platform models.Platform) ([]*models.Campaign, error)
}

// CampaignMetricRepository defines operations for canonical campaign metrics
type CampaignMetricRepository interface {
	Repository[models.CampaignMetric, models.CampaignMetricFilter]
	// Upsert inserts or replaces the row for (campaign_id, metric_date).
	Upsert(ctx context.Context, metric *models.CampaignMetric) error
	ByCampaignAndRange(ctx context.Context, campaignID uint, from, to time.Time) ([]*models.CampaignMetric, error)
}

// AdInsightRepository defines operations for Meta ad-level insight rows
type AdInsightRepository interface {
	Repository[models.AdInsight, models.AdInsightFilter]
	// UpsertBatch inserts or replaces rows on the breakdown conflict key.
	UpsertBatch(ctx context.Context, insights []*models.AdInsight) error
}
