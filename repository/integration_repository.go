package repository

import (
	"context"
	"errors"
	"time"

	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
)

// IntegrationRepositoryImpl implements the IntegrationRepository interface
type IntegrationRepositoryImpl struct {
	*BaseRepository[models.Integration, models.IntegrationFilter]
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &IntegrationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Integration, models.IntegrationFilter](db),
	}
}

// ByID retrieves an integration by ID
func (r *IntegrationRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Integration, error) {
	db := r.getDB(ctx)

	var integration models.Integration
	err := db.Preload("Client").Last(&integration, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &integration, nil
}

// ListActive retrieves every active integration for the given platform
func (r *IntegrationRepositoryImpl) ListActive(ctx context.Context, platform models.Platform) ([]*models.Integration, error) {
	filter := models.IntegrationFilter{
		Platform: &platform,
		IsActive: utils.ToPtr(true),
	}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// UpdateLastSynced advances the last-synced marker after a successful run
func (r *IntegrationRepositoryImpl) UpdateLastSynced(ctx context.Context, id uint, syncedAt time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Integration{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_synced_at": syncedAt,
			"updated_at":     utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateCredentialToken stores a refreshed sealed credential bundle so later
// runs reuse the new access token instead of refreshing again
func (r *IntegrationRepositoryImpl) UpdateCredentialToken(ctx context.Context, id uint, sealedCredential []byte) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Integration{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sealed_credential": sealedCredential,
			"updated_at":        utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// Deactivate marks an integration inactive so future runs skip it
func (r *IntegrationRepositoryImpl) Deactivate(ctx context.Context, id uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Integration{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves integrations based on filter criteria
func (r *IntegrationRepositoryImpl) ByFilter(ctx context.Context, filter models.IntegrationFilter, orderBy string, limit, offset int) ([]*models.Integration, error) {
	db := r.getDB(ctx)

	var integrations []*models.Integration
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	query = query.Preload("Client")

	err := query.Find(&integrations).Error
	if err != nil {
		return nil, err
	}

	return integrations, nil
}

// Count returns the number of integrations matching the filter
func (r *IntegrationRepositoryImpl) Count(ctx context.Context, filter models.IntegrationFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var integration models.Integration
	query := r.applyFilter(db.Model(&integration), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *IntegrationRepositoryImpl) applyFilter(db *gorm.DB, filter models.IntegrationFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.ClientID != nil {
		db = db.Where("client_id = ?", *filter.ClientID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Platform != nil {
		db = db.Where("platform = ?", *filter.Platform)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}

	return db
}
