package repository

import (
	"context"
	"time"

	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignMetricRepositoryImpl implements the CampaignMetricRepository interface
type CampaignMetricRepositoryImpl struct {
	*BaseRepository[models.CampaignMetric, models.CampaignMetricFilter]
}

// NewCampaignMetricRepository creates a new campaign metric repository
func NewCampaignMetricRepository(db *gorm.DB) CampaignMetricRepository {
	return &CampaignMetricRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignMetric, models.CampaignMetricFilter](db),
	}
}

// Upsert inserts the metric row or, when one already exists for the same
// (campaign_id, metric_date), replaces its counters and derived ratios.
// Replaying a window therefore converges instead of duplicating rows.
func (r *CampaignMetricRepositoryImpl) Upsert(ctx context.Context, metric *models.CampaignMetric) error {
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

	now := utils.UTCNow()
	metric.UpdatedAt = &now

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "metric_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"impressions", "clicks", "investment", "leads", "sales", "revenue",
			"ctr", "cpl", "roas", "updated_at",
		}),
	}).Create(metric).Error
	if err != nil {
		return err
	}

	return nil
}

// ByCampaignAndRange retrieves metric rows for a campaign inside [from, to]
func (r *CampaignMetricRepositoryImpl) ByCampaignAndRange(ctx context.Context, campaignID uint, from, to time.Time) ([]*models.CampaignMetric, error) {
	filter := models.CampaignMetricFilter{
		CampaignID: &campaignID,
		DateFrom:   &from,
		DateTo:     &to,
	}
	return r.ByFilter(ctx, filter, "metric_date ASC", 0, 0)
}

// ByFilter retrieves campaign metrics based on filter criteria
func (r *CampaignMetricRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignMetricFilter, orderBy string, limit, offset int) ([]*models.CampaignMetric, error) {
	db := r.getDB(ctx)

	var metrics []*models.CampaignMetric
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

	err := query.Find(&metrics).Error
	if err != nil {
		return nil, err
	}

	return metrics, nil
}

// Count returns the number of campaign metrics matching the filter
func (r *CampaignMetricRepositoryImpl) Count(ctx context.Context, filter models.CampaignMetricFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var metric models.CampaignMetric
	query := r.applyFilter(db.Model(&metric), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignMetricRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignMetricFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.DateFrom != nil {
		db = db.Where("metric_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		db = db.Where("metric_date <= ?", *filter.DateTo)
	}

	return db
}
