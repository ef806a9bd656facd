package repository

import (
	"context"

	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdInsightRepositoryImpl implements the AdInsightRepository interface
type AdInsightRepositoryImpl struct {
	*BaseRepository[models.AdInsight, models.AdInsightFilter]
}

// NewAdInsightRepository creates a new ad insight repository
func NewAdInsightRepository(db *gorm.DB) AdInsightRepository {
	return &AdInsightRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AdInsight, models.AdInsightFilter](db),
	}
}

// UpsertBatch inserts insight rows, replacing existing ones that share the
// (ad_id, insight_date, age_range, gender, device_type, publisher_platform)
// breakdown key. Overlapping import windows converge to the latest values.
func (r *AdInsightRepositoryImpl) UpsertBatch(ctx context.Context, insights []*models.AdInsight) error {
	if len(insights) == 0 {
		return nil
	}

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
	for _, insight := range insights {
		insight.UpdatedAt = &now
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ad_id"}, {Name: "insight_date"}, {Name: "age_range"},
			{Name: "gender"}, {Name: "device_type"}, {Name: "publisher_platform"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"ad_name", "campaign_name", "impressions", "clicks", "spend",
			"conversions", "ctr", "cpc", "cpm", "day_of_week",
			"updated_at",
		}),
	}).CreateInBatches(insights, 100).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves ad insights based on filter criteria
func (r *AdInsightRepositoryImpl) ByFilter(ctx context.Context, filter models.AdInsightFilter, orderBy string, limit, offset int) ([]*models.AdInsight, error) {
	db := r.getDB(ctx)

	var insights []*models.AdInsight
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

	err := query.Find(&insights).Error
	if err != nil {
		return nil, err
	}

	return insights, nil
}

// Count returns the number of ad insights matching the filter
func (r *AdInsightRepositoryImpl) Count(ctx context.Context, filter models.AdInsightFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var insight models.AdInsight
	query := r.applyFilter(db.Model(&insight), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *AdInsightRepositoryImpl) applyFilter(db *gorm.DB, filter models.AdInsightFilter) *gorm.DB {
	if filter.IntegrationID != nil {
		db = db.Where("integration_id = ?", *filter.IntegrationID)
	}
	if filter.AdID != nil {
		db = db.Where("ad_id = ?", *filter.AdID)
	}
	if filter.DateFrom != nil {
		db = db.Where("insight_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		db = db.Where("insight_date <= ?", *filter.DateTo)
	}

	return db
}
