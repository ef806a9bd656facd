// Package businessflow contains the business logic for the application.
package businessflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/trafficlab/traffic-api/app/dto"
	"github.com/trafficlab/traffic-api/app/services"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

// LookbackWindow builds the inclusive day window ending yesterday, in UTC.
// Metrics for the current, still-running day are skipped so every synced
// day is final.
func LookbackWindow(days int) services.DateRange {
	today := utils.UTCNow().Truncate(24 * time.Hour)
	until := today.AddDate(0, 0, -1)
	return services.DateRange{
		Since: until.AddDate(0, 0, -(days - 1)),
		Until: until,
	}
}

// ParseWindow builds a window from explicit YYYY-MM-DD bounds
func ParseWindow(since, until string) (services.DateRange, error) {
	start, err := time.Parse(utils.MetricDateLayout, since)
	if err != nil {
		return services.DateRange{}, fmt.Errorf("invalid since date %q: %w", since, err)
	}
	end, err := time.Parse(utils.MetricDateLayout, until)
	if err != nil {
		return services.DateRange{}, fmt.Errorf("invalid until date %q: %w", until, err)
	}
	if start.After(end) {
		return services.DateRange{}, ErrWindowInverted
	}
	return services.DateRange{Since: start, Until: end}, nil
}

// runAccumulator collects per-integration outcomes across the worker pool
type runAccumulator struct {
	mu     sync.Mutex
	synced int
	errors []dto.SyncErrorDetail
}

func (a *runAccumulator) addSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.synced++
}

func (a *runAccumulator) addFailure(integrationID uint, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, toSyncErrorDetail(integrationID, err))
}

func (a *runAccumulator) summary(total int, platform models.Platform) *dto.SyncSummaryResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &dto.SyncSummaryResponse{
		Message: fmt.Sprintf("%s synchronization completed", platform.DisplayName()),
		Synced:  a.synced,
		Total:   total,
		Errors:  a.errors,
	}
}

// toSyncErrorDetail maps an integration failure onto the caller-facing
// wording. Categorized platform errors keep their raw detail for
// diagnostics; anything else is reported as-is.
func toSyncErrorDetail(integrationID uint, err error) dto.SyncErrorDetail {
	if platformErr, ok := services.AsPlatformError(err); ok {
		return dto.SyncErrorDetail{
			IntegrationID: integrationID,
			Error:         platformErr.Category.Message(),
			Details:       platformErr.Detail,
		}
	}
	return dto.SyncErrorDetail{
		IntegrationID: integrationID,
		Error:         err.Error(),
	}
}

// SummaryCacheKey is the redis key holding the last run summary per platform
func SummaryCacheKey(prefix string, platform models.Platform) string {
	return fmt.Sprintf("%ssync:summary:%s", prefix, platform)
}

// RunLockKey is the redis key guarding against overlapping runs per platform
func RunLockKey(prefix string, platform models.Platform) string {
	return fmt.Sprintf("%ssync:run:%s", prefix, platform)
}
