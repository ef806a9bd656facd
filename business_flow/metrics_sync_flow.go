package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/trafficlab/traffic-api/app/dto"
	"github.com/trafficlab/traffic-api/app/middleware"
	"github.com/trafficlab/traffic-api/app/services"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/repository"
	"github.com/trafficlab/traffic-api/utils"
)

// MetricsSyncFlow defines the metric synchronization use cases
type MetricsSyncFlow interface {
	// SyncPlatform runs one synchronization pass over every active
	// integration of the platform. A nil window means the default
	// lookback. Integration failures are isolated into the summary; the
	// returned error is reserved for run-level failures such as the
	// integration listing itself.
	SyncPlatform(ctx context.Context, platform models.Platform, window *services.DateRange) (*dto.SyncSummaryResponse, error)
	// LastSummary returns the cached summary of the most recent run for
	// the platform, or nil when none is cached.
	LastSummary(ctx context.Context, platform models.Platform) (*dto.SyncSummaryResponse, error)
}

// MetricsSyncFlowImpl implements MetricsSyncFlow
type MetricsSyncFlowImpl struct {
	integrationRepo repository.IntegrationRepository
	campaignRepo    repository.CampaignRepository
	metricRepo      repository.CampaignMetricRepository
	resolver        services.CredentialResolver
	adapters        map[models.Platform]services.PlatformAdapter
	redisClient     *redis.Client
	syncCfg         config.SyncConfig
	cachePrefix     string
}

// NewMetricsSyncFlow creates a new metrics sync flow
func NewMetricsSyncFlow(
	integrationRepo repository.IntegrationRepository,
	campaignRepo repository.CampaignRepository,
	metricRepo repository.CampaignMetricRepository,
	resolver services.CredentialResolver,
	adapters []services.PlatformAdapter,
	redisClient *redis.Client,
	syncCfg config.SyncConfig,
	cachePrefix string,
) MetricsSyncFlow {
	byPlatform := make(map[models.Platform]services.PlatformAdapter, len(adapters))
	for _, adapter := range adapters {
		byPlatform[adapter.Platform()] = adapter
	}

	return &MetricsSyncFlowImpl{
		integrationRepo: integrationRepo,
		campaignRepo:    campaignRepo,
		metricRepo:      metricRepo,
		resolver:        resolver,
		adapters:        byPlatform,
		redisClient:     redisClient,
		syncCfg:         syncCfg,
		cachePrefix:     cachePrefix,
	}
}

func (f *MetricsSyncFlowImpl) SyncPlatform(ctx context.Context, platform models.Platform, window *services.DateRange) (*dto.SyncSummaryResponse, error) {
	adapter, ok := f.adapters[platform]
	if !ok || !platform.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrPlatformNotSupported, platform)
	}

	release, err := f.acquireRunLock(ctx, platform)
	if err != nil {
		return nil, err
	}
	defer release()

	syncWindow := LookbackWindow(f.syncCfg.RoutineLookbackDays)
	if window != nil {
		syncWindow = *window
	}

	integrations, err := f.integrationRepo.ListActive(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrationListing, err)
	}

	acc := &runAccumulator{}

	// Bounded worker pool; integrations never observe each other's
	// failures, only the accumulator does.
	maxConcurrent := f.syncCfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, integration := range integrations {
		wg.Add(1)
		sem <- struct{}{}
		go func(integration *models.Integration) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := f.syncIntegration(ctx, integration, adapter, syncWindow); err != nil {
				log.Printf("sync %s integration %d failed: %v", platform, integration.ID, err)
				acc.addFailure(integration.ID, err)
				if platformErr, ok := services.AsPlatformError(err); ok {
					middleware.RecordIntegrationFailure(platform.String(), string(platformErr.Category))
				} else {
					middleware.RecordIntegrationFailure(platform.String(), "internal")
				}
				return
			}
			acc.addSuccess()
			middleware.RecordIntegrationSynced(platform.String())
		}(integration)
	}
	wg.Wait()

	middleware.RecordSyncRun(platform.String())

	summary := acc.summary(len(integrations), platform)
	f.cacheSummary(ctx, platform, summary)
	return summary, nil
}

// acquireRunLock takes the per-platform run lock so a scheduled run and a
// manual trigger never overlap. Without redis a single instance is assumed
// and the lock is a no-op.
func (f *MetricsSyncFlowImpl) acquireRunLock(ctx context.Context, platform models.Platform) (func(), error) {
	if f.redisClient == nil {
		return func() {}, nil
	}

	key := RunLockKey(f.cachePrefix, platform)
	set, err := f.redisClient.SetNX(ctx, key, utils.UTCNowRFC3339(), f.syncCfg.LockTTL).Result()
	if err != nil {
		// A broken lock backend must not stall syncing altogether.
		log.Printf("failed to acquire %s run lock: %v", platform, err)
		return func() {}, nil
	}
	if !set {
		return nil, fmt.Errorf("%w: %s", ErrSyncAlreadyRunning, platform)
	}

	return func() {
		if err := f.redisClient.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			log.Printf("failed to release %s run lock: %v", platform, err)
		}
	}, nil
}

// syncIntegration fetches, normalizes and upserts one integration's window
func (f *MetricsSyncFlowImpl) syncIntegration(ctx context.Context, integration *models.Integration, adapter services.PlatformAdapter, window services.DateRange) error {
	cred, resealed, err := f.resolver.Resolve(ctx, integration)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialResolution, err)
	}

	// Persisting the refreshed token is an optimization; a failure here
	// must not fail the integration.
	if len(resealed) > 0 {
		if err := f.integrationRepo.UpdateCredentialToken(ctx, integration.ID, resealed); err != nil {
			log.Printf("failed to persist refreshed token for integration %d: %v", integration.ID, err)
		}
	}

	rawMetrics, err := adapter.FetchMetrics(ctx, cred, window)
	if err != nil {
		return err
	}

	campaigns, err := f.campaignRepo.ListByClientAndPlatform(ctx, integration.ClientID, integration.Platform)
	if err != nil {
		return err
	}

	// Integrations are account-level while metric rows are per campaign.
	// Rows carrying an external campaign id land on the matching campaign;
	// campaigns without an external id absorb every account-level row.
	// The dashboard has relied on that fan-out since the first release, so
	// it is kept as is.
	upserted := 0
	for _, raw := range rawMetrics {
		for _, campaign := range campaigns {
			if campaign.ExternalID != nil && *campaign.ExternalID != "" && *campaign.ExternalID != raw.ExternalCampaignID {
				continue
			}
			metric := services.NormalizeMetric(campaign.ID, raw)
			if err := f.metricRepo.Upsert(ctx, metric); err != nil {
				// One bad row must not cost the rest of the window; the
				// next run re-upserts the same (campaign, date) anyway.
				log.Printf("failed to upsert metric for campaign %d on %s: %v",
					campaign.ID, raw.Date.Format(utils.MetricDateLayout), err)
				continue
			}
			upserted++
		}
	}
	middleware.AddMetricRowsUpserted(integration.Platform.String(), upserted)

	// A client with no campaigns yet synced nothing; leave the marker
	// untouched so the first real sync is a full one.
	if len(campaigns) == 0 {
		return nil
	}

	return f.integrationRepo.UpdateLastSynced(ctx, integration.ID, utils.UTCNow())
}

func (f *MetricsSyncFlowImpl) LastSummary(ctx context.Context, platform models.Platform) (*dto.SyncSummaryResponse, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrPlatformNotSupported, platform)
	}
	if f.redisClient == nil {
		return nil, nil
	}

	payload, err := f.redisClient.Get(ctx, SummaryCacheKey(f.cachePrefix, platform)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary dto.SyncSummaryResponse
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// cacheSummary stores the run summary for the status endpoint, best effort
func (f *MetricsSyncFlowImpl) cacheSummary(ctx context.Context, platform models.Platform, summary *dto.SyncSummaryResponse) {
	if f.redisClient == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := f.redisClient.Set(ctx, SummaryCacheKey(f.cachePrefix, platform), payload, f.syncCfg.SummaryCacheTTL).Err(); err != nil {
		log.Printf("failed to cache %s sync summary: %v", platform, err)
	}
}
