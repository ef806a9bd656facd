package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/trafficlab/traffic-api/app/dto"
	"github.com/trafficlab/traffic-api/app/services"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/repository"
	"github.com/trafficlab/traffic-api/utils"
)

// InsightsImportFlow imports Meta ad-level breakdown insights. This is the
// extended-granularity sibling of the routine sync: a wider window, ad
// rather than campaign level, and demographic breakdowns.
type InsightsImportFlow interface {
	ImportMetaInsights(ctx context.Context, window *services.DateRange) (*dto.InsightsImportResponse, error)
}

// InsightsImportFlowImpl implements InsightsImportFlow
type InsightsImportFlowImpl struct {
	integrationRepo repository.IntegrationRepository
	insightRepo     repository.AdInsightRepository
	resolver        services.CredentialResolver
	metaClient      *services.MetaClient
	notifier        services.NotificationService
	syncCfg         config.SyncConfig
}

// NewInsightsImportFlow creates a new insights import flow
func NewInsightsImportFlow(
	integrationRepo repository.IntegrationRepository,
	insightRepo repository.AdInsightRepository,
	resolver services.CredentialResolver,
	metaClient *services.MetaClient,
	notifier services.NotificationService,
	syncCfg config.SyncConfig,
) InsightsImportFlow {
	return &InsightsImportFlowImpl{
		integrationRepo: integrationRepo,
		insightRepo:     insightRepo,
		resolver:        resolver,
		metaClient:      metaClient,
		notifier:        notifier,
		syncCfg:         syncCfg,
	}
}

func (f *InsightsImportFlowImpl) ImportMetaInsights(ctx context.Context, window *services.DateRange) (*dto.InsightsImportResponse, error) {
	importWindow := LookbackWindow(f.syncCfg.InsightsLookbackDays)
	if window != nil {
		importWindow = *window
	}

	integrations, err := f.integrationRepo.ListActive(ctx, models.PlatformMeta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrationListing, err)
	}

	imported := 0
	var errDetails []dto.SyncErrorDetail
	for _, integration := range integrations {
		count, err := f.importIntegration(ctx, integration, importWindow)
		if err != nil {
			log.Printf("insights import for integration %d failed: %v", integration.ID, err)
			errDetails = append(errDetails, toSyncErrorDetail(integration.ID, err))
			continue
		}
		imported++

		if count > 0 && f.notifier != nil {
			notification := services.ImportNotification{
				IntegrationID: integration.ID,
				Platform:      models.PlatformMeta,
				Imported:      count,
				WindowSince:   importWindow.Since.Format(utils.MetricDateLayout),
				WindowUntil:   importWindow.Until.Format(utils.MetricDateLayout),
			}
			if err := f.notifier.NotifyInsightsImported(ctx, notification); err != nil {
				log.Printf("insights import notification for integration %d failed: %v", integration.ID, err)
			}
		}
	}

	return &dto.InsightsImportResponse{
		Message:  "Meta insights import completed",
		Imported: imported,
		Total:    len(integrations),
		Errors:   errDetails,
	}, nil
}

// importIntegration fetches and upserts one integration's breakdown rows,
// returning how many rows were written
func (f *InsightsImportFlowImpl) importIntegration(ctx context.Context, integration *models.Integration, window services.DateRange) (int, error) {
	cred, resealed, err := f.resolver.Resolve(ctx, integration)
	if err != nil {
		return 0, err
	}
	if len(resealed) > 0 {
		if err := f.integrationRepo.UpdateCredentialToken(ctx, integration.ID, resealed); err != nil {
			log.Printf("failed to persist refreshed token for integration %d: %v", integration.ID, err)
		}
	}

	rawInsights, err := f.metaClient.FetchAdInsights(ctx, cred, window)
	if err != nil {
		return 0, err
	}
	if len(rawInsights) == 0 {
		return 0, nil
	}

	insights := make([]*models.AdInsight, 0, len(rawInsights))
	for _, raw := range rawInsights {
		insights = append(insights, services.NormalizeAdInsight(integration.ID, raw))
	}

	if err := f.insightRepo.UpsertBatch(ctx, insights); err != nil {
		return 0, fmt.Errorf("failed to upsert insight rows: %w", err)
	}

	return len(insights), nil
}
