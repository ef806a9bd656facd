package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficlab/traffic-api/app/services"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

// fakeIntegrationRepo serves integrations from memory and records marker
// and token writes.
type fakeIntegrationRepo struct {
	mu           sync.Mutex
	integrations []*models.Integration
	listErr      error
	lastSynced   map[uint]time.Time
	tokens       map[uint][]byte
}

func newFakeIntegrationRepo(integrations ...*models.Integration) *fakeIntegrationRepo {
	return &fakeIntegrationRepo{
		integrations: integrations,
		lastSynced:   make(map[uint]time.Time),
		tokens:       make(map[uint][]byte),
	}
}

func (r *fakeIntegrationRepo) ByID(ctx context.Context, id uint) (*models.Integration, error) {
	for _, integration := range r.integrations {
		if integration.ID == id {
			return integration, nil
		}
	}
	return nil, nil
}

func (r *fakeIntegrationRepo) ByFilter(ctx context.Context, filter models.IntegrationFilter, orderBy string, limit, offset int) ([]*models.Integration, error) {
	return r.integrations, nil
}

func (r *fakeIntegrationRepo) Save(ctx context.Context, entity *models.Integration) error {
	return nil
}

func (r *fakeIntegrationRepo) SaveBatch(ctx context.Context, entities []*models.Integration) error {
	return nil
}

func (r *fakeIntegrationRepo) Count(ctx context.Context, filter models.IntegrationFilter) (int64, error) {
	return int64(len(r.integrations)), nil
}

func (r *fakeIntegrationRepo) ListActive(ctx context.Context, platform models.Platform) ([]*models.Integration, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var active []*models.Integration
	for _, integration := range r.integrations {
		if integration.Platform == platform {
			active = append(active, integration)
		}
	}
	return active, nil
}

func (r *fakeIntegrationRepo) UpdateLastSynced(ctx context.Context, id uint, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSynced[id] = syncedAt
	return nil
}

func (r *fakeIntegrationRepo) UpdateCredentialToken(ctx context.Context, id uint, sealedCredential []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[id] = sealedCredential
	return nil
}

func (r *fakeIntegrationRepo) Deactivate(ctx context.Context, id uint) error {
	return nil
}

func (r *fakeIntegrationRepo) lastSyncedFor(id uint) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.lastSynced[id]
	return at, ok
}

// fakeCampaignRepo maps client ids onto fixed campaign sets
type fakeCampaignRepo struct {
	byClient map[uint][]*models.Campaign
	listErr  error
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error { return nil }

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return 0, nil
}

func (r *fakeCampaignRepo) ListByClientAndPlatform(ctx context.Context, clientID uint, platform models.Platform) ([]*models.Campaign, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.byClient[clientID], nil
}

// fakeMetricRepo records upserted rows keyed by campaign and date
type fakeMetricRepo struct {
	mu        sync.Mutex
	upserted  []*models.CampaignMetric
	failFirst error
}

func (r *fakeMetricRepo) ByID(ctx context.Context, id uint) (*models.CampaignMetric, error) {
	return nil, nil
}

func (r *fakeMetricRepo) ByFilter(ctx context.Context, filter models.CampaignMetricFilter, orderBy string, limit, offset int) ([]*models.CampaignMetric, error) {
	return nil, nil
}

func (r *fakeMetricRepo) Save(ctx context.Context, entity *models.CampaignMetric) error { return nil }

func (r *fakeMetricRepo) SaveBatch(ctx context.Context, entities []*models.CampaignMetric) error {
	return nil
}

func (r *fakeMetricRepo) Count(ctx context.Context, filter models.CampaignMetricFilter) (int64, error) {
	return 0, nil
}

func (r *fakeMetricRepo) Upsert(ctx context.Context, metric *models.CampaignMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFirst != nil {
		err := r.failFirst
		r.failFirst = nil
		return err
	}
	r.upserted = append(r.upserted, metric)
	return nil
}

func (r *fakeMetricRepo) ByCampaignAndRange(ctx context.Context, campaignID uint, from, to time.Time) ([]*models.CampaignMetric, error) {
	return nil, nil
}

func (r *fakeMetricRepo) rows() []*models.CampaignMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.CampaignMetric(nil), r.upserted...)
}

// fakeResolver hands out Meta credentials derived from the integration id
type fakeResolver struct {
	resealed map[uint][]byte
	failFor  map[uint]error
}

func (r *fakeResolver) Resolve(ctx context.Context, integration *models.Integration) (models.Credential, []byte, error) {
	if err, ok := r.failFor[integration.ID]; ok {
		return nil, nil, err
	}
	return models.MetaCredential{
		AccessToken: "token",
		AccountID:   fmt.Sprintf("%d", integration.ID),
	}, r.resealed[integration.ID], nil
}

// fakeAdapter returns canned metrics per account and fails on demand
type fakeAdapter struct {
	platform  models.Platform
	metrics   map[string][]services.RawMetric
	failFor   map[string]error
	lastSince time.Time
	lastUntil time.Time
	mu        sync.Mutex
}

func (a *fakeAdapter) Platform() models.Platform { return a.platform }

func (a *fakeAdapter) FetchMetrics(ctx context.Context, cred models.Credential, window services.DateRange) ([]services.RawMetric, error) {
	accountID := cred.(models.MetaCredential).AccountID
	a.mu.Lock()
	a.lastSince, a.lastUntil = window.Since, window.Until
	a.mu.Unlock()
	if err, ok := a.failFor[accountID]; ok {
		return nil, err
	}
	return a.metrics[accountID], nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		MaxConcurrent:        4,
		RoutineLookbackDays:  7,
		InsightsLookbackDays: 30,
		SummaryCacheTTL:      24 * time.Hour,
	}
}

func metaIntegration(id, clientID uint) *models.Integration {
	return &models.Integration{
		ID:       id,
		ClientID: clientID,
		Platform: models.PlatformMeta,
		IsActive: utils.ToPtr(true),
	}
}

func rawMetricFor(externalID string, impressions, clicks int64) services.RawMetric {
	return services.RawMetric{
		ExternalCampaignID: externalID,
		Date:               time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Impressions:        impressions,
		Clicks:             clicks,
		Investment:         100,
		Leads:              10,
	}
}

func TestSyncPlatformUnknownPlatform(t *testing.T) {
	flow := NewMetricsSyncFlow(
		newFakeIntegrationRepo(), &fakeCampaignRepo{}, &fakeMetricRepo{},
		&fakeResolver{}, nil, nil, testSyncConfig(), "")

	_, err := flow.SyncPlatform(context.Background(), models.Platform("linkedin"), nil)
	assert.True(t, IsPlatformNotSupported(err))
}

func TestSyncPlatformListingFailure(t *testing.T) {
	repo := newFakeIntegrationRepo()
	repo.listErr = errors.New("connection refused")

	adapter := &fakeAdapter{platform: models.PlatformMeta}
	flow := NewMetricsSyncFlow(
		repo, &fakeCampaignRepo{}, &fakeMetricRepo{},
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	_, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.Error(t, err)
	assert.True(t, IsIntegrationListing(err))
}

func TestSyncPlatformNoIntegrations(t *testing.T) {
	adapter := &fakeAdapter{platform: models.PlatformMeta}
	flow := NewMetricsSyncFlow(
		newFakeIntegrationRepo(), &fakeCampaignRepo{}, &fakeMetricRepo{},
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)
	assert.Equal(t, "Meta Ads synchronization completed", summary.Message)
	assert.Zero(t, summary.Synced)
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.Errors)

	// A clean run serializes without an errors key at all.
	payload, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), `"errors"`)
}

func TestSyncPlatformIsolatesIntegrationFailures(t *testing.T) {
	repo := newFakeIntegrationRepo(
		metaIntegration(1, 10),
		metaIntegration(2, 20),
		metaIntegration(3, 30),
	)
	campaigns := &fakeCampaignRepo{byClient: map[uint][]*models.Campaign{
		10: {{ID: 100, ClientID: 10}},
		20: {{ID: 200, ClientID: 20}},
		30: {{ID: 300, ClientID: 30}},
	}}
	metricRepo := &fakeMetricRepo{}
	adapter := &fakeAdapter{
		platform: models.PlatformMeta,
		metrics: map[string][]services.RawMetric{
			"1": {rawMetricFor("x", 100, 5)},
			"3": {rawMetricFor("y", 200, 10)},
		},
		failFor: map[string]error{
			"2": services.NewPlatformError(models.PlatformMeta, "Error validating access token: Session has expired", nil),
		},
	}

	flow := NewMetricsSyncFlow(
		repo, campaigns, metricRepo,
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, uint(2), summary.Errors[0].IntegrationID)
	assert.Equal(t, "platform authentication failed, reconnect the integration", summary.Errors[0].Error)
	assert.Contains(t, summary.Errors[0].Details, "Session has expired")

	// Marker advances only for the integrations that synced
	_, ok := repo.lastSyncedFor(1)
	assert.True(t, ok)
	_, ok = repo.lastSyncedFor(2)
	assert.False(t, ok)
	_, ok = repo.lastSyncedFor(3)
	assert.True(t, ok)

	assert.Len(t, metricRepo.rows(), 2)
}

func TestSyncPlatformFanOut(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	campaigns := &fakeCampaignRepo{byClient: map[uint][]*models.Campaign{
		10: {
			{ID: 100, ClientID: 10, ExternalID: utils.ToPtr("c-1")},
			{ID: 101, ClientID: 10, ExternalID: utils.ToPtr("c-other")},
			{ID: 102, ClientID: 10}, // no external id, absorbs account-level rows
		},
	}}
	metricRepo := &fakeMetricRepo{}
	adapter := &fakeAdapter{
		platform: models.PlatformMeta,
		metrics: map[string][]services.RawMetric{
			"1": {rawMetricFor("c-1", 1000, 50)},
		},
	}

	flow := NewMetricsSyncFlow(
		repo, campaigns, metricRepo,
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Synced)

	rows := metricRepo.rows()
	require.Len(t, rows, 2)
	got := map[uint]bool{}
	for _, row := range rows {
		got[row.CampaignID] = true
		assert.InDelta(t, 5.0, row.CTR, 0.0001) // recomputed, 50/1000*100
	}
	assert.True(t, got[100], "campaign with matching external id receives the row")
	assert.False(t, got[101], "campaign bound to another external id is skipped")
	assert.True(t, got[102], "campaign without external id absorbs the row")
}

func TestSyncPlatformZeroCampaignsLeavesMarker(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	adapter := &fakeAdapter{
		platform: models.PlatformMeta,
		metrics:  map[string][]services.RawMetric{"1": {rawMetricFor("c-1", 10, 1)}},
	}

	flow := NewMetricsSyncFlow(
		repo, &fakeCampaignRepo{}, &fakeMetricRepo{},
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)

	// Counted as synced, but the marker stays untouched so the first sync
	// after campaigns appear covers the full window.
	assert.Equal(t, 1, summary.Synced)
	_, ok := repo.lastSyncedFor(1)
	assert.False(t, ok)
}

func TestSyncPlatformEmptyFetchStillAdvancesMarker(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	campaigns := &fakeCampaignRepo{byClient: map[uint][]*models.Campaign{
		10: {{ID: 100, ClientID: 10}},
	}}
	metricRepo := &fakeMetricRepo{}
	adapter := &fakeAdapter{platform: models.PlatformMeta} // no rows for the window

	flow := NewMetricsSyncFlow(
		repo, campaigns, metricRepo,
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)

	// An empty response is a valid outcome, not a failure: nothing is
	// written, nothing is reported, and the window counts as covered.
	assert.Equal(t, 1, summary.Synced)
	assert.Empty(t, summary.Errors)
	assert.Empty(t, metricRepo.rows())
	_, ok := repo.lastSyncedFor(1)
	assert.True(t, ok)
}

func TestSyncPlatformSkipsFailedRecordWrites(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	campaigns := &fakeCampaignRepo{byClient: map[uint][]*models.Campaign{
		10: {{ID: 100, ClientID: 10, ExternalID: utils.ToPtr("c-1")}},
	}}
	metricRepo := &fakeMetricRepo{failFirst: errors.New("constraint violation")}

	day1 := rawMetricFor("c-1", 1000, 50)
	day2 := rawMetricFor("c-1", 2000, 80)
	day2.Date = day2.Date.AddDate(0, 0, 1)
	adapter := &fakeAdapter{
		platform: models.PlatformMeta,
		metrics:  map[string][]services.RawMetric{"1": {day1, day2}},
	}

	flow := NewMetricsSyncFlow(
		repo, campaigns, metricRepo,
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)

	// A failed write is skipped per record: the remaining dates still
	// land, the integration stays successful and the marker advances.
	assert.Equal(t, 1, summary.Synced)
	assert.Empty(t, summary.Errors)
	rows := metricRepo.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, day2.Date, rows[0].MetricDate)
	_, ok := repo.lastSyncedFor(1)
	assert.True(t, ok)
}

func TestSyncPlatformPersistsRefreshedToken(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	resolver := &fakeResolver{resealed: map[uint][]byte{1: []byte("sealed-bundle")}}
	adapter := &fakeAdapter{platform: models.PlatformMeta}

	flow := NewMetricsSyncFlow(
		repo, &fakeCampaignRepo{}, &fakeMetricRepo{},
		resolver, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	_, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed-bundle"), repo.tokens[1])
}

func TestSyncPlatformCredentialFailureIsolated(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	resolver := &fakeResolver{failFor: map[uint]error{1: errors.New("secret store unreachable")}}
	adapter := &fakeAdapter{platform: models.PlatformMeta}

	flow := NewMetricsSyncFlow(
		repo, &fakeCampaignRepo{}, &fakeMetricRepo{},
		resolver, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	summary, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Synced)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "failed to resolve integration credential: secret store unreachable", summary.Errors[0].Error)
}

func TestSyncPlatformExplicitWindow(t *testing.T) {
	repo := newFakeIntegrationRepo(metaIntegration(1, 10))
	adapter := &fakeAdapter{platform: models.PlatformMeta}

	flow := NewMetricsSyncFlow(
		repo, &fakeCampaignRepo{}, &fakeMetricRepo{},
		&fakeResolver{}, []services.PlatformAdapter{adapter}, nil, testSyncConfig(), "")

	window := services.DateRange{
		Since: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	_, err := flow.SyncPlatform(context.Background(), models.PlatformMeta, &window)
	require.NoError(t, err)
	assert.Equal(t, window.Since, adapter.lastSince)
	assert.Equal(t, window.Until, adapter.lastUntil)
}

func TestParseWindow(t *testing.T) {
	window, err := ParseWindow("2026-03-01", "2026-03-07")
	require.NoError(t, err)
	assert.Equal(t, 7, window.Days())

	_, err = ParseWindow("2026-03-07", "2026-03-01")
	assert.True(t, IsWindowInverted(err))

	_, err = ParseWindow("03/01/2026", "2026-03-07")
	assert.Error(t, err)
}

func TestLookbackWindowEndsYesterday(t *testing.T) {
	window := LookbackWindow(7)

	today := utils.UTCNow().Truncate(24 * time.Hour)
	assert.Equal(t, today.AddDate(0, 0, -1), window.Until)
	assert.Equal(t, 7, window.Days())
}
