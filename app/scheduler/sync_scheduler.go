// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	businessflow "github.com/trafficlab/traffic-api/business_flow"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	syncLockPrefix      = "sync:lock:"
	insightsDailyMarker = "sync:insights:daily"
)

// SyncScheduler periodically runs metric synchronization for every supported
// platform, plus a daily Meta ad-insights import. A per-platform Redis lock
// keeps concurrent deployments from running the same platform twice.
type SyncScheduler struct {
	syncFlow     businessflow.MetricsSyncFlow
	insightsFlow businessflow.InsightsImportFlow
	redisClient  *redis.Client
	syncCfg      config.SyncConfig
	logCfg       config.LoggingConfig
	logger       *log.Logger
	platforms    []models.Platform
}

func NewSyncScheduler(
	syncFlow businessflow.MetricsSyncFlow,
	insightsFlow businessflow.InsightsImportFlow,
	redisClient *redis.Client,
	syncCfg config.SyncConfig,
	logCfg config.LoggingConfig,
) *SyncScheduler {
	if syncCfg.Interval <= 0 {
		syncCfg.Interval = 6 * time.Hour
	}

	s := &SyncScheduler{
		syncFlow:     syncFlow,
		insightsFlow: insightsFlow,
		redisClient:  redisClient,
		syncCfg:      syncCfg,
		logCfg:       logCfg,
		platforms: []models.Platform{
			models.PlatformMeta,
			models.PlatformGoogleAds,
			models.PlatformTikTokAds,
		},
	}
	s.initSchedulerLogger()

	return s
}

// initSchedulerLogger configures a logger that writes to stdout and, when
// enabled, a size-rotated file so long sync histories survive restarts.
func (s *SyncScheduler) initSchedulerLogger() {
	var w io.Writer = os.Stdout
	if s.logCfg.EnableSyncLog {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   s.logCfg.SyncLogPath,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
	s.logger = log.New(w, "sync ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *SyncScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.syncCfg.Interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	for _, platform := range s.platforms {
		if ctx.Err() != nil {
			return
		}
		s.syncPlatform(ctx, platform)
	}

	s.maybeImportInsights(ctx)
}

func (s *SyncScheduler) syncPlatform(ctx context.Context, platform models.Platform) {
	release, ok := s.acquireLock(ctx, syncLockPrefix+platform.String(), s.syncCfg.LockTTL)
	if !ok {
		s.logger.Printf("scheduler: %s sync already running elsewhere, skipping", platform)
		return
	}
	defer release()

	summary, err := s.syncFlow.SyncPlatform(ctx, platform, nil)
	if err != nil {
		if businessflow.IsSyncAlreadyRunning(err) {
			s.logger.Printf("scheduler: %s sync already in progress, skipping", platform)
			return
		}
		s.logger.Printf("scheduler: %s sync failed: %v", platform, err)
		return
	}
	s.logger.Printf("scheduler: %s sync completed: %d/%d integrations, %d errors",
		platform, summary.Synced, summary.Total, len(summary.Errors))
	for _, e := range summary.Errors {
		s.logger.Printf("scheduler: %s integration %d: %s", platform, e.IntegrationID, e.Error)
	}
}

// maybeImportInsights runs the Meta ad-insights import at most once per day
// across all deployments, gated by a marker key in Redis.
func (s *SyncScheduler) maybeImportInsights(ctx context.Context) {
	if s.insightsFlow == nil {
		return
	}
	if s.redisClient != nil {
		set, err := s.redisClient.SetNX(ctx, insightsDailyMarker, utils.UTCNowRFC3339(), 24*time.Hour).Result()
		if err != nil {
			s.logger.Printf("scheduler: insights marker check failed: %v", err)
			return
		}
		if !set {
			return
		}
	}

	res, err := s.insightsFlow.ImportMetaInsights(ctx, nil)
	if err != nil {
		s.logger.Printf("scheduler: insights import failed: %v", err)
		return
	}
	s.logger.Printf("scheduler: insights import completed: %d rows from %d integrations, %d errors",
		res.Imported, res.Total, len(res.Errors))
}

// acquireLock takes a best-effort distributed lock. Without Redis the lock
// degrades to a no-op, which is fine for single-instance deployments.
func (s *SyncScheduler) acquireLock(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	if s.redisClient == nil {
		return func() {}, true
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	hostname, _ := os.Hostname()
	set, err := s.redisClient.SetNX(ctx, key, hostname, ttl).Result()
	if err != nil {
		s.logger.Printf("scheduler: lock %s acquisition failed: %v", key, err)
		// Run anyway; a missed lock is better than a silently stalled sync
		return func() {}, true
	}
	if !set {
		return nil, false
	}

	return func() {
		if err := s.redisClient.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			s.logger.Printf("scheduler: lock %s release failed: %v", key, err)
		}
	}, true
}
