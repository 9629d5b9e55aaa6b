package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/platformerrors"
)

const (
	// CronJobTimeout bounds each job execution.
	CronJobTimeout = 10 * time.Minute
)

// Crontab schedules the background maintenance jobs: activity log retention,
// expired OAuth flow purging, and settings mirror refresh.
type Crontab struct {
	ctab            *crontab.Crontab
	activityLogger  *activity.Logger
	settingsService *settings.Service
	oauthManager    *externalsource.OAuthManager
	cfg             *config.Config
}

func NewCrontab(
	activityLogger *activity.Logger,
	settingsService *settings.Service,
	oauthManager *externalsource.OAuthManager,
	cfg *config.Config,
) *Crontab {
	return &Crontab{
		ctab:            crontab.New(),
		activityLogger:  activityLogger,
		settingsService: settingsService,
		oauthManager:    oauthManager,
		cfg:             cfg,
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start
	c.refreshPolicies(ctx)
	c.cleanupOldLogs(ctx)

	// Hourly activity log retention sweep
	if err := c.ctab.AddJob("0 * * * *", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.cleanupOldLogs(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add log cleanup job")
	}

	// Minutely housekeeping: abandoned OAuth flows and settings mirrors
	if err := c.ctab.AddJob("* * * * *", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		c.purgeExpiredOAuthFlows()
		c.refreshPolicies(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add housekeeping job")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) cleanupOldLogs(ctx context.Context) {
	log := logger.GetLogger()

	days := c.settingsService.LogRetentionDays(ctx, c.cfg.LogRetentionDays)
	deleted, err := c.activityLogger.CleanupOldLogs(ctx, days)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up old activity logs")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msgf("Removed activity logs older than %d day(s)", days)
	}
}

func (c *Crontab) purgeExpiredOAuthFlows() {
	if purged := c.oauthManager.PurgeExpiredFlows(); purged > 0 {
		log := logger.GetLogger()
		log.Info().Msgf("Purged %d expired OAuth flow(s)", purged)
	}
}

func (c *Crontab) refreshPolicies(ctx context.Context) {
	c.settingsService.RefreshRedaction(ctx)
}
