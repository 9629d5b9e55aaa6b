package main

import (
	"context"
	"strconv"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/logger"
)

// DataInitializer seeds the settings rows admins expect to see on a fresh
// install. Existing rows are never overwritten.
type DataInitializer struct {
	settingsService *settings.Service
}

type settingSeed struct {
	key   string
	value string
}

func (d *DataInitializer) Install(ctx context.Context) error {
	cfg := config.GetGlobal()

	seeds := []settingSeed{
		{key: settings.KeyToolApprovalMode, value: settings.ApprovalModeRequire},
		{key: settings.KeyRedactSensitive, value: "true"},
		{key: settings.KeyLogRetentionDays, value: strconv.Itoa(cfg.LogRetentionDays)},
	}

	log := logger.GetLogger()
	for _, seed := range seeds {
		existing, err := d.settingsService.Get(ctx, seed.key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := d.settingsService.Put(ctx, seed.key, seed.value); err != nil {
			return err
		}
		log.Info().Str("key", seed.key).Msg("seeded default setting")
	}

	return nil
}
