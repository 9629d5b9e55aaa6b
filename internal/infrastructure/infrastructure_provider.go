package infrastructure

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"mcpbox/internal/config"
	"mcpbox/internal/infrastructure/crontab"
	"mcpbox/internal/infrastructure/database"
	"mcpbox/internal/infrastructure/database/repository"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/infrastructure/extmcp"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/policycache"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/crypto"
)

// ProvideConfig loads and provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideDatabase provides a database connection
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Run migrations if AUTO_MIGRATE is enabled
	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := database.AutoMigrate(db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			return nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}

	return db, nil
}

// ProvideTransactionDatabase provides a transaction database wrapper
func ProvideTransactionDatabase(db *gorm.DB) *transaction.Database {
	return transaction.NewDatabase(db)
}

// ProvideCipher provides the AES-GCM cipher guarding values at rest.
func ProvideCipher(cfg *config.Config) (*crypto.Cipher, error) {
	return crypto.New(cfg.EncryptionKey)
}

// ProvideDiscoveryClient provides the short-lived MCP session client used
// for external tool discovery.
func ProvideDiscoveryClient(cfg *config.Config) *extmcp.Client {
	return extmcp.NewClient(cfg.HTTPTimeout)
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,

	// Database
	ProvideDatabase,
	ProvideTransactionDatabase,

	// Repositories
	repository.RepositoryProvider,

	// Encryption
	ProvideCipher,

	// Sandbox client
	sandbox.NewClient,

	// External MCP discovery client
	ProvideDiscoveryClient,

	// Policy caches
	policycache.NewServiceTokenCache,
	policycache.NewEmailPolicyCache,

	// Logger
	logger.GetLogger,

	// Crontab for retention sweeps and policy refresh
	crontab.NewCrontab,
)
