package repository

import (
	"mcpbox/internal/infrastructure/database/repository/activityrepo"
	"mcpbox/internal/infrastructure/database/repository/execlogrepo"
	"mcpbox/internal/infrastructure/database/repository/requestrepo"
	"mcpbox/internal/infrastructure/database/repository/secretrepo"
	"mcpbox/internal/infrastructure/database/repository/serverrepo"
	"mcpbox/internal/infrastructure/database/repository/settingsrepo"
	"mcpbox/internal/infrastructure/database/repository/sourcerepo"
	"mcpbox/internal/infrastructure/database/repository/toolrepo"

	"github.com/google/wire"
)

var RepositoryProvider = wire.NewSet(
	serverrepo.NewServerGormRepository,
	toolrepo.NewToolGormRepository,
	toolrepo.NewToolVersionGormRepository,
	secretrepo.NewSecretGormRepository,
	sourcerepo.NewSourceGormRepository,
	activityrepo.NewActivityGormRepository,
	execlogrepo.NewExecLogGormRepository,
	requestrepo.NewModuleRequestGormRepository,
	requestrepo.NewNetworkRequestGormRepository,
	settingsrepo.NewSettingsGormRepository,
)
