//go:build wireinject

package main

import (
	"mcpbox/internal/domain"
	"mcpbox/internal/domain/management"
	"mcpbox/internal/infrastructure"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/interfaces"
	"mcpbox/internal/interfaces/httpserver/routes"

	"github.com/google/wire"
)

func CreateApplication() (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		// Management tool dispatch
		management.NewDispatcher,
		wire.Bind(new(management.CodeRunner), new(*sandbox.Client)),
		infrastructure.InfrastructureProvider,
		routes.RouteProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}

func CreateDataInitializer() (*DataInitializer, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		wire.Struct(new(DataInitializer), "*"),
	)
	return nil, nil
}
