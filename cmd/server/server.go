package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/infrastructure/crontab"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/observability"
	"mcpbox/internal/interfaces/httpserver"

	_ "net/http/pprof"
)

type Application struct {
	httpServer     *httpserver.HTTPServer
	crontab        *crontab.Crontab
	activityLogger *activity.Logger
}

func init() {
	logger.GetLogger()
	config.Load()
}

func (application *Application) Start() {
	log := logger.GetLogger()
	cfg := config.GetGlobal()

	background := context.Background()
	ctx, cancel := context.WithCancel(background)
	defer cancel()

	var eg errgroup.Group
	if cfg.PprofEnabled {
		eg.Go(func() error {
			err := http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", cfg.PprofPort), nil)
			if err != nil {
				cancel()
			}
			return err
		})
	}
	eg.Go(func() error {
		err := application.crontab.Run(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := application.httpServer.Run()
		if err != nil {
			cancel()
		}
		return err
	})

	// Flush buffered activity entries before the process dies.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		flushCtx, flushCancel := context.WithTimeout(background, 5*time.Second)
		defer flushCancel()
		if err := application.activityLogger.Flush(flushCtx); err != nil {
			log.Error().Err(err).Msg("flush activity log")
		}
		cancel()
		os.Exit(0)
	}()

	if err := eg.Wait(); err != nil {
		panic(err)
	}
}

func main() {
	ctx := context.Background()

	cfg := config.GetGlobal()
	if cfg == nil {
		log := logger.GetLogger()
		log.Fatal().Msg("config not loaded")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		fallback := logger.GetLogger()
		fallback.Fatal().Err(err).Msg("configure logger")
	}

	application, err := CreateApplication()
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}

	dataInitializer, err := CreateDataInitializer()
	if err != nil {
		log.Fatal().Err(err).Msg("create data initializer")
	}

	otelShutdown, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	if err := dataInitializer.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("install data")
	}

	application.Start()
}
