package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flicker-social/backend/internal/expiry"
	"github.com/flicker-social/backend/internal/router"
	"github.com/flicker-social/backend/pkg/config"
	"github.com/flicker-social/backend/pkg/firebase"
	"github.com/flicker-social/backend/pkg/logger"
	"github.com/flicker-social/backend/validators"
	"github.com/labstack/echo/v4"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize databases")
	}
	defer db.CloseDB(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var firebaseApp *firebase.App
	if cfg.StorageBackend == "firebase" || cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err = firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize firebase")
		}
		log.Info().Msg("firebase app initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e)

	_, storyRepo, err := router.SetupRoutes(e, router.Deps{
		Config:      cfg,
		Postgres:    db.Postgres,
		Mongo:       db.Mongo,
		FirebaseApp: firebaseApp,
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	sweeper := expiry.NewSweeper(storyRepo, cfg.SweepInterval, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start expiry sweep")
	}
	defer sweeper.Stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = e.Shutdown(context.Background())
	}()

	if err := e.Start(":" + cfg.Port); err != nil {
		log.Info().Err(err).Msg("server stopped")
		os.Exit(0)
	}
}
