package router

import (
	"context"
	"fmt"

	"github.com/flicker-social/backend/internal/handlers"
	"github.com/flicker-social/backend/internal/middleware"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/stories"
	"github.com/flicker-social/backend/internal/storage"
	"github.com/flicker-social/backend/internal/uploader"
	"github.com/flicker-social/backend/internal/views"
	"github.com/flicker-social/backend/pkg/config"
	"github.com/flicker-social/backend/pkg/firebase"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
}

// Deps bundles everything SetupRoutes wires together.
type Deps struct {
	Config      *config.Config
	Postgres    *gorm.DB
	Mongo       *mongo.Client
	FirebaseApp *firebase.App
	Logger      zerolog.Logger
}

// SetupRoutes configures all application routes and injects dependencies.
// It also returns the assembled story service so background jobs can share it.
func SetupRoutes(e *echo.Echo, deps Deps) (*stories.Service, repositories.StoryRepository, error) {
	err := deps.Postgres.AutoMigrate(
		&models.User{},
		&models.FriendRequest{},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("auto migrate models: %w", err)
	}

	e.GET("/health", handlers.HealthCheck)

	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(deps.Postgres)
	storyRepo := repositories.NewMongoStoryRepository(deps.Mongo.Database("flicker"))

	media, err := buildMediaStorage(deps)
	if err != nil {
		return nil, nil, err
	}

	tracker := views.NewTracker(storyRepo, nil)
	pipeline := uploader.NewPipeline(storyRepo, media, nil, deps.Logger)
	storyService := stories.NewService(storyRepo, userRepo, tracker, pipeline, nil, deps.Logger)

	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())

	storyHandler := handlers.NewStoryHandler(storyService, userRepo, friendshipRepo, deps.Logger)
	storyHandler.RegisterStoryRoutes(api)
	deps.Logger.Info().Msg("story routes configured")

	return storyService, storyRepo, nil
}

func buildMediaStorage(deps Deps) (storage.MediaStorage, error) {
	switch deps.Config.StorageBackend {
	case "minio":
		return storage.NewMinIOStorage(
			context.Background(),
			deps.Config.MinioEndpoint,
			deps.Config.MinioAccessKey,
			deps.Config.MinioSecretKey,
			deps.Config.StorageBucket,
			deps.Config.MinioPublicURL,
			deps.Config.MinioUseSSL,
		)
	case "firebase":
		if deps.FirebaseApp == nil {
			return nil, fmt.Errorf("firebase storage selected but firebase app not initialized")
		}
		return storage.NewFirebaseStorage(deps.FirebaseApp.StorageClient, deps.Config.StorageBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", deps.Config.StorageBackend)
	}
}
