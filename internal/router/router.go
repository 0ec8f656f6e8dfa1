package router

import (
	"fmt"

	"github.com/anonto42/nano-midea/user-service/internal/handlers"
	"github.com/anonto42/nano-midea/user-service/internal/middleware"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/repositories"
	"github.com/anonto42/nano-midea/user-service/internal/services"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the long-lived clients the routes are built from.
// Mongo and Auth are optional.
type Dependencies struct {
	Postgres *gorm.DB
	Mongo    *mongo.Database
	Assets   services.AssetStore
	Proxy    handlers.ImageProxy
	Auth     middleware.TokenVerifier
	Logger   *zap.Logger
}

// SetupRoutes migrates the schema, wires repositories, services and
// handlers, and registers every route. The returned service must be
// drained with Wait on shutdown.
func SetupRoutes(e *echo.Echo, deps Dependencies) (*services.ProfileService, error) {
	if err := deps.Postgres.AutoMigrate(&models.User{}, &models.Follow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate models: %w", err)
	}
	deps.Logger.Info("PostgreSQL auto-migrations completed")

	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	followRepo := repositories.NewPostgresFollowRepository(deps.Postgres)
	var orphanRepo repositories.OrphanRepository = repositories.NopOrphanRepository{}
	if deps.Mongo != nil {
		orphanRepo = repositories.NewMongoOrphanRepository(deps.Mongo)
	}

	profiles := services.NewProfileService(
		userRepo,
		followRepo,
		repositories.NewGormTransactor(deps.Postgres),
		deps.Assets,
		deps.Logger.Named("profiles"),
		services.WithOrphanRepository(orphanRepo),
	)

	var guard []echo.MiddlewareFunc
	if deps.Auth != nil {
		guard = append(guard, middleware.FirebaseAuthMiddleware(deps.Auth))
		deps.Logger.Info("Firebase authentication applied to mutating routes")
	} else {
		deps.Logger.Warn("Firebase not configured, mutating routes are unauthenticated")
	}

	api := e.Group("/api")

	handlers.NewUserHandler(profiles, deps.Logger.Named("users")).RegisterUserRoutes(api, guard...)
	handlers.NewFollowHandler(profiles, deps.Logger.Named("follows")).RegisterFollowRoutes(api, guard...)
	handlers.NewImageHandler(deps.Proxy, deps.Logger.Named("images")).RegisterImageRoutes(api)

	deps.Logger.Info("All routes configured", zap.Int("routes", len(e.Routes())))
	return profiles, nil
}
