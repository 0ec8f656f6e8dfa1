package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/proxy"
	"github.com/anonto42/nano-midea/user-service/internal/router"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/anonto42/nano-midea/user-service/internal/validators"
	"github.com/anonto42/nano-midea/user-service/pkg/config"
	"github.com/anonto42/nano-midea/user-service/pkg/firebase"
	"github.com/anonto42/nano-midea/user-service/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg, zl)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	storageCfg := storage.Config{
		Endpoint:       cfg.Minio.Endpoint,
		PublicEndpoint: cfg.Minio.PublicEndpoint,
		AccessKey:      cfg.Minio.AccessKey,
		SecretKey:      cfg.Minio.SecretKey,
		Region:         cfg.Minio.Region,
		Bucket:         cfg.Minio.Bucket,
		Timeout:        cfg.Minio.Timeout,
		MaxSize:        cfg.Minio.MaxUploadSize,
	}
	s3Client, err := storage.NewS3Client(ctx, storageCfg)
	if err != nil {
		return err
	}
	assets := storage.NewAssetStore(s3Client, storageCfg, zl.Named("storage"))

	deps := router.Dependencies{
		Postgres: db.Postgres,
		Assets:   assets,
		Proxy:    proxy.NewGate(assets.OwnedPrefix(), cfg.ProxyTimeout, zl.Named("proxy")),
		Logger:   zl,
	}
	if db.Mongo != nil {
		deps.Mongo = db.Mongo.Database(cfg.MongoDatabase)
	}

	// Initialize Firebase when credentials are configured
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, zl)
		if err != nil {
			return err
		}
		deps.Auth = firebaseApp.AuthClient
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()

	config.SetupMiddleware(e, cfg, zl)

	profiles, err := router.SetupRoutes(e, deps)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.String("port", cfg.Port), zap.String("bucket", assets.OwnedPrefix()))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
	// let in-flight asset cleanups finish before the connections close
	profiles.Wait()
	return nil
}
