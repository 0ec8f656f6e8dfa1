package testutils

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	containerTimeout = 90 * time.Second
	minioUser        = "minioadmin"
	minioPassword    = "minioadmin"
)

// SkipUnlessIntegration skips tests that need Docker unless
// INTEGRATION_TESTS=1
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run tests against containers")
	}
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (testcontainers.Container, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), containerTimeout)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	return container, host
}

// NewPostgresDB starts a Postgres container and returns a migrated GORM
// handle configured like production.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	SkipUnlessIntegration(t)

	container, host := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "users",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	})

	port, err := container.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgresql://test:test@%s:%s/users?sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Follow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewMinIOConfig starts a MinIO container and returns a storage config for
// bucket
func NewMinIOConfig(t *testing.T, bucket string) storage.Config {
	t.Helper()
	SkipUnlessIntegration(t)

	container, host := startContainer(t, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	})

	port, err := container.MappedPort(context.Background(), "9000/tcp")
	if err != nil {
		t.Fatalf("failed to get minio port: %v", err)
	}

	return storage.Config{
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: minioUser,
		SecretKey: minioPassword,
		Region:    "us-east-1",
		Bucket:    bucket,
		Timeout:   10 * time.Second,
	}
}

// NewMongoDatabase starts a MongoDB container and returns a fresh database
func NewMongoDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	SkipUnlessIntegration(t)

	container, host := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("failed to get mongo port: %v", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping mongo: %v", err)
	}
	return client.Database("user_service_test")
}
