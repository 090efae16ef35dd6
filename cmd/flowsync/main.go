// Package main is the entry point for the flowsync server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/api"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/config"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/events"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/orchestrator"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/scheduler"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/services"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
	syncer "github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/templates"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "flowsync"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the specified path or creates a default one
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".flowsync", "config.json"),
			"/etc/flowsync/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".flowsync", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	// Generate random JWT secret and encryption key if not set
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	if cfg.Auth.EncryptionKey == "" {
		key, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		cfg.Auth.EncryptionKey = key
	}

	return cfg, nil
}

// generateRandomKey generates a random key of the specified length
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// App represents the flowsync application
type App struct {
	config          *config.Config
	server          *api.Server
	storageProvider storage.StorageProvider
	scheduler       *scheduler.Scheduler
	logger          logging.Logger
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	storageProvider, err := newStorageProvider(cfg)
	if err != nil {
		return nil, err
	}

	if err := storageProvider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Account service with JWT session tokens
	accountService := services.NewAccountService(storageProvider.GetAccountStore())
	jwtService := services.NewJWTService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiration)*time.Hour)
	accountService.SetTokenValidator(jwtService)

	// Credential cipher for integration API keys
	encryptionKey, err := services.EncryptionKeyFromHex(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	cipher, err := services.NewAESCredentialCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cipher: %w", err)
	}

	integrationService := services.NewIntegrationService(storageProvider.GetIntegrationStore(), cipher, logger)
	synchronizer := syncer.NewSynchronizer(integrationService, storageProvider.GetIntegrationStore(), storageProvider.GetWorkflowStore(), logger)
	orch := orchestrator.NewOrchestrator(integrationService, storageProvider.GetWorkflowStore(), storageProvider.GetExecutionStore(), logger)
	eventRouter := events.NewRouter(storageProvider.GetEventMappingStore(), storageProvider.GetWorkflowStore(), orch, logger)
	installer := templates.NewInstaller(storageProvider.GetTemplateStore(), storageProvider.GetWorkflowStore(), integrationService, logger)

	// Seed the template catalog from disk when configured
	if cfg.Templates.AutoSeed && cfg.Templates.Directory != "" {
		if err := templates.SeedFromDirectory(storageProvider.GetTemplateStore(), cfg.Templates.Directory, logger); err != nil {
			logger.Warn("template seeding failed", logging.Field{Key: "error", Value: err.Error()})
		}
	}

	// Optional Redis-backed sync scheduler
	var syncScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Scheduler.RedisAddr,
			Password: cfg.Scheduler.RedisPassword,
			DB:       cfg.Scheduler.RedisDB,
		})
		syncScheduler = scheduler.NewScheduler(redisClient, synchronizer, logger)
	}

	server := api.NewServer(cfg, api.Services{
		Accounts:     accountService,
		JWT:          jwtService,
		Integrations: integrationService,
		Synchronizer: synchronizer,
		Orchestrator: orch,
		Events:       eventRouter,
		Installer:    installer,
		Scheduler:    syncScheduler,
		Storage:      storageProvider,
		Logger:       logger,
	})

	return &App{
		config:          cfg,
		server:          server,
		storageProvider: storageProvider,
		scheduler:       syncScheduler,
		logger:          logger,
	}, nil
}

// newStorageProvider builds the configured storage backend
func newStorageProvider(cfg *config.Config) (storage.StorageProvider, error) {
	providerType, err := storage.ParseProviderType(cfg.Storage.Type)
	if err != nil {
		return nil, err
	}

	providerConfig := storage.ProviderConfig{Type: providerType}

	switch providerType {
	case storage.DynamoDBProviderType:
		providerConfig.DynamoDB = &storage.DynamoDBProviderConfig{
			Region:      cfg.Storage.DynamoDB.Region,
			Endpoint:    cfg.Storage.DynamoDB.Endpoint,
			TablePrefix: cfg.Storage.DynamoDB.TablePrefix,
		}
	case storage.PostgreSQLProviderType:
		providerConfig.PostgreSQL = &storage.PostgreSQLProviderConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		}
	}

	provider, err := storage.NewProvider(providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage provider: %w", err)
	}
	return provider, nil
}

// Start starts the application
func (a *App) Start() error {
	fmt.Printf("Starting %s version %s\n", AppName, AppVersion)

	if a.scheduler != nil {
		if err := a.scheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return a.server.Start()
}

// Stop stops the application gracefully
func (a *App) Stop(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if err := a.server.Stop(ctx); err != nil {
		return err
	}

	if err := a.storageProvider.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}
