package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	configs "github.com/shoplane/accounts/config"
	"github.com/shoplane/accounts/internal/handler"
	"github.com/shoplane/accounts/internal/middleware"
	"github.com/shoplane/accounts/internal/repository"
	"github.com/shoplane/accounts/internal/router"
	"github.com/shoplane/accounts/internal/service"
	"github.com/shoplane/accounts/pkg/database"
	"github.com/shoplane/accounts/pkg/logger"
	"github.com/shoplane/accounts/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.InitLogger(config.App.Environment); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.GetLogger().Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
	)

	db, err := database.NewPostgresDB(database.Config{
		Host:            config.Database.Host,
		Port:            config.Database.Port,
		User:            config.Database.User,
		Password:        config.Database.Password,
		Database:        config.Database.Name,
		SSLMode:         config.Database.SSLMode,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.GetLogger().Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.GetLogger().Info("Database migrated successfully")

	if err := database.Seed(db); err != nil {
		// Seed data may already exist, never fatal
		logger.GetLogger().Error("Failed to seed database", zap.Error(err))
	}

	redisClient := redis.NewClient(redis.Config{
		Host:         config.Redis.Host,
		Port:         config.Redis.Port,
		Password:     config.Redis.Password,
		DB:           config.Redis.Database,
		Enabled:      config.Redis.Enabled,
		PoolSize:     config.Redis.PoolSize,
		MinIdleConns: config.Redis.MinIdleConns,
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
	}, logger.GetLogger())
	defer redisClient.Close()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db, redisClient)

	// Services
	tokenService := service.NewTokenService(config.JWT, tokenRepo)
	verifier := service.NewDefaultVerifier(userRepo)
	usernames := service.NewUsernameGenerator()
	accountService := service.NewAccountService(userRepo, verifier, tokenService, usernames)

	// Handlers and middleware
	authHandler := handler.NewAuthHandler(accountService)
	userHandler := handler.NewUserHandler(accountService)
	healthHandler := handler.NewHealthHandler(db, redisClient)
	jwtMiddleware := middleware.NewJWTMiddleware(tokenService, userRepo)

	r := router.NewRouter(
		authHandler,
		userHandler,
		healthHandler,
		jwtMiddleware,
		config,
	).SetupRoutes()

	// Periodic cleanup of expired outstanding-token records
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(cleanupCtx, 30*time.Second)
				if _, err := tokenRepo.DeleteExpired(ctx); err != nil {
					logger.GetLogger().Warn("Token cleanup failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()

	go func() {
		logger.GetLogger().Info("Server starting",
			zap.String("port", config.App.Port),
		)
		if err := r.Run(":" + config.App.Port); err != nil {
			logger.GetLogger().Fatal("Failed to start server",
				zap.Error(err),
				zap.String("port", config.App.Port),
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.GetLogger().Info("Shutting down server...")
}
