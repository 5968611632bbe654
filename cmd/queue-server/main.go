package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/config"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/queue"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/subscription"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/db"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/middleware"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "queue-server",
		Short: "Patient queue management server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(cleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the queue API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default doctor roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := doctor.NewService(doctor.NewRepoPG(pool), nil)
			if err := svc.Seed(context.Background(), doctor.DefaultRoster()); err != nil {
				return err
			}
			fmt.Println("Seeded default doctor roster.")
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed entries past the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			pool, cleanup, err := openPoolWith(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			svc := queue.NewService(queue.NewRepoPG(pool), doctor.NewRepoPG(pool), nil, nil,
				time.Duration(cfg.RetentionHours)*time.Hour, logger)
			n, err := svc.CleanupStale(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d stale completed entrie(s).\n", n)
			return nil
		},
	}
}

func openPool() (*pgxpool.Pool, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return openPoolWith(cfg)
}

func openPoolWith(cfg *config.Config) (*pgxpool.Pool, func(), error) {
	pool, err := db.NewPool(context.Background(), poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/api/v1")

	// Rate limiting: Redis fixed-window when REDIS_URL is set, otherwise a
	// per-process token bucket.
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		limiter := middleware.NewRedisRateLimiter(rdb, cfg.RateLimitBurst, time.Second, "queue:rl")
		apiV1.Use(limiter.Middleware(logger, true))
		logger.Info().Msg("redis rate limiting enabled")
	} else {
		rateLimitCfg := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}
		if rateLimitCfg.RequestsPerSecond <= 0 {
			rateLimitCfg = middleware.DefaultRateLimitConfig()
		}
		apiV1.Use(middleware.RateLimit(rateLimitCfg))
	}

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Real-time hub
	hub := websocket.NewHub()
	router := subscription.NewRouter(hub, logger)

	// Domain services
	doctorRepo := doctor.NewRepoPG(pool)
	doctorSvc := doctor.NewService(doctorRepo, router)
	queueSvc := queue.NewService(queue.NewRepoPG(pool), doctorRepo, queue.NewEstimator(), router,
		time.Duration(cfg.RetentionHours)*time.Hour, logger)

	registry := subscription.NewRegistry(hub, queueSvc, logger)
	commands := subscription.NewCommandHandler(hub, registry, queueSvc, doctorSvc, logger)
	wsHandler := websocket.NewHandler(hub, commands, logger)
	wsHandler.RegisterRoutes(e)

	// HTTP handlers
	doctor.NewHandler(doctorSvc).RegisterRoutes(apiV1)
	queue.NewHandler(queueSvc, logger).RegisterRoutes(apiV1)

	// Retention janitor
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, queueSvc, time.Duration(cfg.CleanupIntervalMins)*time.Minute, logger)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// runJanitor sweeps stale completed entries on a fixed interval until ctx is
// cancelled.
func runJanitor(ctx context.Context, svc *queue.Service, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CleanupStale(ctx); err != nil {
				logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}
