package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"esg-go-api/internal/config"
	"esg-go-api/internal/handlers"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != "" {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		app := newApp(cfg, env)

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Listen(":" + cfg.Server.Port)
		}()
		zap.L().Info("starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
		)

		select {
		case err := <-errCh:
			return eris.Wrap(err, "server listen")
		case <-ctx.Done():
		}

		zap.L().Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		zap.L().Info("server shutdown complete")
		return nil
	},
}

func newApp(c *config.Config, env *pipelineEnv) *fiber.App {
	targetsHandler := handlers.NewTargetsHandler(env.Progress, c.Server.RequestTimeout())
	forecastHandler := handlers.NewForecastHandler(env.Forecaster, c.Server.RequestTimeout())
	var forecastHealth handlers.HealthChecker
	if env.Prophet != nil {
		forecastHealth = env.Prophet
	}
	healthHandler := handlers.NewHealthHandler(env.MetricData, forecastHealth)

	app := fiber.New(fiber.Config{
		StrictRouting: true,
		CaseSensitive: true,
		ServerHeader:  "ESG-API",
		AppName:       "ESG Targets v1.0",
		ReadTimeout:   time.Second * 10,
		WriteTimeout:  c.Server.RequestTimeout() + 5*time.Second,
		BodyLimit:     1 * 1024 * 1024,
		ErrorHandler:  handlers.CustomErrorHandler,
	})

	// Middleware stack
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "https://*",
		AllowMethods:     "GET,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		},
	}))

	app.Get("/health", healthHandler.Health)
	app.Get("/health/ready", healthHandler.Ready)

	// API v1 routes
	var auth []fiber.Handler
	if !c.Auth.Disabled {
		auth = append(auth, handlers.RequireAuth(c.Auth.JWTSecret))
	}
	v1 := app.Group("/v1", auth...)
	v1.Get("/targets/by-category", targetsHandler.GetByCategory)
	v1.Get("/metrics/:metricId/forecast", forecastHandler.GetMetricForecast)

	return app
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
