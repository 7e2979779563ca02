package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/care"
	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/domain/transfer"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/middleware"
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: every request is served as dev-user with the admin role")
	}

	a, err := openApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer a.Close()

	if a.pool != nil {
		if err := db.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool); err != nil {
			logger.Warn().Err(err).Msg("pool metrics not registered")
		}
	}

	e := newServer(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.Storage).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the HTTP surface. Health and metrics are public; the
// /api/v1 and /admin groups are authenticated and audited.
func newServer(a *app) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{echo.HeaderContentDisposition},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	var pinger db.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	scoped := []echo.MiddlewareFunc{authMiddleware(cfg)}
	if timeout, err := time.ParseDuration(cfg.RequestTimeout); err == nil && timeout > 0 {
		scoped = append(scoped, middleware.RequestTimeout(timeout, "/admin/import/"))
	}
	if a.pool != nil {
		scoped = append(scoped, db.ConnMiddleware(a.pool, cfg.DBSchema))
	}
	scoped = append(scoped, middleware.Flashes(cfg.FlashCookie, cfg.FlashSecret), middleware.Audit(logger))

	api := e.Group("/api/v1", scoped...)
	admin := e.Group("/admin", append(scoped, auth.RequireRole(auth.RoleAdmin))...)

	care.NewHandler(a.care).RegisterRoutes(api, admin)
	transfer.NewHandler(a.transfer).RegisterRoutes(admin)
	subrecord.NewHandler().RegisterRoutes(api)

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}
