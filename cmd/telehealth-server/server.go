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
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/config"
	"github.com/skinsense/telehealth/internal/domain/appointment"
	"github.com/skinsense/telehealth/internal/domain/availability"
	"github.com/skinsense/telehealth/internal/domain/call"
	"github.com/skinsense/telehealth/internal/domain/identity"
	"github.com/skinsense/telehealth/internal/domain/messaging"
	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/blobstore"
	"github.com/skinsense/telehealth/internal/platform/cache"
	"github.com/skinsense/telehealth/internal/platform/db"
	"github.com/skinsense/telehealth/internal/platform/events"
	"github.com/skinsense/telehealth/internal/platform/middleware"
	"github.com/skinsense/telehealth/internal/platform/websocket"
)

// infra holds the pluggable backends chosen by configuration.
type infra struct {
	cache     cache.Cache
	publisher events.Publisher
	blobs     blobstore.BlobStore
	closers   []func() error
}

func (inf *infra) Close() {
	for i := len(inf.closers) - 1; i >= 0; i-- {
		_ = inf.closers[i]()
	}
}

func buildInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	inf := &infra{}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "telehealth:")
		if err != nil {
			return nil, err
		}
		inf.cache = rc
		inf.closers = append(inf.closers, rc.Close)
		logger.Info().Msg("using redis cache")
	} else {
		mc := cache.NewMemory()
		mc.StartCleanup(ctx, time.Minute)
		inf.cache = mc
	}

	if len(cfg.KafkaBrokers) > 0 {
		inf.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	} else {
		inf.publisher = events.NewLogPublisher(logger)
	}
	inf.closers = append(inf.closers, inf.publisher.Close)

	switch cfg.BlobBackend {
	case "s3":
		s3, err := blobstore.NewS3BlobStore(ctx, cfg.S3Bucket, cfg.S3Endpoint)
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.blobs = s3
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("using s3 blob store")
	default:
		inf.blobs = blobstore.NewInMemoryBlobStore()
	}

	return inf, nil
}

type services struct {
	issuer       *auth.Issuer
	revocations  *auth.RevocationStore
	identity     *identity.Service
	availability *availability.Service
	appointments *appointment.Service
	messaging    *messaging.Service
	calls        *call.Service
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, inf *infra, logger zerolog.Logger) *services {
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL)
	revocations := auth.NewRevocationStore(inf.cache)
	urls := blobstore.NewURLBuilder(cfg.BlobPublicBaseURL)

	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), issuer, revocations, inf.blobs, urls, logger)
	availabilitySvc := availability.NewService(availability.NewLedgerRepoPG(pool), logger)
	appointmentSvc := appointment.NewService(appointment.NewAppointmentRepoPG(pool), identitySvc, availabilitySvc,
		inf.cache, inf.publisher, appointment.Options{
			EnforceAvailability: cfg.BookingEnforceAvailability,
			CacheTTL:            cfg.AppointmentCacheTTL,
		}, logger)
	messagingSvc := messaging.NewService(messaging.NewChatRepoPG(pool), identitySvc, inf.blobs, urls, db.Runner(pool), logger)
	callSvc := call.NewService(
		call.NewTokenProvider(cfg.CallTokenURL, cfg.JWTSecret, cfg.CallAppID, cfg.CallTokenTTL),
		call.NewLogEngine(logger), identitySvc, cfg.CallAppID, logger)

	return &services{
		issuer:       issuer,
		revocations:  revocations,
		identity:     identitySvc,
		availability: availabilitySvc,
		appointments: appointmentSvc,
		messaging:    messagingSvc,
		calls:        callSvc,
	}
}

// newEcho builds the router. pool backs /health/db only.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, inf *infra, svcs *services, hub *websocket.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", "30M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	public := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	api := public.Group("", auth.Authenticate(svcs.issuer, svcs.revocations, logger))

	blobstore.NewHandler(inf.blobs).RegisterRoutes(public)
	identity.NewHandler(svcs.identity).RegisterRoutes(public, api)
	availability.NewHandler(svcs.availability).RegisterRoutes(api)
	appointment.NewHandler(svcs.appointments).RegisterRoutes(api)
	messaging.NewHandler(svcs.messaging).RegisterRoutes(api)
	call.NewHandler(svcs.calls).RegisterRoutes(api)

	svcs.messaging.RegisterTopics(hub)
	websocket.NewHandler(hub, svcs.revocations, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	inf, err := buildInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise backends")
	}
	defer inf.Close()

	svcs := newServices(pool, cfg, inf, logger)
	hub := websocket.NewHub(logger)
	e := newEcho(cfg, logger, pool, inf, svcs, hub)

	if cfg.CompletionSweepSchedule != "" {
		sweeper, err := appointment.NewSweeper(svcs.appointments, cfg.CompletionSweepSchedule, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid completion sweep schedule")
		}
		sweeper.Start()
		defer sweeper.Stop()
	}
	svcs.calls.StartReaper(ctx, time.Minute, cfg.CallTokenTTL)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
