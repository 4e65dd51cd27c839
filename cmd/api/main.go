package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"servio/internal/config"
	"servio/internal/database"
	"servio/internal/middleware"
	"servio/internal/modules/appointments"
	"servio/internal/modules/auth"
	"servio/internal/modules/availability"
	"servio/internal/modules/feed"
	jwtsvc "servio/internal/pkg/jwt"
	"servio/internal/repository"
	"servio/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SERVIO_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	listingRepo := repository.NewListingRepository(db)
	ruleRepo := repository.NewAvailabilityRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	apptRepo := repository.NewAppointmentRepository(db)
	exceptionRepo := repository.NewRecurrenceExceptionRepository(db)

	jwtService := jwtsvc.New(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	clock := schedule.SystemClock()

	hub := feed.NewHub()
	defer hub.Close()
	notifier := feed.NewNotifier(hub, log)
	wsHandler := feed.NewWSHandler(hub, jwtService, log)

	expander := schedule.NewExpander(log, clock)
	expander.SetMaxInstances(cfg.Schedule.MaxInstances)
	overlay := schedule.NewPendingOverlay(cfg.Schedule.OverlayTTL, clock)

	authService := auth.NewService(userRepo, tokenRepo, jwtService, cfg.Auth.RefreshTokenPepper, cfg.Auth.RefreshTokenTTL)
	authHandler := auth.NewHandler(authService)

	apptService := appointments.NewService(apptRepo, exceptionRepo, listingRepo, userRepo, notifier, expander, clock, log)
	apptHandler := appointments.NewHandler(apptService)

	availService := availability.NewService(slotRepo, ruleRepo, listingRepo, apptRepo, exceptionRepo, notifier, overlay, clock, log)
	availHandler := availability.NewHandler(availService)

	if config.IsProdLike(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))

	r.GET("/ws/feed", wsHandler.HandleWebSocket)

	v1 := r.Group("/api/v1")
	{
		authHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(jwtService))
		{
			authHandler.RegisterProtectedRoutes(protected)
			apptHandler.RegisterRoutes(protected)
			availHandler.RegisterRoutes(protected)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
