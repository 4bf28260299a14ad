package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-alpr-service/internal/config"
	"parking-alpr-service/internal/db"
	apphttp "parking-alpr-service/internal/http"
	"parking-alpr-service/internal/notify"
	"parking-alpr-service/internal/repository"
	"parking-alpr-service/internal/service"
	"parking-alpr-service/internal/verify"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	eventRepo := repository.NewEventRepository(gdb)
	guestRepo := repository.NewGuestRepository(gdb)
	sessionRepo := repository.NewSessionRepository(gdb)
	customerRepo := repository.NewCustomerRepository(gdb)

	var notifier notify.Notifier = notify.NoOpNotifier{}
	if cfg.RabbitMQ.URL != "" {
		notifier = notify.NewAMQPNotifier(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
	} else {
		log.Warn().Msg("rabbitmq not configured, registration emails disabled")
	}

	verifier := verify.NewRecaptchaVerifier(
		cfg.Recaptcha.Secret,
		cfg.Recaptcha.VerifyURL,
		cfg.Recaptcha.Timeout,
		cfg.Recaptcha.ScoreThreshold,
		log,
	)

	parkingService := service.NewParkingService(
		eventRepo,
		guestRepo,
		sessionRepo,
		customerRepo,
		notifier,
		verifier,
		service.NewRealClock(),
		service.Windows{
			PendingWindow:       cfg.Parking.PendingWindow(),
			FullParkingDuration: cfg.Parking.FullParkingDuration(),
		},
		log,
	)

	if cfg.Parking.SweepIntervalMinutes > 0 {
		go runHousekeeping(parkingService, cfg.Parking.SweepInterval(), cfg.Parking.EventRetentionDays)
	}

	rdb := db.NewRedisClient(cfg)
	if rdb == nil {
		log.Warn().Msg("redis not available, rate limiting disabled")
	}
	rateLimiter := apphttp.NewTokenBucket(cfg.RateLimit, rdb, log)

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Webhook-Token")
	r.Use(cors.New(corsConfig))

	handler := apphttp.NewHandler(parkingService, cfg, log)
	handler.Register(r, apphttp.JWTAuth(cfg.Auth.JWTSecret), rateLimiter)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// runHousekeeping periodically persists guest expiry and prunes camera events
// past the retention horizon. Failures are logged by the service and retried
// on the next tick.
func runHousekeeping(svc *service.ParkingService, interval time.Duration, retentionDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		_, _ = svc.SweepExpiredGuests(ctx)
		if retentionDays > 0 {
			_, _ = svc.CleanupOldEvents(ctx, retentionDays)
		}
		cancel()
	}
}
