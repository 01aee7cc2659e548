package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"airline-booking/internal/api"
	"airline-booking/internal/assistant"
	"airline-booking/internal/assistant/assistant_api"
	"airline-booking/internal/auth"
	"airline-booking/internal/boardingpass"
	"airline-booking/internal/booking"
	"airline-booking/internal/booking/booking_api"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/checkin"
	"airline-booking/internal/checkin/checkin_api"
	"airline-booking/internal/config"
	"airline-booking/internal/database"
	"airline-booking/internal/database/migrations"
	"airline-booking/internal/kafka"
	"airline-booking/internal/logger"
	"airline-booking/internal/order"
	"airline-booking/internal/order/order_api"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/payment/razorpay"
	"airline-booking/internal/ratelimit"
	"airline-booking/internal/reconcile"
	"airline-booking/internal/sse"

	"github.com/joho/godotenv"
)

func runMigrations(ctx context.Context, cfg *config.Config, log *logger.Logger) {
	if !cfg.Migrations.AutoMigrate {
		log.Info("DATABASE", "AUTO_MIGRATE is off, skipping migrations")
		return
	}
	// the runner closes its pool when done, so it gets its own
	sqldb, err := database.OpenSQL(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration connection failed: %v", err))
		return
	}
	runner := migrations.NewRunner(sqldb, cfg.Migrations, log)
	defer runner.Close()
	if err := runner.Run(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
}

func main() {
	log := logger.NewLogger("booking-service")
	defer log.Close()

	log.Info("APP", "Starting booking service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
		return
	}
	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		log.Error("CONFIG", "Razorpay key id or secret not set; order creation and verification will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runMigrations(ctx, cfg, log)

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
		return
	}
	defer bunDB.Close()

	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
		return
	}
	defer redisClient.Close()

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Token verifier setup failed: %v", err))
		return
	}

	store := &bookingdb.DB{Bun: bunDB}
	orders := orderredis.NewOrderStore(redisClient, cfg.Razorpay.OrderTTL)

	gateway := razorpay.NewClient(cfg.Razorpay, nil)
	orderService := order.NewOrderService(gateway, orders, cfg.Razorpay.Currency, log)

	bookingService := booking.NewBookingService(store, cfg.Razorpay.KeySecret, cfg.Razorpay.Currency, log)
	bookingService.Orders = orders
	bookingService.Locker = orderredis.NewLock(redisClient, 30*time.Second)
	bookingService.Recorder = &reconcile.DB{Bun: bunDB}

	emitter := sse.NewCheckInEventEmitter()
	checkInService := checkin.NewCheckInService(store, &checkin.DB{Bun: bunDB},
		boardingpass.NewQRGenerator(cfg.BoardingPass.QRSecret),
		boardingpass.NewPDFGenerator("", cfg.BoardingPass.FontPath), log)
	checkInService.Emitter = emitter

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.TopicNames(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		bookingService.Publisher = producer
		checkInService.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "KAFKA_ENABLED is false, events will not be published")
	}

	opts := api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Verifier:       verifier,
		Logger:         log,
	}
	if cfg.RateLimit.Enabled && !cfg.DevMode() {
		opts.OrderThrottle = ratelimit.Middleware(
			ratelimit.NewLimiter(redisClient, "orders", cfg.RateLimit.Window, cfg.RateLimit.MaxRequests), log)
		opts.AssistantThrottle = ratelimit.Middleware(
			ratelimit.NewLimiter(redisClient, "assistant", cfg.RateLimit.Window, cfg.RateLimit.MaxRequests), log)
	} else {
		log.Info("RATELIMIT", "Per-IP throttling disabled")
	}

	router := api.NewRouter(api.Handlers{
		Orders:    order_api.NewHandler(orderService, log),
		Bookings:  booking_api.NewHandler(bookingService, log),
		CheckIn:   checkin_api.NewHandler(checkInService, log),
		Events:    checkin_api.NewSSEHandler(log, emitter, checkInService),
		Assistant: assistant_api.NewHandler(assistant.NewClient(cfg.Assistant, cfg.Retry, log), log),
	}, opts)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "Booking service shutdown complete")
}
