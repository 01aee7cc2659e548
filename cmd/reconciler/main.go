package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/config"
	"airline-booking/internal/database"
	"airline-booking/internal/kafka"
	"airline-booking/internal/logger"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/reconcile"

	"github.com/joho/godotenv"
)

func main() {
	log := logger.NewLogger("reconciler")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if cfg.Razorpay.KeySecret == "" {
		log.Fatal("CONFIG", "RAZORPAY_KEY_SECRET is required to re-verify receipts")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	store := &reconcile.DB{Bun: bunDB}
	svc := reconcile.NewService(store, &bookingdb.DB{Bun: bunDB}, cfg.Razorpay.KeySecret,
		cfg.Reconciler.MaxAttempts, cfg.Reconciler.BatchSize, log)
	svc.Locker = orderredis.NewLock(redisClient, cfg.Reconciler.Interval)

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		svc.Publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingReconciliation, cfg.Kafka.GroupID, log)
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx, svc.HandleMessage); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Reconciliation consumer stopped: %v", err))
			}
		}()
		log.Info("KAFKA", fmt.Sprintf("Consuming %s as %s", cfg.Kafka.Topics.BookingReconciliation, cfg.Kafka.GroupID))
	} else {
		log.Warn("KAFKA", "KAFKA_ENABLED is false, sweeping the table only")
	}

	log.Info("RECONCILE", fmt.Sprintf("Sweeping every %s (max %d attempts)", cfg.Reconciler.Interval, svc.MaxAttempts))
	svc.Run(ctx, cfg.Reconciler.Interval)

	wg.Wait()
	log.Info("APP", "Reconciler stopped")
}
