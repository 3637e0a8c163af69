package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tablemates/backend/internal/auth"
	"github.com/tablemates/backend/internal/config"
	"github.com/tablemates/backend/internal/dispatch"
	"github.com/tablemates/backend/internal/ledger"
	"github.com/tablemates/backend/internal/mail"
	"github.com/tablemates/backend/internal/middleware"
	"github.com/tablemates/backend/internal/notify"
	"github.com/tablemates/backend/internal/orders"
	"github.com/tablemates/backend/internal/otp"
	"github.com/tablemates/backend/internal/server"
	"github.com/tablemates/backend/internal/session"
	"github.com/tablemates/backend/internal/storage/sqlite"
	"github.com/tablemates/backend/pkg/logging"
)

func main() {
	logging.Setup()
	logger := slog.Default()
	cfg := config.Load()
	ctx := context.Background()

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Storage initialized", "database", cfg.DB.Path)

	// OTP challenges live in Redis so codes survive a process restart and
	// are shared between replicas.
	challengeStore, err := otp.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.OTP.TTL)
	if err != nil {
		logger.Error("Failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer challengeStore.Close()
	logger.Info("Challenge store initialized", "redis", cfg.Redis.Addr)

	hub := notify.NewHub(logger)
	publishers := []notify.Publisher{hub}

	if cfg.Kafka.Enabled {
		kafka, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("Failed to connect to kafka", "brokers", cfg.Kafka.Brokers, "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		publishers = append(publishers, kafka)
		logger.Info("Kafka publisher initialized", "topic", cfg.Kafka.Topic)
	}

	var queue dispatch.Queuer
	if cfg.RabbitMQ.Enabled {
		q, err := dispatch.NewQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			logger.Error("Failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer q.Close()
		queue = q
		logger.Info("Fulfillment queue initialized", "queue", cfg.RabbitMQ.Queue)
	}

	var mailer mail.Mailer
	if cfg.SMTP.Enabled {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		mailer = mail.NewLogMailer(logger)
	}

	svc := orders.NewService(orders.Config{
		Store:          store,
		Ledger:         ledger.New(store, logger),
		Codes:          otp.NewManager(challengeStore, cfg.OTP.TTL),
		Sessions:       session.NewRegistry(),
		Events:         notify.NewMulti(logger, publishers...),
		Mailer:         mailer,
		Queue:          queue,
		Logger:         logger,
		DeliveryWindow: cfg.Orders.DeliveryWindow,
	})

	srv := server.New(server.Config{
		Orders:    svc,
		Auth:      auth.NewPasswordAuthenticator(store),
		JWT:       auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenDuration),
		Hub:       hub,
		Logger:    logger,
		EchoCodes: cfg.OTP.EchoCodes,
	})

	go middleware.ServeMetrics(cfg.Server.MetricsAddr, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Server starting", "addr", cfg.Server.Addr)
	if err := srv.Listen(cfg.Server.Addr); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
