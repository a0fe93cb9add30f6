package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httpapi "chipereganyu-settlement/internal/api/http"
	"chipereganyu-settlement/internal/config"
	"chipereganyu-settlement/internal/gateway"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/notify"
	"chipereganyu-settlement/internal/repository/postgres"
	"chipereganyu-settlement/internal/security"
	"chipereganyu-settlement/internal/service"
	"chipereganyu-settlement/internal/utils"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Chipereganyu settlement service...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http_address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	logger.Info("Gateway configuration", "base_url", cfg.Gateway.BaseURL, "currency", cfg.Gateway.Currency, "rps", cfg.Gateway.RequestsPerSecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			log.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("Database schema applied")
	}

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Gateway
	gatewayClient := gateway.NewClient(cfg.Gateway)

	// Initialize Services
	reserveSvc := service.NewReserveService(store.ReserveRepository)
	settlementSvc := service.NewSettlementService(
		store.SettlementRepository,
		store.PayoutRepository,
		store.ContributionRepository,
		store.NotificationRepository,
		store.AuditRepository,
		reserveSvc,
		gatewayClient,
		service.EngineConfig{
			Fees:           utils.FeeSchedule{ReserveBps: cfg.Fees.ReserveBps, PlatformBps: cfg.Fees.PlatformBps},
			MinGrossAmount: cfg.Fees.MinGrossAmount,
		},
	)
	services := service.Services{
		Settlements: settlementSvc,
		Reserve:     reserveSvc,
		Payouts: service.NewPayoutService(
			settlementSvc,
			store.PayoutRepository,
			store.ContributionRepository,
			store.AccountRepository,
			store.AuditRepository,
		),
		Retries: service.NewRetryService(
			settlementSvc,
			store.SettlementRepository,
			store.AccountRepository,
			store.PayoutRepository,
			store.AuditRepository,
			service.RetryConfig{MaxAttempts: cfg.Retry.MaxAttempts, Window: cfg.RetryWindow()},
		),
		Disputes: service.NewDisputeService(
			settlementSvc,
			store.DisputeRepository,
			store.SettlementRepository,
			store.AccountRepository,
			store.NotificationRepository,
			store.AuditRepository,
			service.DisputeConfig{MinReasonLength: cfg.Dispute.MinReasonLength},
		),
		Notifications: service.NewNotificationService(
			store.NotificationRepository,
			store.ContactRepository,
			notificationSenders(ctx, cfg.Notifications),
			service.NotificationConfig{BatchSize: cfg.Notifications.BatchSize, MaxAttempts: cfg.Notifications.MaxAttempts},
		),
	}

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	// Set up HTTP server
	router := httpapi.NewRouter(httpapi.NewHandler(services), httpapi.NewAuthMiddleware(tokenManager), cfg.Gateway.WebhookSecret)
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up gRPC health server for ops probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
			log.Fatalf("Failed to listen: %v", err)
		}
		g.Go(func() error {
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped. Goodbye!")
}

// notificationSenders builds the configured delivery channels. The log sender
// is used when none is configured.
func notificationSenders(ctx context.Context, cfg config.NotificationsConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.FirebaseCredentialsFile != "" {
		push, err := notify.NewPushSender(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("Failed to initialize push notifications", "error", err)
		} else {
			senders = append(senders, push)
		}
	}
	if cfg.SendGridAPIKey != "" && cfg.FromEmail != "" {
		senders = append(senders, notify.NewEmailSender(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName))
	} else if cfg.SMTPHost != "" && cfg.FromEmail != "" {
		senders = append(senders, notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail))
	}
	if len(senders) == 0 {
		logger.Warn("No notification channel configured, notifications are logged only")
		senders = append(senders, notify.LogSender{})
	}
	return senders
}
