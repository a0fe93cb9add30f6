package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"chipereganyu-settlement/internal/config"
	"chipereganyu-settlement/internal/gateway"
	"chipereganyu-settlement/internal/jobs"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/notify"
	"chipereganyu-settlement/internal/repository/postgres"
	"chipereganyu-settlement/internal/scheduler"
	"chipereganyu-settlement/internal/service"
	"chipereganyu-settlement/internal/utils"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'reconcile-settlements', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Chipereganyu cronjob runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := postgres.Open(context.Background(), cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Services
	gatewayClient := gateway.NewClient(cfg.Gateway)
	reserveService := service.NewReserveService(store.ReserveRepository)
	settlementService := service.NewSettlementService(
		store.SettlementRepository,
		store.PayoutRepository,
		store.ContributionRepository,
		store.NotificationRepository,
		store.AuditRepository,
		reserveService,
		gatewayClient,
		service.EngineConfig{
			Fees:           utils.FeeSchedule{ReserveBps: cfg.Fees.ReserveBps, PlatformBps: cfg.Fees.PlatformBps},
			MinGrossAmount: cfg.Fees.MinGrossAmount,
		},
	)
	notificationService := service.NewNotificationService(
		store.NotificationRepository,
		store.ContactRepository,
		notificationSenders(cfg.Notifications),
		service.NotificationConfig{BatchSize: cfg.Notifications.BatchSize, MaxAttempts: cfg.Notifications.MaxAttempts},
	)

	jobServices := &jobs.Services{
		Settlements:   settlementService,
		Reserve:       reserveService,
		Notifications: notificationService,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store.SettlementRepository, gatewayClient, jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to initialize scheduler", "error", err)
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	if jobName == "all" {
		jobRunner.RunAll()
		return
	}
	if err := jobRunner.RunOnce(jobName); err != nil {
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		names := make([]string, 0)
		for name := range jobRunner.Jobs() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}

func notificationSenders(cfg config.NotificationsConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.FirebaseCredentialsFile != "" {
		push, err := notify.NewPushSender(context.Background(), cfg.FirebaseCredentialsFile)
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
	return senders
}
