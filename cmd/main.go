package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/config"
	"github.com/rsnash92/builda-club-sub000/internal/handler"
	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/internal/scheduler"
	"github.com/rsnash92/builda-club-sub000/internal/service"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := connectDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	if err := migrate(db); err != nil {
		logger.Fatal("Failed to run migrations:", err)
	}

	// Repositories
	clubRepo := repository.NewClubRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	govRepo := repository.NewGovernanceRepository(db)
	priceRepo := repository.NewPriceRepository(db)
	backupRepo := repository.NewBackupRepository(db)

	// Services
	clubSvc := service.NewClubService(clubRepo, memberRepo, proposalRepo, govRepo, cfg.Governance)
	ledgerSvc := service.NewLedgerService(db, clubRepo, memberRepo, ledgerRepo, govRepo, cfg.Governance.ExitFeePct)
	mintingSvc := service.NewMintingService(db, proposalRepo, voteRepo, clubRepo, memberRepo, ledgerRepo, govRepo)
	proposalSvc := service.NewProposalService(db, ledgerSvc, proposalRepo, voteRepo, clubRepo, memberRepo,
		ledgerRepo, govRepo, priceRepo, mintingSvc, cfg.Governance.VotingWindowDays)
	recoverySvc := service.NewRecoveryService(clubRepo, memberRepo, backupRepo)

	// Background jobs
	sched := scheduler.NewGovernanceScheduler(proposalSvc, recoverySvc, clubRepo, cfg.Governance.SweepCron, cfg.Backup)
	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler:", err)
	}

	// HTTP layer
	clubHandler := handler.NewClubHandler(clubSvc, ledgerSvc, mintingSvc, recoverySvc, sched, ledgerRepo)
	proposalHandler := handler.NewProposalHandler(proposalSvc, mintingSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.HandleHealth)
	mux.HandleFunc("/api/clubs", clubHandler.CreateOrList)
	mux.HandleFunc("/api/clubs/", clubHandler.Route)
	mux.HandleFunc("/api/proposals", proposalHandler.CreateOrList)
	mux.HandleFunc("/api/proposals/", proposalHandler.Route)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening on port ", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown:", err)
	}

	logger.Info("Server exited")
}

func connectDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Club{},
		&models.Member{},
		&models.Proposal{},
		&models.Vote{},
		&models.LedgerEntry{},
		&models.PricePoint{},
		&models.SafeguardConfig{},
		&models.MintingLimits{},
		&models.ApprovedMinter{},
		&models.SnapshotBackup{},
	)
}
