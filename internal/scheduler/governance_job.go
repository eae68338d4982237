package scheduler

import (
	"context"

	"github.com/rsnash92/builda-club-sub000/internal/config"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/internal/service"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"github.com/robfig/cron/v3"
)

// GovernanceScheduler periodically settles expired proposals, checks
// circuit breakers, and takes ledger snapshots. Every job is idempotent
// so overlapping runs (or an on-vote resolution racing the sweep) are
// harmless.
type GovernanceScheduler struct {
	cron        *cron.Cron
	proposalSvc *service.ProposalService
	recoverySvc *service.RecoveryService
	clubRepo    *repository.ClubRepository
	sweepCron   string
	backupCfg   config.BackupConfig
}

func NewGovernanceScheduler(
	proposalSvc *service.ProposalService,
	recoverySvc *service.RecoveryService,
	clubRepo *repository.ClubRepository,
	sweepCron string,
	backupCfg config.BackupConfig,
) *GovernanceScheduler {
	return &GovernanceScheduler{
		cron:        cron.New(cron.WithSeconds()),
		proposalSvc: proposalSvc,
		recoverySvc: recoverySvc,
		clubRepo:    clubRepo,
		sweepCron:   sweepCron,
		backupCfg:   backupCfg,
	}
}

func (s *GovernanceScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepCron, s.sweep); err != nil {
		return err
	}
	if s.backupCfg.Enabled {
		if _, err := s.cron.AddFunc(s.backupCfg.Cron, s.backup); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info("Governance scheduler started")
	return nil
}

func (s *GovernanceScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Governance scheduler stopped")
}

func (s *GovernanceScheduler) sweep() {
	ctx := context.Background()

	clubs, err := s.clubRepo.ListAll(ctx)
	if err != nil {
		logger.Error("Failed to list clubs for sweep:", err)
		return
	}

	for _, club := range clubs {
		resolved, err := s.proposalSvc.ResolveExpired(ctx, club.ID)
		if err != nil {
			logger.Error("Failed to resolve expired proposals for club:", club.ID, err)
			continue
		}
		if len(resolved) > 0 {
			logger.WithFields(map[string]interface{}{
				"club_id":  club.ID,
				"resolved": len(resolved),
			}).Info("expired proposals settled")
		}

		if _, err := s.proposalSvc.EvaluateCircuitBreaker(ctx, club.ID); err != nil {
			logger.Error("Circuit breaker evaluation failed for club:", club.ID, err)
		}
	}
}

func (s *GovernanceScheduler) backup() {
	ctx := context.Background()

	clubs, err := s.clubRepo.ListAll(ctx)
	if err != nil {
		logger.Error("Failed to list clubs for backup:", err)
		return
	}

	for _, club := range clubs {
		if err := s.recoverySvc.BackupLedger(ctx, club.ID); err != nil {
			logger.Error("Failed to back up ledger for club:", club.ID, err)
		}
	}

	if pruned, err := s.recoverySvc.PruneBackups(ctx, s.backupCfg.RetentionDays); err != nil {
		logger.Error("Failed to prune old backups:", err)
	} else if pruned > 0 {
		logger.WithFields(map[string]interface{}{
			"pruned": pruned,
		}).Info("old snapshot backups pruned")
	}
}

// TriggerSweep runs one sweep for a single club on demand (manual
// operations endpoint).
func (s *GovernanceScheduler) TriggerSweep(ctx context.Context, clubID string) error {
	if _, err := s.proposalSvc.ResolveExpired(ctx, clubID); err != nil {
		return err
	}
	_, err := s.proposalSvc.EvaluateCircuitBreaker(ctx, clubID)
	return err
}
