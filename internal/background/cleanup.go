package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/ttrenholm/gatehouse/internal/repositories"
)

// CleanupManager periodically removes login attempt rows past their
// retention window
type CleanupManager struct {
	attemptRepo *repositories.LoginAttemptRepository
	logger      *slog.Logger
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attemptRepo *repositories.LoginAttemptRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo: attemptRepo,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired login attempts from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting login attempt cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.attemptRepo.CleanupExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("login attempt cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
