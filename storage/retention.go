package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionManager periodically purges threat intel indicators older than the
// configured number of days.
type RetentionManager struct {
	store         *RuleStore
	retentionDays int
	checkInterval time.Duration
	logger        *zap.SugaredLogger
	stopCh        chan struct{}
}

// NewRetentionManager creates a retention manager for the given store.
func NewRetentionManager(store *RuleStore, retentionDays int, checkInterval time.Duration, logger *zap.SugaredLogger) *RetentionManager {
	return &RetentionManager{
		store:         store,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the retention loop in a background goroutine.
func (rm *RetentionManager) Start() {
	go rm.run()
}

func (rm *RetentionManager) run() {
	ticker := time.NewTicker(rm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.cleanup()
		case <-rm.stopCh:
			return
		}
	}
}

// Stop stops the retention loop.
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
}

// cleanup performs one retention pass.
func (rm *RetentionManager) cleanup() {
	removed, err := rm.store.PurgeIndicatorsOlderThan(context.Background(), rm.retentionDays)
	if err != nil {
		rm.logger.Errorf("Failed to purge stale indicators: %v", err)
		return
	}
	if removed > 0 {
		rm.logger.Infow("retention pass completed", "removed", removed)
	}
}
