package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contract-analyzer/config"
)

// CleanupService sweeps jobs (and their chat sessions and cached retrieval
// indexes) that have been idle longer than the retention age. With no durable
// storage, this is the only thing bounding memory over time.
type CleanupService struct {
	cfg    *config.Config
	jobs   *JobStore
	chats  *ChatStore
	cache  *ContextCache
	logger *zap.Logger
}

func NewCleanupService(cfg *config.Config, jobs *JobStore, chats *ChatStore, cache *ContextCache, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		cfg:    cfg,
		jobs:   jobs,
		chats:  chats,
		cache:  cache,
		logger: logger,
	}
}

// Start runs the sweep loop until the context is canceled. Call in a
// goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	if !cs.cfg.CleanupEnabled {
		cs.logger.Info("Job retention cleanup disabled")
		return
	}

	ticker := time.NewTicker(cs.cfg.CleanupInterval)
	defer ticker.Stop()

	cs.logger.Info("Job retention cleanup started",
		zap.Duration("interval", cs.cfg.CleanupInterval),
		zap.Duration("retention_age", cs.cfg.JobRetentionAge))

	for {
		select {
		case <-ticker.C:
			cs.Sweep()
		case <-ctx.Done():
			cs.logger.Info("Job retention cleanup stopped")
			return
		}
	}
}

// Sweep deletes every job idle past the retention age, together with its
// sessions and cached context. Returns the number of jobs removed.
func (cs *CleanupService) Sweep() int {
	cutoff := time.Now().UTC().Add(-cs.cfg.JobRetentionAge)
	stale := cs.jobs.OlderThan(cutoff)
	if len(stale) == 0 {
		return 0
	}

	for _, jobID := range stale {
		sessions := cs.chats.DeleteByJob(jobID)
		cs.cache.Remove(jobID)
		cs.jobs.Delete(jobID)
		cs.logger.Info("Swept stale job",
			zap.String("job_id", jobID.String()),
			zap.Int("sessions_removed", sessions))
	}

	cs.logger.Info("Retention sweep completed",
		zap.Int("jobs_removed", len(stale)),
		zap.Int("jobs_remaining", cs.jobs.Count()))
	return len(stale)
}
