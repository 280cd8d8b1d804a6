// Package cleanup provides the engine's job retention background loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/datagenflow/pkg/config"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
)

// Service periodically purges terminal jobs (and their cascaded records)
// older than the configured retention window. Safe to run alongside the
// job scheduler: it only ever touches jobs already in a terminal state.
type Service struct {
	config *config.RetentionConfig
	store  *storage.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store *storage.Store) *Service {
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"job_retention", s.config.JobRetention,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.purge(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *Service) purge(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.JobRetention)
	count, err := s.store.PurgeOldJobs(ctx, cutoff)
	if err != nil {
		slog.Error("retention: purge old jobs failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged old jobs", "count", count)
	}
}
