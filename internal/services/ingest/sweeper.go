package ingest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

// Sweeper deletes uploaded context documents older than the configured
// retention window on a cron schedule. Manual documents are never swept.
type Sweeper struct {
	config    *common.IngestConfig
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
	cron      *cron.Cron
}

// NewSweeper creates the retention sweeper
func NewSweeper(config *common.IngestConfig, documents interfaces.DocumentStorage, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		config:    config,
		documents: documents,
		logger:    logger,
	}
}

// Start schedules the sweep. A zero retention window disables it.
func (s *Sweeper) Start() error {
	window := s.config.RetentionWindow()
	if window == 0 {
		s.logger.Debug().Msg("Document retention sweep disabled")
		return nil
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.SweepSchedule, func() {
		s.sweep(window)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.SweepSchedule).
		Dur("retention", window).
		Msg("Document retention sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

func (s *Sweeper) sweep(window time.Duration) {
	cutoff := time.Now().Add(-window)
	deleted, err := s.documents.DeleteUploadedBefore(context.Background(), cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Retention sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Msg("Retention sweep removed expired uploads")
	}
}
