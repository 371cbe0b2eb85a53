package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PresenceSweeper forces stale presence records offline
type PresenceSweeper interface {
	CleanupStalePresence(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	presence PresenceSweeper
	log      zerolog.Logger
}

func NewScheduler(presence PresenceSweeper, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		presence: presence,
		log:      log,
	}
}

func (s *Scheduler) Start(presenceSweepSpec string) error {
	if _, err := s.cron.AddFunc(presenceSweepSpec, s.sweepPresence); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) sweepPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := s.presence.CleanupStalePresence(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("presence sweep failed")
		return
	}
	if swept > 0 {
		s.log.Debug().Int("swept", swept).Msg("stale presence records forced offline")
	}
}
