package bot

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"discord-scraper/config"
)

// historyScanner is the slice of the collector the scheduler drives.
type historyScanner interface {
	Scan(backfill bool) error
}

// scheduler owns the two pull paths: the cron-driven backfill and the
// fixed-interval polling loop.
type scheduler struct {
	scanner historyScanner
	cfg     config.Config
	log     zerolog.Logger
	cron    *cron.Cron

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	startupDone chan struct{}
	stopCh      chan struct{}
}

func newScheduler(scanner historyScanner, cfg config.Config, logger zerolog.Logger) *scheduler {
	return &scheduler{
		scanner:     scanner,
		cfg:         cfg,
		log:         logger,
		now:         time.Now,
		after:       time.After,
		startupDone: make(chan struct{}),
		stopCh:      make(chan struct{}),
	}
}

func (s *scheduler) start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.BackfillSchedule, s.runBackfill); err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", s.cfg.BackfillSchedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.cfg.BackfillSchedule).Msg("backfill scheduled")

	if s.cfg.ScanAtStartup {
		go func() {
			defer close(s.startupDone)
			s.runBackfill()
		}()
	} else {
		close(s.startupDone)
	}
	go s.pollLoop()
	return nil
}

// runBackfill repairs whatever the polling window missed during outages,
// resuming each channel from its sink-derived watermark.
func (s *scheduler) runBackfill() {
	s.log.Info().Msg("start collecting history")
	if err := s.scanner.Scan(true); err != nil {
		s.log.Error().Err(err).Msg("backfill scan aborted")
	}
}

// pollLoop re-reads the just-elapsed window forever. The next cycle is
// scheduled relative to the previous cycle's start, so a slow scan does not
// accumulate drift; the 1s floor keeps a pathologically slow scan from
// spinning hot.
func (s *scheduler) pollLoop() {
	s.log.Info().Msg("start collecting updates")
	for {
		start := s.now()
		if err := s.scanner.Scan(false); err != nil {
			s.log.Error().Err(err).Msg("polling scan aborted")
		}

		sleep := s.cfg.PollingInterval - s.now().Sub(start)
		if sleep < time.Second {
			sleep = time.Second
		}
		select {
		case <-s.stopCh:
			return
		case <-s.after(sleep):
		}
	}
}

// stop waits for any backfill still running, whether cron-fired or the
// startup scan, so the caller can close the index without a scan writing
// into it.
func (s *scheduler) stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	<-s.startupDone
	close(s.stopCh)
	s.log.Info().Msg("scheduler stopped")
}
