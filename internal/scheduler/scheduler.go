package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Second

// RefreshFunc reloads one cached resource.
type RefreshFunc func(ctx context.Context) error

// Scheduler periodically refreshes the summary cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresh   RefreshFunc
	interval  time.Duration
	logger    log.FieldLogger
}

// New creates a new Scheduler.
func New(interval time.Duration, refresh RefreshFunc, logger log.FieldLogger) *Scheduler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresh:   refresh,
		interval:  interval,
		logger:    logger.WithField("component", "scheduler"),
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first run happens immediately so the cache is warm before traffic arrives.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("refresh interval not set; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("summary refresh failed")
		return
	}
	s.logger.WithField("elapsed", time.Since(start)).Debug("summary refresh completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
