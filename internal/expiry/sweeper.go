package expiry

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// StatusStore is the slice of the story repository the sweeper needs.
type StatusStore interface {
	MarkExpiredPosts(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically flips post status from active to expired once past
// expires_at. It never deletes documents and visibility never depends on it:
// reads filter by time regardless, the flip only keeps stored state tidy.
type Sweeper struct {
	store     StatusStore
	interval  time.Duration
	logger    zerolog.Logger
	scheduler gocron.Scheduler
}

// NewSweeper builds a sweeper. An interval of 0 disables it.
func NewSweeper(store StatusStore, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Start schedules the sweep job. Safe to call with a disabled sweeper.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info().Msg("expiry sweep disabled")
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			taskCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()

			n, err := s.store.MarkExpiredPosts(taskCtx, time.Now())
			if err != nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
				return
			}
			if n > 0 {
				s.logger.Info().Int64("posts", n).Msg("marked posts expired")
			}
		}),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweep scheduled")
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
	}
}
