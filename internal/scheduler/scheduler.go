package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// Backfiller runs one backfill request
type Backfiller interface {
	Run(ctx context.Context, req models.BackfillRequest) (*models.BackfillResult, error)
}

// Scheduler runs the daily backfill on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	service  Backfiller
	location *time.Location
	useLocal bool
	now      func() time.Time
	ctx      context.Context
	logger   *log.Logger
}

// New creates a scheduler whose specs are interpreted in cfg.Timezone
func New(ctx context.Context, cfg config.ScheduleConfig, service Backfiller, logger *log.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithParser(config.CronParser), cron.WithLocation(loc)),
		service:  service,
		location: loc,
		useLocal: cfg.UseLocalDB,
		now:      time.Now,
		ctx:      ctx,
		logger:   logger,
	}, nil
}

// Register adds the daily backfill under a cron expression
func (s *Scheduler) Register(expr string) error {
	if _, err := s.cron.AddFunc(expr, s.dailyBackfill); err != nil {
		return fmt.Errorf("register daily backfill: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("timezone", s.location.String()).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running backfill to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow backfills the current exchange date immediately
func (s *Scheduler) RunNow() (*models.BackfillResult, error) {
	today := s.now().In(s.location).Format(models.DateLayout)
	req := models.BackfillRequest{
		Start:      today,
		End:        today,
		UseLocalDB: s.useLocal,
	}
	return s.service.Run(context.WithoutCancel(s.ctx), req)
}

func (s *Scheduler) dailyBackfill() {
	s.logger.Info().Msg("running scheduled backfill")
	result, err := s.RunNow()
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled backfill failed")
		return
	}
	s.logger.Info().
		Str("run_id", result.RunID).
		Int("fetched", result.Fetched).
		Int("total_records", result.TotalRecords).
		Msg("scheduled backfill finished")
}
