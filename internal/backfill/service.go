package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// ErrInvalidRequest marks requests rejected before any fetch happens.
var ErrInvalidRequest = errors.New("invalid backfill request")

// ErrStoreUnavailable marks a store that could not be opened.
var ErrStoreUnavailable = errors.New("database connection failed")

// Store persists merged records under the (code, date) uniqueness constraint
type Store interface {
	WriteRecords(ctx context.Context, records []models.Record, mode models.WriteMode) (*models.WriteSummary, error)
}

// StoreProvider returns the remote store, or the local one when local is true.
type StoreProvider func(ctx context.Context, local bool) (Store, error)

// SessionFactory acquires a fresh pair of upstream sessions for one run.
// The caller closes both when the run ends.
type SessionFactory func(ctx context.Context) (twse, tpex exchange.Fetcher, err error)

// Publisher announces committed backfills
type Publisher interface {
	PublishBackfillCompleted(ctx context.Context, req models.BackfillRequest, result *models.BackfillResult) error
}

// Service runs a complete backfill: validate, fetch, write, announce.
// Concurrent calls are safe because each call acquires its own sessions.
type Service struct {
	sessions  SessionFactory
	stores    StoreProvider
	publisher Publisher
	dayDelay  time.Duration
	logger    *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets where completion events go.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithDayDelay sets the fixed pause between dates.
func WithDayDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.dayDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a backfill service.
func NewService(sessions SessionFactory, stores StoreProvider, opts ...ServiceOption) *Service {
	s := &Service{
		sessions: sessions,
		stores:   stores,
		dayDelay: 200 * time.Millisecond,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requestDateLayout accepts both 2024-01-02 and 2024-1-2
const requestDateLayout = "2006-1-2"

// ParseRange validates the request dates. Both are required and must be
// year-month-day; month and day may omit the leading zero. Start after end
// is valid and yields an empty range.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start and end are required", ErrInvalidRequest)
	}
	s, err := time.Parse(requestDateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD", ErrInvalidRequest)
	}
	e, err := time.Parse(requestDateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return s, e, nil
}

// Run executes one backfill. Fetch failures never surface; validation,
// store and cancellation errors do. A range with no data is a successful
// result with Fetched == 0.
func (s *Service) Run(ctx context.Context, req models.BackfillRequest) (*models.BackfillResult, error) {
	start, end, err := ParseRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	req.Start = start.Format(models.DateLayout)
	req.End = end.Format(models.DateLayout)

	result := &models.BackfillResult{
		RunID:          uuid.NewString(),
		AvailableDates: []string{},
		DailyStats:     map[string]models.DailyStats{},
		WriteMode:      models.WriteModeFor(req.SkipExisting),
	}

	store, err := s.stores(ctx, req.UseLocalDB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	twse, tpex, err := s.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open upstream sessions: %w", err)
	}
	defer twse.Close()
	defer tpex.Close()

	s.logger.Info().
		Str("run_id", result.RunID).
		Str("start", req.Start).
		Str("end", req.End).
		Bool("use_local_db", req.UseLocalDB).
		Str("write_mode", string(result.WriteMode)).
		Msg("backfill started")

	records, stats, err := NewOrchestrator(twse, tpex, s.dayDelay, s.logger).Run(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("backfill interrupted: %w", err)
	}
	result.DailyStats = stats
	result.Fetched = len(records)

	if len(records) == 0 {
		s.logger.Info().Str("run_id", result.RunID).Msg("no data in range")
		return result, nil
	}

	summary, err := store.WriteRecords(ctx, records, result.WriteMode)
	if err != nil {
		return nil, err
	}
	result.TotalRecords = summary.Written
	result.AvailableDates = summary.Dates

	s.logger.Info().
		Str("run_id", result.RunID).
		Int("fetched", result.Fetched).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Msg("backfill committed")

	if s.publisher != nil {
		if err := s.publisher.PublishBackfillCompleted(ctx, req, result); err != nil {
			s.logger.Warn().Str("run_id", result.RunID).Err(err).Msg("failed to publish backfill event")
		}
	}

	return result, nil
}
