package backfill

import (
	"context"
	"time"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// Orchestrator walks a date range and queries both exchanges for each
// business day, one date at a time.
type Orchestrator struct {
	twse     exchange.Fetcher
	tpex     exchange.Fetcher
	dayDelay time.Duration
	logger   *log.Logger
}

// NewOrchestrator creates an orchestrator over the two sessions of one run.
func NewOrchestrator(twse, tpex exchange.Fetcher, dayDelay time.Duration, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		twse:     twse,
		tpex:     tpex,
		dayDelay: dayDelay,
		logger:   logger,
	}
}

// Run fetches every business day in [start, end], newest first, and returns
// the merged records with per-date stats keyed by ISO date. A failed source
// on one date contributes nothing for that date and does not stop the walk.
// Only context cancellation ends the walk early; what was gathered so far is
// returned alongside the error.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) ([]models.Record, map[string]models.DailyStats, error) {
	var records []models.Record
	stats := make(map[string]models.DailyStats)

	for day := range BusinessDays(start, end) {
		if err := ctx.Err(); err != nil {
			return records, stats, err
		}
		iso := day.Format(models.DateLayout)

		twse := o.fetch(ctx, o.twse, day, iso)
		tpex := o.fetch(ctx, o.tpex, day, iso)

		records = append(records, twse...)
		records = append(records, tpex...)

		st := ComputeDailyStats(twse, tpex)
		stats[iso] = st

		o.logger.Info().
			Str("date", iso).
			Int("twse_count", st.TWSECount).
			Int("twse_companies", st.TWSECompanies).
			Int("tpex_count", st.TPExCount).
			Int("tpex_companies", st.TPExCompanies).
			Int("total_count", st.TotalCount).
			Int("total_companies", st.TotalCompanies).
			Msg("day fetched")

		if err := exchange.Sleep(ctx, o.dayDelay); err != nil {
			return records, stats, err
		}
	}

	return records, stats, nil
}

func (o *Orchestrator) fetch(ctx context.Context, f exchange.Fetcher, day time.Time, iso string) []models.Record {
	res := f.FetchDate(ctx, day)
	switch res.Status {
	case exchange.StatusSuccess:
		return res.Records
	case exchange.StatusNoData:
		o.logger.Debug().Str("source", f.Source()).Str("date", iso).Msg("no data")
	case exchange.StatusExhausted:
		o.logger.Warn().Str("source", f.Source()).Str("date", iso).Err(res.Err).Msg("giving up on date")
	}
	return nil
}
