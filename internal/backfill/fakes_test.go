package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// fakeFetcher answers from a per-date table; dates not in the table are NoData
type fakeFetcher struct {
	source  string
	results map[string]exchange.Result

	mu     sync.Mutex
	calls  []string
	closed bool
}

func newFakeFetcher(source string, results map[string]exchange.Result) *fakeFetcher {
	return &fakeFetcher{source: source, results: results}
}

func (f *fakeFetcher) Source() string { return f.source }

func (f *fakeFetcher) FetchDate(ctx context.Context, day time.Time) exchange.Result {
	iso := day.Format(models.DateLayout)
	f.mu.Lock()
	f.calls = append(f.calls, iso)
	f.mu.Unlock()

	if res, ok := f.results[iso]; ok {
		return res
	}
	return exchange.NoData()
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func records(source, date string, codes ...string) []models.Record {
	out := make([]models.Record, 0, len(codes))
	for _, c := range codes {
		v := 10.0
		out = append(out, models.Record{Code: c, Name: source + "-" + c, Date: date, PERatio: &v})
	}
	return out
}

// memoryStore records what the service wrote
type memoryStore struct {
	mu      sync.Mutex
	written []models.Record
	mode    models.WriteMode
	err     error
}

func (m *memoryStore) WriteRecords(ctx context.Context, recs []models.Record, mode models.WriteMode) (*models.WriteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.written = append(m.written, recs...)
	m.mode = mode

	dates := map[string]struct{}{}
	for _, r := range recs {
		dates[r.Date] = struct{}{}
	}
	summary := &models.WriteSummary{Written: len(recs)}
	for d := range dates {
		summary.Dates = append(summary.Dates, d)
	}
	return summary, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.BackfillResult
	err    error
}

func (p *fakePublisher) PublishBackfillCompleted(ctx context.Context, req models.BackfillRequest, result *models.BackfillResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, result)
	return p.err
}

var errUpstream = errors.New("upstream exploded")
