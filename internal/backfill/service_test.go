package backfill

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/database"
	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

func fixedSessions(twse, tpex *fakeFetcher) SessionFactory {
	return func(ctx context.Context) (exchange.Fetcher, exchange.Fetcher, error) {
		return twse, tpex, nil
	}
}

func staticStore(s Store) StoreProvider {
	return func(ctx context.Context, local bool) (Store, error) {
		return s, nil
	}
}

func TestServiceRunEndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "bwibbu.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	twse := newFakeFetcher("twse", map[string]exchange.Result{
		"2024-01-01": exchange.Success(records("twse", "2024-01-01", "2330", "2317")),
	})
	tpex := newFakeFetcher("tpex", map[string]exchange.Result{
		"2024-01-01": exchange.Success(records("tpex", "2024-01-01", "6488")),
		"2024-01-02": exchange.Success(records("tpex", "2024-01-02", "6488")),
	})

	var gotLocal bool
	stores := func(ctx context.Context, local bool) (Store, error) {
		gotLocal = local
		return db, nil
	}
	pub := &fakePublisher{}

	svc := NewService(fixedSessions(twse, tpex), stores, WithDayDelay(0), WithPublisher(pub))
	result, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-01", End: "2024-01-02", UseLocalDB: true})
	require.NoError(t, err)

	assert.True(t, gotLocal)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 4, result.TotalRecords)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, result.AvailableDates)
	assert.Equal(t, 1, result.DailyStats["2024-01-02"].TotalCount)
	assert.Equal(t, models.WriteModeUpsert, result.WriteMode)

	assert.True(t, twse.Closed())
	assert.True(t, tpex.Closed())
	require.Len(t, pub.events, 1)
	assert.Equal(t, result.RunID, pub.events[0].RunID)

	n, err := db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	dates, err := db.AvailableDates(ctx, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-01"}, dates)
}

func TestServiceRun(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects missing and malformed dates", func(t *testing.T) {
		svc := NewService(fixedSessions(newFakeFetcher("twse", nil), newFakeFetcher("tpex", nil)), staticStore(&memoryStore{}))

		for _, req := range []models.BackfillRequest{
			{Start: "", End: "2024-01-02"},
			{Start: "2024-01-01", End: ""},
			{Start: "2024/01/01", End: "2024-01-02"},
			{Start: "2024-01-01", End: "2024-13-40"},
		} {
			_, err := svc.Run(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest, "request %+v", req)
		}
	})

	t.Run("empty range is a successful no-data result", func(t *testing.T) {
		store := &memoryStore{}
		svc := NewService(fixedSessions(newFakeFetcher("twse", nil), newFakeFetcher("tpex", nil)), staticStore(store), WithDayDelay(0))

		result, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-01", End: "2024-01-02"})
		require.NoError(t, err)
		assert.Zero(t, result.Fetched)
		assert.Empty(t, result.AvailableDates)
		assert.Empty(t, store.written)
	})

	t.Run("skip existing selects insert-only", func(t *testing.T) {
		store := &memoryStore{}
		twse := newFakeFetcher("twse", map[string]exchange.Result{
			"2024-01-02": exchange.Success(records("twse", "2024-01-02", "2330")),
		})
		svc := NewService(fixedSessions(twse, newFakeFetcher("tpex", nil)), staticStore(store), WithDayDelay(0))

		result, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-02", End: "2024-01-02", SkipExisting: true})
		require.NoError(t, err)
		assert.Equal(t, models.WriteModeInsertOnly, result.WriteMode)
		assert.Equal(t, models.WriteModeInsertOnly, store.mode)
	})

	t.Run("store that cannot open fails before fetching", func(t *testing.T) {
		twse := newFakeFetcher("twse", nil)
		stores := func(ctx context.Context, local bool) (Store, error) {
			return nil, errors.New("dial tcp: connection refused")
		}
		svc := NewService(fixedSessions(twse, newFakeFetcher("tpex", nil)), stores)

		_, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-01", End: "2024-01-02"})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Empty(t, twse.Calls())
	})

	t.Run("write failure surfaces", func(t *testing.T) {
		store := &memoryStore{err: errors.New("disk full")}
		twse := newFakeFetcher("twse", map[string]exchange.Result{
			"2024-01-02": exchange.Success(records("twse", "2024-01-02", "2330")),
		})
		svc := NewService(fixedSessions(twse, newFakeFetcher("tpex", nil)), staticStore(store), WithDayDelay(0))

		_, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-02", End: "2024-01-02"})
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("publish failure is logged, not returned", func(t *testing.T) {
		var buf bytes.Buffer
		logger := logging.NewWithOutput(config.LogConfig{Level: "info", Format: "json"}, &buf)

		twse := newFakeFetcher("twse", map[string]exchange.Result{
			"2024-01-02": exchange.Success(records("twse", "2024-01-02", "2330")),
		})
		pub := &fakePublisher{err: errors.New("broker down")}
		svc := NewService(fixedSessions(twse, newFakeFetcher("tpex", nil)), staticStore(&memoryStore{}),
			WithDayDelay(0), WithPublisher(pub), WithLogger(logger))

		result, err := svc.Run(ctx, models.BackfillRequest{Start: "2024-01-02", End: "2024-01-02"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalRecords)
		assert.Contains(t, buf.String(), "broker down")
	})
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantStart string
		wantErr   bool
	}{
		{"padded", "2024-01-02", "2024-01-05", "2024-01-02", false},
		{"unpadded month and day", "2024-1-2", "2024-1-5", "2024-01-02", false},
		{"slashes", "2024/01/02", "2024-01-05", "", true},
		{"impossible date", "2024-02-30", "2024-03-01", "", true},
		{"missing end", "2024-01-02", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _, err := ParseRange(tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start.Format(models.DateLayout))
		})
	}
}

func TestServiceRunNormalizesRequestDates(t *testing.T) {
	twse := newFakeFetcher("twse", map[string]exchange.Result{
		"2024-01-02": exchange.Success(records("twse", "2024-01-02", "2330")),
	})
	pub := &publishedRequests{}
	svc := NewService(fixedSessions(twse, newFakeFetcher("tpex", nil)), staticStore(&memoryStore{}),
		WithDayDelay(0), WithPublisher(pub))

	result, err := svc.Run(context.Background(), models.BackfillRequest{Start: "2024-1-2", End: "2024-1-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalRecords)
	assert.Equal(t, []string{"2024-01-02"}, twse.Calls())

	require.Len(t, pub.requests, 1)
	assert.Equal(t, "2024-01-02", pub.requests[0].Start)
	assert.Equal(t, "2024-01-02", pub.requests[0].End)
}

type publishedRequests struct {
	requests []models.BackfillRequest
}

func (p *publishedRequests) PublishBackfillCompleted(ctx context.Context, req models.BackfillRequest, result *models.BackfillResult) error {
	p.requests = append(p.requests, req)
	return nil
}
