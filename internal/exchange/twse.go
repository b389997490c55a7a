package exchange

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// SourceTWSE names the listed-market source.
const SourceTWSE = "twse"

// twseNoMatch is the stat marker TWSE uses for "no matching data".
const twseNoMatch = "沒有符合"

type twseResponse struct {
	Stat string  `json:"stat"`
	Date string  `json:"date"`
	Data [][]any `json:"data"`
}

// TWSE fetches the listed-market BWIBBU_d report.
type TWSE struct {
	*session
	baseURL   string
	warmupURL string
}

// NewTWSE creates a TWSE fetcher with its own session.
func NewTWSE(baseURL, warmupURL string, opts ...Option) *TWSE {
	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept", "application/json,text/html")
	headers.Set("Referer", "https://www.twse.com.tw/zh/trading/historical/bwibbu-day.html")
	headers.Set("Accept-Language", "zh-TW,zh;q=0.9")

	return &TWSE{
		session:   newSession(SourceTWSE, 15*time.Second, headers, opts...),
		baseURL:   baseURL,
		warmupURL: warmupURL,
	}
}

// Source returns the source name.
func (t *TWSE) Source() string { return SourceTWSE }

// Warm loads the historical report page once so the session picks up the
// cookies TWSE expects. Failure is logged and otherwise ignored.
func (t *TWSE) Warm(ctx context.Context) {
	if t.warmupURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.warmupURL, nil)
	if err == nil {
		for k, v := range t.headers {
			req.Header[k] = v
		}
		var resp *http.Response
		resp, err = t.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}
	if err != nil {
		t.logger.Warn().Str("source", SourceTWSE).Err(err).Msg("session warm-up failed")
		return
	}
	t.logger.Debug().Str("source", SourceTWSE).Msg("session warmed up")
}

// FetchDate fetches every listed security's ratios for day.
func (t *TWSE) FetchDate(ctx context.Context, day time.Time) Result {
	ymd := day.Format("20060102")
	iso := day.Format(models.DateLayout)
	query := url.Values{
		"response":   {"json"},
		"date":       {ymd},
		"selectType": {"ALL"},
	}

	return t.withRetry(ctx, iso, func(ctx context.Context) (Result, error) {
		var resp twseResponse
		if err := t.getJSON(ctx, t.baseURL, query, &resp); err != nil {
			return Result{}, err
		}
		if strings.Contains(resp.Stat, twseNoMatch) || len(resp.Data) == 0 {
			return NoData(), nil
		}

		records, dropped := normalizeRows(resp.Data, twseColumns, iso)
		if dropped > 0 {
			t.logger.Debug().Str("source", SourceTWSE).Str("date", iso).Int("dropped", dropped).Msg("dropped malformed rows")
		}
		if len(records) == 0 {
			return NoData(), nil
		}
		return Success(records), nil
	})
}
