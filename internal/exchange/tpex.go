package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// SourceTPEx names the OTC-market source.
const SourceTPEx = "tpex"

// rocEraOffset converts a Gregorian year to a Minguo (ROC) year.
const rocEraOffset = 1911

type tpexResponse struct {
	Stat   string `json:"stat"`
	Date   string `json:"date"`
	Tables []struct {
		Title string  `json:"title"`
		Data  [][]any `json:"data"`
	} `json:"tables"`
}

// TPEx fetches the OTC-market P/E analysis table.
type TPEx struct {
	*session
	baseURL string
}

// NewTPEx creates a TPEx fetcher with its own session.
func NewTPEx(baseURL string, opts ...Option) *TPEx {
	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept", "application/json,text/html")
	headers.Set("Referer", "https://www.tpex.org.tw")

	return &TPEx{
		session: newSession(SourceTPEx, 20*time.Second, headers, opts...),
		baseURL: baseURL,
	}
}

// Source returns the source name.
func (t *TPEx) Source() string { return SourceTPEx }

// ROCDate formats day the way TPEx expects it, e.g. 2024-01-02 -> "113/01/02".
func ROCDate(day time.Time) string {
	return fmt.Sprintf("%03d/%02d/%02d", day.Year()-rocEraOffset, int(day.Month()), day.Day())
}

// FetchDate fetches every OTC security's ratios for day.
func (t *TPEx) FetchDate(ctx context.Context, day time.Time) Result {
	iso := day.Format(models.DateLayout)
	query := url.Values{
		"l": {"zh-tw"},
		"o": {"json"},
		"d": {ROCDate(day)},
	}

	return t.withRetry(ctx, iso, func(ctx context.Context) (Result, error) {
		var resp tpexResponse
		if err := t.getJSON(ctx, t.baseURL, query, &resp); err != nil {
			return Result{}, err
		}
		if len(resp.Tables) == 0 {
			return NoData(), nil
		}
		// first row is the column header
		rows := resp.Tables[0].Data
		if len(rows) <= 1 {
			return NoData(), nil
		}

		records, dropped := normalizeRows(rows[1:], tpexColumns, iso)
		if dropped > 0 {
			t.logger.Debug().Str("source", SourceTPEx).Str("date", iso).Int("dropped", dropped).Msg("dropped malformed rows")
		}
		if len(records) == 0 {
			return NoData(), nil
		}
		return Success(records), nil
	})
}
