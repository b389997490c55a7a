package exchange

import (
	"context"
	"time"

	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// Status tags the outcome of fetching one date from one source.
type Status int

const (
	// StatusSuccess means at least one row normalized.
	StatusSuccess Status = iota
	// StatusNoData means upstream answered but had nothing for the date.
	StatusNoData
	// StatusExhausted means every attempt failed.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoData:
		return "no_data"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is what a Fetcher returns for one date.
// Records is non-empty only for StatusSuccess; Err holds the last attempt
// error for StatusExhausted.
type Result struct {
	Status  Status
	Records []models.Record
	Err     error
}

// Success wraps records that normalized.
func Success(records []models.Record) Result {
	return Result{Status: StatusSuccess, Records: records}
}

// NoData is the explicit negative result.
func NoData() Result {
	return Result{Status: StatusNoData}
}

// Exhausted reports a date whose attempts all failed.
func Exhausted(err error) Result {
	return Result{Status: StatusExhausted, Err: err}
}

// Fetcher retrieves one source's valuation table for a single date.
// A Fetcher owns a network session and is not safe for concurrent runs.
type Fetcher interface {
	Source() string
	FetchDate(ctx context.Context, day time.Time) Result
	Close() error
}
