package models

import "time"

// DateLayout is the ISO calendar date format used on every boundary.
const DateLayout = "2006-01-02"

// Record is one security's valuation snapshot for one trading date.
// (Code, Date) is the natural key; two records sharing it are revisions
// of the same fact.
type Record struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Date          string   `json:"date"`
	PERatio       *float64 `json:"pe_ratio"`
	DividendYield *float64 `json:"dividend_yield"`
	PBRatio       *float64 `json:"pb_ratio"`
}

// StoredRecord is a persisted Record with its bookkeeping timestamps
type StoredRecord struct {
	Record
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyStats summarizes where one date's records came from
type DailyStats struct {
	TWSECount      int `json:"twse_count"`
	TPExCount      int `json:"tpex_count"`
	TWSECompanies  int `json:"twse_companies"`
	TPExCompanies  int `json:"tpex_companies"`
	TotalCount     int `json:"total_count"`
	TotalCompanies int `json:"total_companies"`
}

// WriteMode is the conflict policy applied to existing (code, date) keys
type WriteMode string

const (
	WriteModeInsertOnly WriteMode = "insert_only"
	WriteModeUpsert     WriteMode = "upsert"
)

// WriteModeFor maps the skip_existing flag to a conflict policy.
func WriteModeFor(skipExisting bool) WriteMode {
	if skipExisting {
		return WriteModeInsertOnly
	}
	return WriteModeUpsert
}

// WriteSummary reports what a bulk write accepted
type WriteSummary struct {
	Written int      `json:"written"`
	Skipped int      `json:"skipped"`
	Dates   []string `json:"dates"`
}
