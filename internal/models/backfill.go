package models

import "time"

// BackfillRequest asks for a business-day range to be fetched and stored
type BackfillRequest struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	UseLocalDB   bool   `json:"use_local_db"`
	SkipExisting bool   `json:"skip_existing"`
}

// BackfillResult is the outcome of one backfill run
type BackfillResult struct {
	RunID          string                `json:"run_id"`
	Fetched        int                   `json:"fetched"`
	TotalRecords   int                   `json:"total_records"`
	AvailableDates []string              `json:"available_dates"`
	DailyStats     map[string]DailyStats `json:"daily_stats"`
	WriteMode      WriteMode             `json:"write_mode"`
}

// BackfillEvent represents a Kafka event emitted after a backfill commits
type BackfillEvent struct {
	EventType      string                `json:"event_type"`
	RunID          string                `json:"run_id"`
	Start          string                `json:"start"`
	End            string                `json:"end"`
	UseLocalDB     bool                  `json:"use_local_db"`
	WriteMode      WriteMode             `json:"write_mode"`
	TotalRecords   int                   `json:"total_records"`
	AvailableDates []string              `json:"available_dates"`
	DailyStats     map[string]DailyStats `json:"daily_stats,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// BackfillCommand is a Kafka message requesting a backfill run
type BackfillCommand struct {
	EventType string `json:"event_type"`
	BackfillRequest
}
