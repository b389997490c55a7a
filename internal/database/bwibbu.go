package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// writePageSize bounds the rows per INSERT statement
const writePageSize = 500

const insertBWIBBU = `
	INSERT INTO tw_stock_bwibbu (code, date, name, pe_ratio, dividend_yield, pb_ratio)
	VALUES `

const onConflictSkip = `
	ON CONFLICT (code, date) DO NOTHING`

const onConflictUpdate = `
	ON CONFLICT (code, date) DO UPDATE SET
		name = EXCLUDED.name,
		pe_ratio = EXCLUDED.pe_ratio,
		dividend_yield = EXCLUDED.dividend_yield,
		pb_ratio = EXCLUDED.pb_ratio,
		updated_at = CURRENT_TIMESTAMP`

type bwibbuRow struct {
	code string
	date string
	rec  models.Record
}

// WriteRecords persists records in one transaction under the (code, date)
// constraint. WriteModeInsertOnly leaves existing keys untouched;
// WriteModeUpsert overwrites everything but the key and created_at.
// Records whose date does not parse are dropped and counted as skipped.
// A key repeated within the batch is written once with its last occurrence.
func (db *DB) WriteRecords(ctx context.Context, records []models.Record, mode models.WriteMode) (*models.WriteSummary, error) {
	summary := &models.WriteSummary{Dates: []string{}}

	rows := make([]bwibbuRow, 0, len(records))
	index := make(map[[2]string]int, len(records))
	dates := make(map[string]struct{})

	for _, rec := range records {
		d, err := time.Parse(models.DateLayout, rec.Date)
		if err != nil {
			db.logger.Warn().Str("code", rec.Code).Str("date", rec.Date).Err(err).Msg("dropping record with unparseable date")
			summary.Skipped++
			continue
		}
		iso := d.Format(models.DateLayout)
		summary.Written++
		dates[iso] = struct{}{}

		key := [2]string{rec.Code, iso}
		if i, ok := index[key]; ok {
			rows[i].rec = rec
			continue
		}
		index[key] = len(rows)
		rows = append(rows, bwibbuRow{code: rec.Code, date: iso, rec: rec})
	}

	for d := range dates {
		summary.Dates = append(summary.Dates, d)
	}
	sort.Strings(summary.Dates)

	if len(rows) == 0 {
		return summary, nil
	}

	conflict := onConflictUpdate
	if mode == models.WriteModeInsertOnly {
		conflict = onConflictSkip
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for startIdx := 0; startIdx < len(rows); startIdx += writePageSize {
		page := rows[startIdx:min(startIdx+writePageSize, len(rows))]
		query, args := buildInsert(page, conflict)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to write bwibbu records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return summary, nil
}

func buildInsert(rows []bwibbuRow, conflict string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(insertBWIBBU)

	args := make([]any, 0, len(rows)*6)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, r.code, r.date, r.rec.Name, r.rec.PERatio, r.rec.DividendYield, r.rec.PBRatio)
	}
	sb.WriteString(conflict)
	return sb.String(), args
}

// GetRecord retrieves the stored record for a security on a date
func (db *DB) GetRecord(ctx context.Context, code, date string) (*models.StoredRecord, error) {
	query := `
		SELECT code, date, name, pe_ratio, dividend_yield, pb_ratio, created_at, updated_at
		FROM tw_stock_bwibbu
		WHERE code = $1 AND date = $2
	`
	var r models.StoredRecord
	var day time.Time
	var name sql.NullString
	var pe, dy, pb sql.NullFloat64

	err := db.conn.QueryRowContext(ctx, query, code, date).Scan(
		&r.Code, &day, &name, &pe, &dy, &pb, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bwibbu record not found for %s on %s", code, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bwibbu record: %w", err)
	}

	r.Date = day.Format(models.DateLayout)
	if name.Valid {
		r.Name = name.String
	}
	if pe.Valid {
		r.PERatio = &pe.Float64
	}
	if dy.Valid {
		r.DividendYield = &dy.Float64
	}
	if pb.Valid {
		r.PBRatio = &pb.Float64
	}
	return &r, nil
}

// AvailableDates returns the distinct stored dates, newest first. The range
// filter applies only when both start and end are given.
func (db *DB) AvailableDates(ctx context.Context, start, end string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if start != "" && end != "" {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT DISTINCT date FROM tw_stock_bwibbu
			WHERE date BETWEEN $1 AND $2
			ORDER BY date DESC
		`, start, end)
	} else {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT DISTINCT date FROM tw_stock_bwibbu
			ORDER BY date DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query available dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, day.Format(models.DateLayout))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read available dates: %w", err)
	}
	return dates, nil
}

// CountRecords returns the total number of stored rows
func (db *DB) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tw_stock_bwibbu`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bwibbu records: %w", err)
	}
	return n, nil
}
