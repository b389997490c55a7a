package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// missingTokens are cell values upstream uses for "no value".
var missingTokens = map[string]struct{}{
	"":     {},
	"NaN":  {},
	"null": {},
	"None": {},
	"--":   {},
	"---":  {},
	"N/A":  {},
}

// ParseRatio coerces a raw cell into an optional float. Missing tokens and
// anything that does not parse as a number yield nil, never zero.
func ParseRatio(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if _, ok := missingTokens[s]; ok {
		return nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// ColumnMap locates the fields of a record within a source row
type ColumnMap struct {
	Code          int
	Name          int
	PERatio       int
	DividendYield int
	PBRatio       int
}

var (
	// TWSE: 證券代號, 證券名稱, 收盤價, 殖利率(%), 股利年度, 本益比, 股價淨值比, 財報年/季
	twseColumns = ColumnMap{Code: 0, Name: 1, DividendYield: 3, PERatio: 5, PBRatio: 6}
	// TPEx: 股票代號, 名稱, 本益比, 每股股利, 股利年度, 殖利率(%), 股價淨值比, 財報年/季
	tpexColumns = ColumnMap{Code: 0, Name: 1, PERatio: 2, DividendYield: 5, PBRatio: 6}
)

var errEmptyCode = errors.New("row has no security code")

// NormalizeRow converts one decoded JSON row into a Record for date.
// Cells past the end of the row count as missing.
func NormalizeRow(row []any, cols ColumnMap, date string) (models.Record, error) {
	code, err := cellText(row, cols.Code)
	if err != nil {
		return models.Record{}, err
	}
	if code == "" {
		return models.Record{}, errEmptyCode
	}

	name, err := cellText(row, cols.Name)
	if err != nil {
		return models.Record{}, err
	}
	pe, err := cellText(row, cols.PERatio)
	if err != nil {
		return models.Record{}, err
	}
	dy, err := cellText(row, cols.DividendYield)
	if err != nil {
		return models.Record{}, err
	}
	pb, err := cellText(row, cols.PBRatio)
	if err != nil {
		return models.Record{}, err
	}

	return models.Record{
		Code:          code,
		Name:          name,
		Date:          date,
		PERatio:       ParseRatio(pe),
		DividendYield: ParseRatio(dy),
		PBRatio:       ParseRatio(pb),
	}, nil
}

func cellText(row []any, i int) (string, error) {
	if i < 0 || i >= len(row) {
		return "", nil
	}
	switch v := row[i].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("column %d: unexpected cell type %T", i, v)
	}
}

// normalizeRows keeps the rows that normalize and reports how many were dropped.
func normalizeRows(rows [][]any, cols ColumnMap, date string) ([]models.Record, int) {
	records := make([]models.Record, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		rec, err := NormalizeRow(row, cols, date)
		if err != nil {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}
