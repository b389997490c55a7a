package exchange

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRatio(t *testing.T) {
	t.Run("missing tokens yield no value", func(t *testing.T) {
		for _, tok := range []string{"", "NaN", "null", "None", "--", "---", "N/A", "  --  "} {
			assert.Nil(t, ParseRatio(tok), "token %q", tok)
		}
	})

	t.Run("numbers parse exactly", func(t *testing.T) {
		for _, raw := range []string{"15.2", "0.5", "3.14", "0", "-2.75", "123456.789"} {
			want, err := strconv.ParseFloat(raw, 64)
			require.NoError(t, err)

			got := ParseRatio(raw)
			require.NotNil(t, got, "raw %q", raw)
			assert.Equal(t, want, *got, "raw %q", raw)
		}
	})

	t.Run("thousands separators are not numbers", func(t *testing.T) {
		assert.Nil(t, ParseRatio("1,234.56"))
	})

	t.Run("garbage yields no value", func(t *testing.T) {
		for _, raw := range []string{"abc", "12.3.4", "Inf", "nan", "1.2%"} {
			assert.Nil(t, ParseRatio(raw), "raw %q", raw)
		}
	})
}

func TestNormalizeRow(t *testing.T) {
	t.Run("twse layout", func(t *testing.T) {
		row := []any{"2330", "台積電", "593.00", "2.36", "112", "15.75", "4.35", "112/3"}

		rec, err := NormalizeRow(row, twseColumns, "2024-01-02")
		require.NoError(t, err)

		assert.Equal(t, "2330", rec.Code)
		assert.Equal(t, "台積電", rec.Name)
		assert.Equal(t, "2024-01-02", rec.Date)
		require.NotNil(t, rec.DividendYield)
		assert.Equal(t, 2.36, *rec.DividendYield)
		require.NotNil(t, rec.PERatio)
		assert.Equal(t, 15.75, *rec.PERatio)
		require.NotNil(t, rec.PBRatio)
		assert.Equal(t, 4.35, *rec.PBRatio)
	})

	t.Run("tpex layout", func(t *testing.T) {
		row := []any{"6488", "環球晶", "18.20", "12.00", "112", "2.41", "3.10", "112/3"}

		rec, err := NormalizeRow(row, tpexColumns, "2024-01-02")
		require.NoError(t, err)

		require.NotNil(t, rec.PERatio)
		assert.Equal(t, 18.20, *rec.PERatio)
		require.NotNil(t, rec.DividendYield)
		assert.Equal(t, 2.41, *rec.DividendYield)
		require.NotNil(t, rec.PBRatio)
		assert.Equal(t, 3.10, *rec.PBRatio)
	})

	t.Run("short rows and nulls map to no value", func(t *testing.T) {
		row := []any{" 1101 ", nil, "-", "--"}

		rec, err := NormalizeRow(row, twseColumns, "2024-01-02")
		require.NoError(t, err)

		assert.Equal(t, "1101", rec.Code)
		assert.Equal(t, "", rec.Name)
		assert.Nil(t, rec.DividendYield)
		assert.Nil(t, rec.PERatio)
		assert.Nil(t, rec.PBRatio)
	})

	t.Run("numeric cells are accepted", func(t *testing.T) {
		row := []any{"1101", "台泥", nil, 4.5, nil, 12.0, 1.1}

		rec, err := NormalizeRow(row, twseColumns, "2024-01-02")
		require.NoError(t, err)
		require.NotNil(t, rec.PERatio)
		assert.Equal(t, 12.0, *rec.PERatio)
	})

	t.Run("empty code is malformed", func(t *testing.T) {
		_, err := NormalizeRow([]any{"", "x"}, twseColumns, "2024-01-02")
		assert.ErrorIs(t, err, errEmptyCode)

		_, err = NormalizeRow([]any{}, twseColumns, "2024-01-02")
		assert.ErrorIs(t, err, errEmptyCode)
	})

	t.Run("unexpected cell types are malformed", func(t *testing.T) {
		_, err := NormalizeRow([]any{"1101", map[string]any{"a": 1}}, twseColumns, "2024-01-02")
		assert.Error(t, err)
	})
}

func TestNormalizeRowsDropsIndividually(t *testing.T) {
	rows := [][]any{
		{"2330", "台積電", "", "2.36", "", "15.75", "4.35"},
		{nil, "broken"},
		{"2317", "鴻海", "", "N/A", "", "10.1", "1.2"},
	}

	records, dropped := normalizeRows(rows, twseColumns, "2024-01-02")

	assert.Equal(t, 1, dropped)
	require.Len(t, records, 2)
	assert.Equal(t, "2330", records[0].Code)
	assert.Equal(t, "2317", records[1].Code)
	assert.Nil(t, records[1].DividendYield)
}
