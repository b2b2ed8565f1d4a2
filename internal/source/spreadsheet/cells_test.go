package spreadsheet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCellText(t *testing.T) {
	formatted := func() (string, error) { return "formatted", nil }

	tests := []struct {
		name string
		typ  excelize.CellType
		raw  string
		want string
	}{
		{"integer number", excelize.CellTypeNumber, "42", "42"},
		{"trailing zero", excelize.CellTypeUnset, "20.0", "20"},
		{"fraction", excelize.CellTypeUnset, "10.5", "10.5"},
		{"exponent", excelize.CellTypeNumber, "1E3", "1000"},
		{"unset text falls back", excelize.CellTypeUnset, "abc", "formatted"},
		{"bool true", excelize.CellTypeBool, "1", "TRUE"},
		{"bool false", excelize.CellTypeBool, "0", "FALSE"},
		{"shared string kept", excelize.CellTypeSharedString, "007", "007"},
		{"inline string kept", excelize.CellTypeInlineString, " x ", " x "},
		{"formula string", excelize.CellTypeFormula, "ab", "formatted"},
		{"date", excelize.CellTypeDate, "2024-01-02T00:00:00Z", "formatted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cellText(tt.typ, tt.raw, formatted)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCellText_FormattedError(t *testing.T) {
	_, err := cellText(excelize.CellTypeFormula, "x", func() (string, error) {
		return "", errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(nil))
	assert.True(t, isBlank([]string{"", " ", "\t"}))
	assert.False(t, isBlank([]string{"", "x"}))
}
