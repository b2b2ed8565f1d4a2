package spreadsheet

import (
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// cellText turns one cell into the text handed to a column parser. Numeric
// cells become their shortest decimal representation, booleans become
// TRUE/FALSE, and everything else uses the workbook's formatted value.
func cellText(typ excelize.CellType, raw string, formatted func() (string, error)) (string, error) {
	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	case excelize.CellTypeBool:
		switch strings.ToUpper(raw) {
		case "1", "TRUE":
			return "TRUE", nil
		case "0", "FALSE":
			return "FALSE", nil
		}
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return raw, nil
	}
	return formatted()
}

// isBlank reports whether every cell is empty or whitespace. A row without
// cells is blank.
func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
