package dbsource

import (
	"strings"

	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/model"
)

// columnType maps an information_schema data_type to a model column type.
// Unknown types are read as text.
func columnType(dataType string) model.ColumnType {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	switch dt {
	case "smallint", "integer", "int", "bigint", "tinyint", "mediumint", "smallserial", "serial", "bigserial", "year":
		return model.TypeInteger
	case "real", "double precision", "double", "float":
		return model.TypeReal
	case "numeric", "decimal":
		return model.TypeDecimal
	case "boolean", "bool":
		return model.TypeBoolean
	case "date":
		return model.TypeDate
	case "datetime":
		return model.TypeTime
	}
	if strings.HasPrefix(dt, "timestamp") {
		return model.TypeTime
	}
	return model.TypeText
}

// readKind picks how a column is pulled from the result before parsing.
func readKind(t model.ColumnType) database.ReadKind {
	if t == model.TypeText {
		return database.ReadText
	}
	return database.ReadString
}
