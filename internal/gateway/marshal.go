package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

// ColumnType is the closed set of column decodings the marshaler knows.
type ColumnType int

const (
	Unknown ColumnType = iota
	SmallInt
	Int
	BigInt
	Text
	Bool
	Real
	Double
	Decimal
	Timestamp
	TimestampTZ
	Date
	Time
	TimeTZ
	UUID
	Document
	// Dynamic decodes by the driver value's Go type; only SQLite uses it.
	Dynamic
)

var columnTypeNames = [...]string{
	Unknown:     "unknown",
	SmallInt:    "smallint",
	Int:         "int",
	BigInt:      "bigint",
	Text:        "text",
	Bool:        "bool",
	Real:        "real",
	Double:      "double",
	Decimal:     "decimal",
	Timestamp:   "timestamp",
	TimestampTZ: "timestamptz",
	Date:        "date",
	Time:        "time",
	TimeTZ:      "timetz",
	UUID:        "uuid",
	Document:    "document",
	Dynamic:     "dynamic",
}

func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return "unknown"
}

const (
	timestampLayout   = "2006-01-02 15:04:05.999999999"
	timestampTZLayout = time.RFC3339Nano
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04:05.999999999"
	timeTZLayout      = "15:04:05.999999999Z07:00"
)

// decodeFunc converts a raw driver value. ok=false means the value could not
// be decoded and becomes JSON null.
type decodeFunc func(v any) (any, bool)

var decoders = map[ColumnType]decodeFunc{
	SmallInt:    decodeInt,
	Int:         decodeInt,
	BigInt:      decodeInt,
	Text:        decodeText,
	Bool:        decodeBool,
	Real:        decodeFloat,
	Double:      decodeFloat,
	Decimal:     decodeDecimal,
	Timestamp:   decodeTime(timestampLayout, false),
	TimestampTZ: decodeTime(timestampTZLayout, false),
	Date:        decodeTime(dateLayout, false),
	Time:        decodeTime(timeLayout, true),
	TimeTZ:      decodeTime(timeTZLayout, true),
	UUID:        decodeUUID,
	Document:    decodeDocument,
	Dynamic:     decodeDynamic,
}

// Column describes one result column.
type Column struct {
	Name string
	// DatabaseType is the driver-reported type name, as given.
	DatabaseType string
}

// Row is one result row; Values is parallel to Columns.
type Row struct {
	Columns []Column
	Values  []any
}

// Marshaler converts rows to JSON-ready maps using a dialect's type table.
type Marshaler struct {
	Dialect Dialect
}

// NormalizeTypeName upper-cases a driver type name and drops any
// precision suffix, so "numeric(10,2)" becomes "NUMERIC".
func NormalizeTypeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

// ColumnType resolves a column's declared type through the dialect.
func (m Marshaler) ColumnType(c Column) ColumnType {
	return m.Dialect.ColumnType(NormalizeTypeName(c.DatabaseType))
}

// RowToObject decodes every column of row. Null values, decode failures and
// unknown types all become nil. It never fails.
func (m Marshaler) RowToObject(row Row) map[string]any {
	obj := make(map[string]any, len(row.Columns))
	for i, col := range row.Columns {
		var raw any
		if i < len(row.Values) {
			raw = row.Values[i]
		}
		obj[col.Name] = m.decode(m.ColumnType(col), raw)
	}
	return obj
}

// RowsToArray decodes rows; the result is never nil so it encodes as [].
func (m Marshaler) RowsToArray(rows []Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.RowToObject(r))
	}
	return out
}

func (m Marshaler) decode(ct ColumnType, raw any) any {
	if raw == nil {
		return nil
	}
	dec, ok := decoders[ct]
	if !ok {
		return nil
	}
	v, ok := dec(raw)
	if !ok {
		return nil
	}
	return v
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func decodeInt(v any) (any, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case int:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return x, true
	case *big.Int:
		if x.IsInt64() {
			return x.Int64(), true
		}
		return nil, false
	}
	if s, ok := asString(v); ok {
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		// UNSIGNED BIGINT above MaxInt64
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, true
		}
	}
	return nil, false
}

func decodeText(v any) (any, bool) {
	if s, ok := asString(v); ok {
		return s, true
	}
	return nil, false
}

func decodeBool(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	}
	if s, ok := asString(v); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "t", "true", "1", "y", "yes", "on":
			return true, true
		case "f", "false", "0", "n", "no", "off":
			return false, true
		}
	}
	return nil, false
}

// decodeFloat rejects NaN and infinities, which have no JSON form.
func decodeFloat(v any) (any, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		s, ok := asString(v)
		if !ok {
			return nil, false
		}
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

// decodeDecimal keeps arbitrary-precision values as text.
func decodeDecimal(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case fmt.Stringer:
		return x.String(), true
	}
	return nil, false
}

func decodeTime(layout string, clockOnly bool) decodeFunc {
	return func(v any) (any, bool) {
		if t, ok := v.(time.Time); ok {
			return t.Format(layout), true
		}
		s, ok := asString(v)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if clockOnly {
			// Bare times of day are not understood by dateparse.
			for _, l := range []string{timeLayout, timeTZLayout, "15:04:05-07"} {
				if t, err := time.Parse(l, s); err == nil {
					return t.Format(layout), true
				}
			}
			return nil, false
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, false
		}
		return t.Format(layout), true
	}
}

func decodeUUID(v any) (any, bool) {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String(), true
	case uuid.UUID:
		return x.String(), true
	case []byte:
		if len(x) == 16 {
			u, err := uuid.FromBytes(x)
			return u.String(), err == nil
		}
		u, err := uuid.ParseBytes(x)
		return u.String(), err == nil
	case string:
		u, err := uuid.Parse(x)
		return u.String(), err == nil
	case fmt.Stringer:
		u, err := uuid.Parse(x.String())
		return u.String(), err == nil
	}
	return nil, false
}

// decodeDocument re-parses JSON text; invalid documents become null.
func decodeDocument(v any) (any, bool) {
	switch x := v.(type) {
	case map[string]any, []any:
		return x, true
	}
	s, ok := asString(v)
	if !ok {
		return nil, false
	}
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func decodeDynamic(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return decodeFloat(x)
	case int64, bool, string:
		return x, true
	case []byte:
		return string(x), true
	case time.Time:
		return x.Format(timestampLayout), true
	}
	return nil, false
}
