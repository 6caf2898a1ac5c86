package gateway

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTypeName(t *testing.T) {
	assert.Equal(t, "NUMERIC", NormalizeTypeName("numeric(10,2)"))
	assert.Equal(t, "VARCHAR", NormalizeTypeName(" varchar (255)"))
	assert.Equal(t, "INT4", NormalizeTypeName("INT4"))
	assert.Equal(t, "", NormalizeTypeName(""))
}

func TestMarshaler_PostgresTypes(t *testing.T) {
	m := Marshaler{Dialect: &PostgresDialect{}}
	ts := time.Date(2024, 3, 9, 14, 30, 5, 123000000, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name   string
		dbType string
		raw    any
		want   any
	}{
		{"int2", "INT2", int64(7), int64(7)},
		{"int4", "INT4", int64(-42), int64(-42)},
		{"int8", "INT8", int64(math.MaxInt64), int64(math.MaxInt64)},
		{"text", "TEXT", "hello", "hello"},
		{"varchar bytes", "VARCHAR", []byte("bytes"), "bytes"},
		{"bpchar", "BPCHAR", "padded  ", "padded  "},
		{"name", "NAME", "pg_class", "pg_class"},
		{"bool", "BOOL", true, true},
		{"float4", "FLOAT4", float64(1.5), 1.5},
		{"float8", "FLOAT8", float64(2.25), 2.25},
		{"float8 NaN", "FLOAT8", math.NaN(), nil},
		{"float8 Inf", "FLOAT8", math.Inf(1), nil},
		{"numeric as text", "NUMERIC", []byte("12345678901234567890.000001"), "12345678901234567890.000001"},
		{"timestamp", "TIMESTAMP", ts, "2024-03-09 14:30:05.123"},
		{"timestamptz", "TIMESTAMPTZ", ts, "2024-03-09T14:30:05.123Z"},
		{"date", "DATE", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15"},
		{"date text", "DATE", "2024-01-15", "2024-01-15"},
		{"time text", "TIME", []byte("08:15:00"), "08:15:00"},
		{"uuid text", "UUID", []byte(id.String()), id.String()},
		{"uuid bytes", "UUID", id[:], id.String()},
		{"uuid invalid", "UUID", "not-a-uuid", nil},
		{"jsonb", "JSONB", []byte(`{"a":[1,2]}`), map[string]any{"a": []any{float64(1), float64(2)}}},
		{"json invalid", "JSON", []byte(`{broken`), nil},
		{"unknown type", "BYTEA", []byte{0x01}, nil},
		{"inet unsupported", "INET", "10.0.0.1", nil},
		{"null", "INT4", nil, nil},
		{"type mismatch", "INT4", true, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := Row{
				Columns: []Column{{Name: "v", DatabaseType: tc.dbType}},
				Values:  []any{tc.raw},
			}
			obj := m.RowToObject(row)
			require.Contains(t, obj, "v")
			assert.Equal(t, tc.want, obj["v"])
		})
	}
}

func TestMarshaler_DecodesBigIntegers(t *testing.T) {
	v, ok := decodeInt(big.NewInt(99))
	require.True(t, ok)
	assert.Equal(t, int64(99), v)

	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	_, ok = decodeInt(huge)
	assert.False(t, ok)
}

func TestMarshaler_UnsignedIntegers(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		dbType  string
		raw     any
		want    any
	}{
		{"duckdb ubigint max", &DuckDBDialect{}, "UBIGINT", uint64(math.MaxUint64), "18446744073709551615"},
		{"duckdb ubigint small", &DuckDBDialect{}, "UBIGINT", uint64(7), "7"},
		{"mysql unsigned bigint text", &MySQLDialect{}, "UNSIGNED BIGINT", []byte("18446744073709551615"), uint64(math.MaxUint64)},
		{"mysql unsigned bigint in range", &MySQLDialect{}, "UNSIGNED BIGINT", []byte("42"), int64(42)},
		{"mysql unsigned bigint native", &MySQLDialect{}, "UNSIGNED BIGINT", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"mysql unsigned overflow", &MySQLDialect{}, "UNSIGNED BIGINT", []byte("18446744073709551616"), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := Marshaler{Dialect: tc.dialect}
			row := Row{
				Columns: []Column{{Name: "u", DatabaseType: tc.dbType}},
				Values:  []any{tc.raw},
			}
			assert.Equal(t, tc.want, m.RowToObject(row)["u"])
		})
	}
}

func TestMarshaler_DecodesLooseTimestamps(t *testing.T) {
	m := Marshaler{Dialect: &MySQLDialect{}}
	row := Row{
		Columns: []Column{{Name: "at", DatabaseType: "DATETIME"}},
		Values:  []any{[]byte("2024-03-09 14:30:05")},
	}
	assert.Equal(t, "2024-03-09 14:30:05", m.RowToObject(row)["at"])
}

func TestMarshaler_SQLiteDynamic(t *testing.T) {
	m := Marshaler{Dialect: &SQLiteDialect{}}
	row := Row{
		Columns: []Column{
			{Name: "n", DatabaseType: ""},
			{Name: "f", DatabaseType: ""},
			{Name: "s", DatabaseType: ""},
			{Name: "b", DatabaseType: ""},
			{Name: "blob", DatabaseType: "BLOB"},
		},
		Values: []any{int64(3), 0.5, "x", []byte("raw"), []byte{0xff}},
	}
	obj := m.RowToObject(row)
	assert.Equal(t, int64(3), obj["n"])
	assert.Equal(t, 0.5, obj["f"])
	assert.Equal(t, "x", obj["s"])
	assert.Equal(t, "raw", obj["b"])
	assert.Nil(t, obj["blob"])
}

func TestMarshaler_RowsToArray(t *testing.T) {
	m := Marshaler{Dialect: &PostgresDialect{}}

	t.Run("empty result encodes as empty array", func(t *testing.T) {
		out := m.RowsToArray(nil)
		require.NotNil(t, out)
		b, err := json.Marshal(out)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(b))
	})

	t.Run("keys match column names", func(t *testing.T) {
		cols := []Column{{Name: "id", DatabaseType: "INT4"}, {Name: "tags", DatabaseType: "_TEXT"}}
		out := m.RowsToArray([]Row{
			{Columns: cols, Values: []any{int64(1), []byte("{a,b}")}},
			{Columns: cols, Values: []any{int64(2), nil}},
		})
		require.Len(t, out, 2)
		assert.Equal(t, map[string]any{"id": int64(1), "tags": nil}, out[0])
		assert.Equal(t, map[string]any{"id": int64(2), "tags": nil}, out[1])
	})

	t.Run("output always encodes", func(t *testing.T) {
		cols := []Column{{Name: "x", DatabaseType: "FLOAT8"}}
		out := m.RowsToArray([]Row{{Columns: cols, Values: []any{math.NaN()}}})
		_, err := json.Marshal(out)
		assert.NoError(t, err)
	})
}

func TestColumnTypeString(t *testing.T) {
	assert.Equal(t, "timestamptz", TimestampTZ.String())
	assert.Equal(t, "unknown", ColumnType(999).String())
}
