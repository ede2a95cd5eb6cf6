package cstm

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

const (
	// Magic identifies a CSTM file.
	Magic = "CSTM"
	// Version is the only format version this package reads or writes.
	Version uint8 = 1
	// PreambleSize is the length of magic, version, reserved bytes and the
	// header length field. The header body starts at this offset.
	PreambleSize = 20
	// MaxNameLength is the longest column name in UTF-8 bytes.
	MaxNameLength = 65535
)

// ColumnType is the on-disk type tag of a column.
type ColumnType uint8

const (
	Int32   ColumnType = 0
	Float64 ColumnType = 1
	String  ColumnType = 2
)

// String returns the lowercase type name.
func (t ColumnType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known type tag.
func (t ColumnType) Valid() bool {
	return t <= String
}

// ParseColumnType converts a type name into a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int32", "int":
		return Int32, nil
	case "float64", "float", "double":
		return Float64, nil
	case "string", "str":
		return String, nil
	default:
		return 0, cstmerrors.New(cstmerrors.ErrorTypeSchema, "unknown column type").
			WithDetail("type", s)
	}
}

// NullString is a string that may be null.
type NullString struct {
	String string
	Valid  bool
}

// NewNullString returns a non-null NullString.
func NewNullString(s string) NullString {
	return NullString{String: s, Valid: true}
}

// Column is a named, typed sequence of values. Exactly one of the value
// slices is used, selected by Type.
type Column struct {
	Name     string
	Type     ColumnType
	Int32s   []int32
	Float64s []float64
	Strings  []NullString
}

// Int32Column builds an Int32 column.
func Int32Column(name string, values ...int32) Column {
	return Column{Name: name, Type: Int32, Int32s: values}
}

// Float64Column builds a Float64 column.
func Float64Column(name string, values ...float64) Column {
	return Column{Name: name, Type: Float64, Float64s: values}
}

// StringColumn builds a String column with no nulls.
func StringColumn(name string, values ...string) Column {
	ns := make([]NullString, len(values))
	for i, v := range values {
		ns[i] = NewNullString(v)
	}
	return Column{Name: name, Type: String, Strings: ns}
}

// NullableStringColumn builds a String column that may contain nulls.
func NullableStringColumn(name string, values []NullString) Column {
	return Column{Name: name, Type: String, Strings: values}
}

func emptyColumn(name string, typ ColumnType) Column {
	c := Column{Name: name, Type: typ}
	switch typ {
	case Int32:
		c.Int32s = []int32{}
	case Float64:
		c.Float64s = []float64{}
	case String:
		c.Strings = []NullString{}
	}
	return c
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	switch c.Type {
	case Int32:
		return len(c.Int32s)
	case Float64:
		return len(c.Float64s)
	case String:
		return len(c.Strings)
	default:
		return 0
	}
}

// Value returns value i as int32, float64, string or nil for a null string.
func (c Column) Value(i int) interface{} {
	switch c.Type {
	case Int32:
		return c.Int32s[i]
	case Float64:
		return c.Float64s[i]
	case String:
		if !c.Strings[i].Valid {
			return nil
		}
		return c.Strings[i].String
	default:
		return nil
	}
}

// validate checks that the payload matches the declared type.
func (c Column) validate() error {
	if !c.Type.Valid() {
		return cstmerrors.New(cstmerrors.ErrorTypeSchema, "unknown column type").
			WithDetail("column", c.Name).
			WithDetail("type", uint8(c.Type))
	}

	var stray bool
	switch c.Type {
	case Int32:
		stray = c.Float64s != nil || c.Strings != nil
	case Float64:
		stray = c.Int32s != nil || c.Strings != nil
	case String:
		stray = c.Int32s != nil || c.Float64s != nil
	}
	if stray {
		return cstmerrors.New(cstmerrors.ErrorTypeValidation, "column values do not match declared type").
			WithDetail("column", c.Name).
			WithDetail("type", c.Type.String())
	}
	return nil
}

// Table is an ordered set of columns read from one file.
type Table struct {
	SchemaSignature uint32
	Columns         []Column
}

// NumRows returns the row count, taken from the first column.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
