package cstm

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaSignature(t *testing.T) {
	cols := scenarioColumns()
	want := crc32.ChecksumIEEE([]byte(`[{"name":"id","type":"int32"},{"name":"score","type":"float64"},{"name":"name","type":"string"}]`))
	assert.Equal(t, want, SchemaSignature(cols))
}

func TestSchemaSignature_IgnoresValues(t *testing.T) {
	a := []Column{Int32Column("x", 1, 2), StringColumn("y", "a", "b")}
	b := []Column{Int32Column("x"), StringColumn("y")}
	assert.Equal(t, SchemaSignature(a), SchemaSignature(b))
}

func TestSchemaSignature_OrderAndTypeMatter(t *testing.T) {
	base := SchemaSignature([]Column{Int32Column("x"), Float64Column("y")})
	assert.NotEqual(t, base, SchemaSignature([]Column{Float64Column("y"), Int32Column("x")}))
	assert.NotEqual(t, base, SchemaSignature([]Column{Float64Column("x"), Float64Column("y")}))
}

func TestHeaderSignature_MatchesColumns(t *testing.T) {
	_, h := writeBuffer(t, scenarioColumns())
	assert.Equal(t, SchemaSignature(scenarioColumns()), HeaderSignature(h))
}

func TestParseColumnType(t *testing.T) {
	for _, typ := range []ColumnType{Int32, Float64, String} {
		got, err := ParseColumnType(typ.String())
		assert.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseColumnType("decimal")
	assert.Error(t, err)
	assert.Equal(t, "unknown(7)", ColumnType(7).String())
}

func TestSchemaSignature_NoHTMLEscaping(t *testing.T) {
	want := crc32.ChecksumIEEE([]byte(`[{"name":"a<b>&c","type":"string"}]`))
	assert.Equal(t, want, SchemaSignature([]Column{StringColumn("a<b>&c")}))
}
