package cstm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

func TestInt32s_RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, math.MaxInt32, math.MinInt32}
	b := EncodeInt32s(values)
	require.Len(t, b, 4*len(values))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, b[8:12])

	got, err := DecodeInt32s(b, uint64(len(values)))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestFloat64s_BitExact(t *testing.T) {
	nanPayload := math.Float64frombits(0x7FF8000000000001)
	values := []float64{1.5, 2.25, 3.0, math.Inf(1), math.Inf(-1), math.Copysign(0, -1), nanPayload}

	got, err := DecodeFloat64s(EncodeFloat64s(values), uint64(len(values)))
	require.NoError(t, err)
	require.Len(t, got, len(values))
	for i := range values {
		assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(got[i]), "index %d", i)
	}
}

func TestFixedWidth_SizeMismatch(t *testing.T) {
	_, err := DecodeInt32s(make([]byte, 7), 2)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption))

	_, err = DecodeFloat64s(make([]byte, 16), 3)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption))

	_, err = DecodeInt32s(make([]byte, 8), math.MaxUint64)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption))
}

func TestEncodeStrings_OffsetIndex(t *testing.T) {
	b, err := EncodeStrings(StringColumn("name", "a", "", "bc").Strings)
	require.NoError(t, err)

	offsets, err := StringOffsets(b, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 1, 3}, offsets)
	assert.Equal(t, "abc", string(b[16:]))
}

func TestEncodeStrings_Nulls(t *testing.T) {
	values := []NullString{
		NewNullString("x"),
		{},
		NewNullString(""),
		{},
		NewNullString("yz"),
	}
	b, err := EncodeStrings(values)
	require.NoError(t, err)

	offsets, err := StringOffsets(b, uint64(len(values)))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, NullOffset, 1, NullOffset, 3}, offsets)

	got, err := DecodeStrings(b, uint64(len(values)))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestStrings_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		values []NullString
	}{
		{name: "empty", values: []NullString{}},
		{name: "single empty string", values: []NullString{NewNullString("")}},
		{name: "all null", values: []NullString{{}, {}, {}}},
		{name: "leading null", values: []NullString{{}, NewNullString("a")}},
		{name: "unicode", values: StringColumn("u", "héllo", "日本語", "🙂", "").Strings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeStrings(tt.values)
			require.NoError(t, err)

			got, err := DecodeStrings(b, uint64(len(tt.values)))
			require.NoError(t, err)
			assert.Equal(t, tt.values, got)
		})
	}
}

func TestDecodeStrings_Corruption(t *testing.T) {
	build := func(offsets []uint32, data string) []byte {
		b := make([]byte, 4*len(offsets))
		for i, o := range offsets {
			binary.LittleEndian.PutUint32(b[4*i:], o)
		}
		return append(b, data...)
	}

	tests := []struct {
		name string
		data []byte
		n    uint64
	}{
		{name: "first offset non-zero", data: build([]uint32{1, 2}, "ab"), n: 1},
		{name: "first offset sentinel", data: build([]uint32{NullOffset, 0}, ""), n: 1},
		{name: "decreasing", data: build([]uint32{0, 2, 1}, "ab"), n: 2},
		{name: "past data end", data: build([]uint32{0, 5}, "ab"), n: 1},
		{name: "trailing data", data: build([]uint32{0, 1}, "ab"), n: 1},
		{name: "index truncated", data: build([]uint32{0}, ""), n: 1},
		{name: "empty block", data: nil, n: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStrings(tt.data, tt.n)
			require.Error(t, err)
			assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption), "got %v", err)
		})
	}
}

func TestEncodeColumn_TypeMismatch(t *testing.T) {
	c := Column{Name: "bad", Type: Int32, Float64s: []float64{1}}
	_, err := EncodeColumn(c)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeValidation))

	_, err = EncodeColumn(Column{Name: "bad", Type: ColumnType(3)})
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeSchema))
}

func TestColumn_RoundTrip(t *testing.T) {
	columns := []Column{
		Int32Column("id", 1, 2, 3),
		Float64Column("score", 1.5, 2.25, 3.0),
		NullableStringColumn("name", []NullString{NewNullString("a"), {}, NewNullString("bc")}),
	}

	for _, c := range columns {
		t.Run(c.Name, func(t *testing.T) {
			b, err := EncodeColumn(c)
			require.NoError(t, err)

			got, err := DecodeColumn(c.Name, c.Type, b, uint64(c.Len()))
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
}

func TestDecodeColumn_Errors(t *testing.T) {
	_, err := DecodeColumn("x", ColumnType(5), nil, 0)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeFormat))

	_, err = DecodeColumn("x", Int32, []byte{1, 2, 3}, 1)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption))
}
