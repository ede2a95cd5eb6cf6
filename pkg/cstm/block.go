package cstm

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// NullOffset marks a null entry in a String block's offset index. For a null
// entry i, O[i+1] holds NullOffset and the entry occupies no data bytes.
const NullOffset uint32 = 0xFFFFFFFF

// maxStringData is the largest data region an offset index can address.
const maxStringData = uint64(NullOffset) - 1

// EncodeInt32s packs values as little-endian int32s.
func EncodeInt32s(values []int32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return buf
}

// DecodeInt32s unpacks n int32s. The buffer must be exactly 4*n bytes.
func DecodeInt32s(b []byte, n uint64) ([]int32, error) {
	if err := checkFixedWidth(b, n, 4); err != nil {
		return nil, err
	}
	values := make([]int32, n)
	for i := range values {
		values[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return values, nil
}

// EncodeFloat64s packs values as little-endian IEEE-754 doubles. NaN
// payloads and signed zeros are preserved bit for bit.
func EncodeFloat64s(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64s unpacks n doubles. The buffer must be exactly 8*n bytes.
func DecodeFloat64s(b []byte, n uint64) ([]float64, error) {
	if err := checkFixedWidth(b, n, 8); err != nil {
		return nil, err
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return values, nil
}

func checkFixedWidth(b []byte, n uint64, width uint64) error {
	if n > uint64(len(b))/width || uint64(len(b)) != n*width {
		return cstmerrors.New(cstmerrors.ErrorTypeCorruption, "block size does not match value count").
			WithDetail("block_size", len(b)).
			WithDetail("num_values", n).
			WithDetail("width", width)
	}
	return nil
}

// EncodeStrings writes n+1 uint32 offsets followed by the concatenated
// UTF-8 bytes of the non-null entries.
func EncodeStrings(values []NullString) ([]byte, error) {
	var dataLen uint64
	for _, v := range values {
		if v.Valid {
			dataLen += uint64(len(v.String))
		}
	}
	if dataLen > maxStringData {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeValidation, "string column data exceeds offset range").
			WithDetail("data_size", dataLen)
	}

	indexLen := 4 * (len(values) + 1)
	buf := make([]byte, indexLen, uint64(indexLen)+dataLen)
	var end uint32
	for i, v := range values {
		slot := buf[4*(i+1):]
		if !v.Valid {
			binary.LittleEndian.PutUint32(slot, NullOffset)
			continue
		}
		end += uint32(len(v.String))
		binary.LittleEndian.PutUint32(slot, end)
		buf = append(buf, v.String...)
	}
	return buf, nil
}

// StringOffsets returns the raw offset index of a String block holding n
// entries, without validating it.
func StringOffsets(b []byte, n uint64) ([]uint32, error) {
	if n >= uint64(len(b))/4 {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeCorruption, "string block shorter than offset index").
			WithDetail("block_size", len(b)).
			WithDetail("num_values", n)
	}
	offsets := make([]uint32, n+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return offsets, nil
}

// DecodeStrings decodes a String block holding n entries. Offsets must start
// at zero, never decrease and end at the data length.
func DecodeStrings(b []byte, n uint64) ([]NullString, error) {
	offsets, err := StringOffsets(b, n)
	if err != nil {
		return nil, err
	}
	data := b[4*(n+1):]
	dataLen := uint64(len(data))

	if offsets[0] != 0 {
		return nil, corruptOffset("first offset is not zero", 0, offsets[0])
	}

	values := make([]NullString, n)
	var start uint32
	for i := range values {
		end := offsets[i+1]
		if end == NullOffset {
			continue
		}
		if end < start {
			return nil, corruptOffset("offsets decrease", i+1, end)
		}
		if uint64(end) > dataLen {
			return nil, corruptOffset("offset past end of data", i+1, end)
		}
		values[i] = NullString{String: string(data[start:end]), Valid: true}
		start = end
	}
	if uint64(start) != dataLen {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeCorruption, "string data has trailing bytes").
			WithDetail("data_size", dataLen).
			WithDetail("last_offset", start)
	}
	return values, nil
}

func corruptOffset(msg string, index int, value uint32) *cstmerrors.Error {
	return cstmerrors.New(cstmerrors.ErrorTypeCorruption, msg).
		WithDetail("offset_index", index).
		WithDetail("offset", value)
}

// EncodeColumn returns the uncompressed block for c.
func EncodeColumn(c Column) ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case Int32:
		return EncodeInt32s(c.Int32s), nil
	case Float64:
		return EncodeFloat64s(c.Float64s), nil
	default:
		b, err := EncodeStrings(c.Strings)
		if err != nil {
			return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeValidation, "failed to encode column").
				WithDetail("column", c.Name)
		}
		return b, nil
	}
}

// DecodeColumn decodes an uncompressed block of n values.
func DecodeColumn(name string, typ ColumnType, b []byte, n uint64) (Column, error) {
	col := Column{Name: name, Type: typ}
	var err error
	switch typ {
	case Int32:
		col.Int32s, err = DecodeInt32s(b, n)
	case Float64:
		col.Float64s, err = DecodeFloat64s(b, n)
	case String:
		col.Strings, err = DecodeStrings(b, n)
	default:
		return Column{}, cstmerrors.New(cstmerrors.ErrorTypeFormat, "unknown column type tag").
			WithDetail("column", name).
			WithDetail("type", uint8(typ))
	}
	if err != nil {
		return Column{}, cstmerrors.Wrap(err, cstmerrors.ErrorTypeCorruption, "failed to decode column").
			WithDetail("column", name)
	}
	return col, nil
}
