package cstm

import (
	"encoding/binary"
	"fmt"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

const (
	// schema_signature + total_rows + num_columns
	headerFixedSize = 4 + 8 + 4
	// name_len + type + flags + num_values + offset + compressed + uncompressed
	descriptorFixedSize = 2 + 1 + 1 + 8*4
)

// ColumnDescriptor is the header entry for one column.
type ColumnDescriptor struct {
	Name             string
	Type             ColumnType
	Flags            uint8
	NumValues        uint64
	BlockOffset      uint64
	CompressedSize   uint64
	UncompressedSize uint64
}

// IsEmptyBlock reports whether the descriptor points at no block at all.
func (d ColumnDescriptor) IsEmptyBlock() bool {
	return d.NumValues == 0 && d.CompressedSize == 0 && d.UncompressedSize == 0
}

// Header is the decoded file header.
type Header struct {
	SchemaSignature uint32
	TotalRows       uint64
	Columns         []ColumnDescriptor
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	c := *h
	c.Columns = append([]ColumnDescriptor(nil), h.Columns...)
	return &c
}

// Lookup returns the index of the named column.
func (h *Header) Lookup(name string) (int, bool) {
	for i := range h.Columns {
		if h.Columns[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// EncodedHeaderSize returns the byte length EncodeHeader produces for h. It
// depends only on the column names, so it is the same for the skeleton and
// the final header.
func EncodedHeaderSize(h *Header) int {
	n := headerFixedSize
	for i := range h.Columns {
		n += descriptorFixedSize + len(h.Columns[i].Name)
	}
	return n
}

// EncodeHeader serializes the header body (everything after the preamble).
func EncodeHeader(h *Header) ([]byte, error) {
	seen := make(map[string]struct{}, len(h.Columns))
	for i := range h.Columns {
		d := &h.Columns[i]
		if len(d.Name) > MaxNameLength {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeSchema, "column name too long").
				WithDetail("column_index", i).
				WithDetail("length", len(d.Name))
		}
		if _, dup := seen[d.Name]; dup {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeSchema, "duplicate column name").
				WithDetail("column", d.Name)
		}
		seen[d.Name] = struct{}{}
		if !d.Type.Valid() {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeSchema, "unknown column type").
				WithDetail("column", d.Name).
				WithDetail("type", uint8(d.Type))
		}
	}
	if uint64(len(h.Columns)) > 0xFFFFFFFF {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeSchema, "too many columns")
	}

	buf := make([]byte, 0, EncodedHeaderSize(h))
	buf = binary.LittleEndian.AppendUint32(buf, h.SchemaSignature)
	buf = binary.LittleEndian.AppendUint64(buf, h.TotalRows)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.Columns)))
	for i := range h.Columns {
		d := &h.Columns[i]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(d.Name)))
		buf = append(buf, d.Name...)
		buf = append(buf, uint8(d.Type), d.Flags)
		buf = binary.LittleEndian.AppendUint64(buf, d.NumValues)
		buf = binary.LittleEndian.AppendUint64(buf, d.BlockOffset)
		buf = binary.LittleEndian.AppendUint64(buf, d.CompressedSize)
		buf = binary.LittleEndian.AppendUint64(buf, d.UncompressedSize)
	}
	return buf, nil
}

// DecodeHeader parses a header body. The buffer must contain exactly one
// header; trailing bytes are a format error.
func DecodeHeader(b []byte) (*Header, error) {
	d := headerDecoder{buf: b}

	h := &Header{
		SchemaSignature: d.uint32(),
		TotalRows:       d.uint64(),
	}
	numColumns := d.uint32()
	if d.err != nil {
		return nil, d.err
	}
	if uint64(numColumns)*descriptorFixedSize > uint64(d.remaining()) {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "column count exceeds header length").
			WithDetail("num_columns", numColumns).
			WithDetail("header_length", len(b))
	}

	h.Columns = make([]ColumnDescriptor, numColumns)
	seen := make(map[string]struct{}, numColumns)
	for i := range h.Columns {
		nameLen := d.uint16()
		name := d.bytes(int(nameLen))
		typ := ColumnType(d.uint8())
		flags := d.uint8()
		cd := ColumnDescriptor{
			Name:             string(name),
			Type:             typ,
			Flags:            flags,
			NumValues:        d.uint64(),
			BlockOffset:      d.uint64(),
			CompressedSize:   d.uint64(),
			UncompressedSize: d.uint64(),
		}
		if d.err != nil {
			return nil, d.err
		}
		if !typ.Valid() {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "unknown column type tag").
				WithDetail("column", cd.Name).
				WithDetail("type", uint8(typ))
		}
		if _, dup := seen[cd.Name]; dup {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "duplicate column name").
				WithDetail("column", cd.Name)
		}
		seen[cd.Name] = struct{}{}
		h.Columns[i] = cd
	}

	if d.remaining() != 0 {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "trailing bytes after header").
			WithDetail("trailing", d.remaining())
	}
	return h, nil
}

// EncodePreamble returns the 20-byte preamble for a header of headerLength bytes.
func EncodePreamble(headerLength uint64) []byte {
	buf := make([]byte, PreambleSize)
	copy(buf, Magic)
	buf[4] = Version
	binary.LittleEndian.PutUint64(buf[12:], headerLength)
	return buf
}

// DecodePreamble validates magic and version and returns the header length.
func DecodePreamble(b []byte) (uint64, error) {
	if len(b) < PreambleSize {
		return 0, cstmerrors.New(cstmerrors.ErrorTypeFormat, "file too short for preamble").
			WithDetail("size", len(b))
	}
	if string(b[:4]) != Magic {
		return 0, cstmerrors.Wrap(cstmerrors.ErrInvalidMagic, cstmerrors.ErrorTypeFormat, "not a CSTM file").
			WithDetail("magic", fmt.Sprintf("%q", b[:4]))
	}
	if b[4] != Version {
		return 0, cstmerrors.Wrap(cstmerrors.ErrUnsupportedVersion, cstmerrors.ErrorTypeFormat, "cannot read file").
			WithDetail("version", b[4])
	}
	return binary.LittleEndian.Uint64(b[12:PreambleSize]), nil
}

// headerDecoder reads little-endian fields and records the first short read.
type headerDecoder struct {
	buf []byte
	pos int
	err error
}

func (d *headerDecoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *headerDecoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > d.remaining() {
		d.err = cstmerrors.New(cstmerrors.ErrorTypeFormat, "header truncated").
			WithDetail("offset", d.pos).
			WithDetail("need", n)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *headerDecoder) uint8() uint8 {
	b := d.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *headerDecoder) uint16() uint16 {
	b := d.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *headerDecoder) uint32() uint32 {
	b := d.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *headerDecoder) uint64() uint64 {
	b := d.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *headerDecoder) bytes(n int) []byte {
	return d.next(n)
}
