package json

import (
	"io"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// Options controls row emission.
type Options struct {
	// Array wraps the rows in a JSON array; otherwise one object per line.
	Array bool
	// Indent pretty-prints every row with this indent when not empty.
	Indent string
}

// row is one table row that marshals as an object with keys in column order.
type row struct {
	keys    [][]byte
	columns []cstm.Column
	index   int
}

// MarshalJSON implements json.Marshaler.
func (r row) MarshalJSON() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(r.keys[i])
		buf.WriteByte(':')
		buf.Write(AppendValue(nil, c, r.index))
	}
	buf.WriteByte('}')
	return append([]byte(nil), buf.Bytes()...), nil
}

// AppendValue appends the JSON form of value index of c. Null strings become
// null. Non-finite floats, which JSON cannot represent as numbers, become
// the strings "NaN", "+Inf" and "-Inf".
func AppendValue(dst []byte, c cstm.Column, index int) []byte {
	switch c.Type {
	case cstm.Int32:
		return strconv.AppendInt(dst, int64(c.Int32s[index]), 10)
	case cstm.Float64:
		f := c.Float64s[index]
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.AppendQuote(dst, strconv.FormatFloat(f, 'g', -1, 64))
		}
		return strconv.AppendFloat(dst, f, 'g', -1, 64)
	default:
		s := c.Strings[index]
		if !s.Valid {
			return append(dst, "null"...)
		}
		b, _ := gojson.MarshalWithOption(s.String, gojson.DisableHTMLEscape())
		return append(dst, b...)
	}
}

// WriteTable streams every row of t to w as JSON objects keyed by column name.
func WriteTable(w io.Writer, t *cstm.Table, opts Options) error {
	rows := t.NumRows()
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		if c.Len() != rows {
			return cstmerrors.New(cstmerrors.ErrorTypeValidation, "column lengths differ").
				WithDetail("column", c.Name).
				WithDetail("length", c.Len()).
				WithDetail("expected", rows)
		}
		k, err := gojson.MarshalWithOption(c.Name, gojson.DisableHTMLEscape())
		if err != nil {
			return cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to encode column name")
		}
		keys[i] = k
	}

	enc := NewStreamingEncoder(w, opts.Array)
	if opts.Indent != "" {
		enc.SetPretty(true, opts.Indent)
	}
	for i := 0; i < rows; i++ {
		if err := enc.Encode(row{keys: keys, columns: t.Columns, index: i}); err != nil {
			return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to write JSON row").
				WithDetail("row", i)
		}
	}
	if err := enc.Close(); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to finish JSON output")
	}
	return nil
}
