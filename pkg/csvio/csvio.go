// Package csvio converts between CSV text and CSTM columns.
//
// Read loads a whole CSV document into memory, transposes it into columns
// and infers each column's type: Int32 when every cell parses as a 32-bit
// integer, Float64 when every cell parses as a float, String otherwise. An
// empty cell disables numeric inference for its column, and a column with no
// rows is a String column.
//
// Write emits a table as CSV. Floats are written in their shortest
// round-trip form and always carry a decimal point or exponent, so a file
// written by Write infers back to the same types.
package csvio

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// Options controls CSV parsing and emission.
type Options struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// NullToken, when not empty, marks a null cell in String columns.
	NullToken string
	// DisableInference makes every column a String column.
	DisableInference bool
}

func (o Options) comma() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Read parses a header row and the records that follow into columns.
func Read(r io.Reader, opts Options) ([]cstm.Column, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.comma()
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []cstm.Column{}, nil
	}
	if err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeValidation, "failed to parse CSV header")
	}
	names := append([]string(nil), header...)

	cells := make([][]string, len(names))
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeValidation, "failed to parse CSV record").
				WithDetail("row", row)
		}
		if len(record) != len(names) {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeValidation, "CSV row width differs from header").
				WithDetail("row", row).
				WithDetail("fields", len(record)).
				WithDetail("expected", len(names))
		}
		for i, v := range record {
			cells[i] = append(cells[i], v)
		}
	}

	columns := make([]cstm.Column, len(names))
	for i, name := range names {
		typ := cstm.String
		if !opts.DisableInference {
			typ = InferType(cells[i])
		}
		columns[i] = buildColumn(name, typ, cells[i], opts.NullToken)
	}
	return columns, nil
}

// InferType picks the narrowest type every value parses as.
func InferType(values []string) cstm.ColumnType {
	if len(values) == 0 {
		return cstm.String
	}

	isInt := true
	for _, v := range values {
		if v == "" {
			return cstm.String
		}
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 32); err != nil {
				isInt = false
			}
		}
		if !isInt {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return cstm.String
			}
		}
	}
	if isInt {
		return cstm.Int32
	}
	return cstm.Float64
}

// buildColumn converts cells that InferType has already accepted.
func buildColumn(name string, typ cstm.ColumnType, cells []string, nullToken string) cstm.Column {
	switch typ {
	case cstm.Int32:
		values := make([]int32, len(cells))
		for i, v := range cells {
			n, _ := strconv.ParseInt(v, 10, 32)
			values[i] = int32(n)
		}
		return cstm.Int32Column(name, values...)
	case cstm.Float64:
		values := make([]float64, len(cells))
		for i, v := range cells {
			values[i], _ = strconv.ParseFloat(v, 64)
		}
		return cstm.Float64Column(name, values...)
	default:
		values := make([]cstm.NullString, len(cells))
		for i, v := range cells {
			if nullToken != "" && v == nullToken {
				continue
			}
			values[i] = cstm.NewNullString(v)
		}
		return cstm.NullableStringColumn(name, values)
	}
}

// Write emits the table as a header row followed by one record per row.
func Write(w io.Writer, t *cstm.Table, opts Options) error {
	rows := t.NumRows()
	for _, c := range t.Columns {
		if c.Len() != rows {
			return cstmerrors.New(cstmerrors.ErrorTypeValidation, "column lengths differ").
				WithDetail("column", c.Name).
				WithDetail("length", c.Len()).
				WithDetail("expected", rows)
		}
	}

	cw := csv.NewWriter(w)
	cw.Comma = opts.comma()

	if err := cw.Write(t.Names()); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to write CSV header")
	}

	record := make([]string, len(t.Columns))
	for row := 0; row < rows; row++ {
		for i, c := range t.Columns {
			record[i] = FormatValue(c, row, opts.NullToken)
		}
		if err := cw.Write(record); err != nil {
			return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to write CSV record").
				WithDetail("row", row)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to flush CSV")
	}
	return nil
}

// FormatValue renders value row of c as CSV text.
func FormatValue(c cstm.Column, row int, nullToken string) string {
	switch c.Type {
	case cstm.Int32:
		return strconv.FormatInt(int64(c.Int32s[row]), 10)
	case cstm.Float64:
		return FormatFloat(c.Float64s[row])
	default:
		if !c.Strings[row].Valid {
			return nullToken
		}
		return c.Strings[row].String
	}
}

// FormatFloat returns the shortest text that parses back to f, with ".0"
// appended to integral values.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
