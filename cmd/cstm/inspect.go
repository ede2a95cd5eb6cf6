package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/csvio"
	jsonrows "github.com/ajitpratap0/cstm/pkg/json"
	"github.com/ajitpratap0/cstm/pkg/logger"
)

type columnReport struct {
	Name             string       `json:"name" yaml:"name"`
	Type             string       `json:"type" yaml:"type"`
	Flags            uint8        `json:"flags" yaml:"flags"`
	NumValues        uint64       `json:"num_values" yaml:"num_values"`
	BlockOffset      uint64       `json:"block_offset" yaml:"block_offset"`
	CompressedSize   uint64       `json:"compressed_size" yaml:"compressed_size"`
	UncompressedSize uint64       `json:"uncompressed_size" yaml:"uncompressed_size"`
	Ratio            float64      `json:"ratio" yaml:"ratio"`
	Values           *valueReport `json:"values,omitempty" yaml:"values,omitempty"`
}

// valueReport summarizes the decoded values of one column.
type valueReport struct {
	Nulls int    `json:"nulls" yaml:"nulls"`
	NaNs  int    `json:"nans,omitempty" yaml:"nans,omitempty"`
	Min   string `json:"min,omitempty" yaml:"min,omitempty"`
	Max   string `json:"max,omitempty" yaml:"max,omitempty"`
}

type inspectReport struct {
	File            string         `json:"file" yaml:"file"`
	FileSize        int64          `json:"file_size" yaml:"file_size"`
	Version         uint8          `json:"version" yaml:"version"`
	HeaderLength    int            `json:"header_length" yaml:"header_length"`
	SchemaSignature string         `json:"schema_signature" yaml:"schema_signature"`
	SignatureOK     bool           `json:"signature_ok" yaml:"signature_ok"`
	TotalRows       uint64         `json:"total_rows" yaml:"total_rows"`
	Columns         []columnReport `json:"columns" yaml:"columns"`
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		format  string
		column  string
		hexdump bool
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE.cstm",
		Short: "Describe the header and blocks of a CSTM file",
		Long: `Print the preamble, header and per-column block layout of a CSTM file.
With --column only that column is shown and its values are decoded and
summarized. With --hexdump the raw preamble and header bytes are dumped.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWithOperation(cmd.Context(), "inspect")
			out := cmd.OutOrStdout()

			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if hexdump {
				return dumpHeader(out, args[0], r.Header())
			}

			report, err := buildReport(args[0], r)
			if err != nil {
				return err
			}
			if column != "" {
				d, err := r.Descriptor(column)
				if err != nil {
					return err
				}
				col, err := r.ReadColumn(ctx, column)
				if err != nil {
					return err
				}
				cr := describeColumn(d)
				cr.Values = summarize(col)
				report.Columns = []columnReport{cr}
			}
			return writeReport(out, report, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringVar(&column, "column", "", "Show only this column and summarize its values")
	cmd.Flags().BoolVar(&hexdump, "hexdump", false, "Dump the raw preamble and header bytes")
	return cmd
}

func buildReport(path string, r *cstm.Reader) (*inspectReport, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	report := &inspectReport{
		File:            path,
		FileSize:        st.Size(),
		Version:         cstm.Version,
		HeaderLength:    cstm.EncodedHeaderSize(h),
		SchemaSignature: fmt.Sprintf("0x%08x", h.SchemaSignature),
		SignatureOK:     r.VerifySignature(cstm.HeaderSignature(h)) == nil,
		TotalRows:       h.TotalRows,
		Columns:         make([]columnReport, len(h.Columns)),
	}
	for i, d := range h.Columns {
		report.Columns[i] = describeColumn(d)
	}
	return report, nil
}

func describeColumn(d cstm.ColumnDescriptor) columnReport {
	cr := columnReport{
		Name:             d.Name,
		Type:             d.Type.String(),
		Flags:            d.Flags,
		NumValues:        d.NumValues,
		BlockOffset:      d.BlockOffset,
		CompressedSize:   d.CompressedSize,
		UncompressedSize: d.UncompressedSize,
	}
	if d.UncompressedSize > 0 {
		cr.Ratio = float64(d.CompressedSize) / float64(d.UncompressedSize)
	}
	return cr
}

func summarize(c cstm.Column) *valueReport {
	vr := &valueReport{}
	switch c.Type {
	case cstm.Int32:
		if len(c.Int32s) == 0 {
			return vr
		}
		lo, hi := c.Int32s[0], c.Int32s[0]
		for _, v := range c.Int32s {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		vr.Min, vr.Max = fmt.Sprint(lo), fmt.Sprint(hi)
	case cstm.Float64:
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range c.Float64s {
			if math.IsNaN(v) {
				vr.NaNs++
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if len(c.Float64s) > vr.NaNs {
			vr.Min, vr.Max = csvio.FormatFloat(lo), csvio.FormatFloat(hi)
		}
	case cstm.String:
		first := true
		for _, v := range c.Strings {
			if !v.Valid {
				vr.Nulls++
				continue
			}
			if first || v.String < vr.Min {
				vr.Min = v.String
			}
			if first || v.String > vr.Max {
				vr.Max = v.String
			}
			first = false
		}
	}
	return vr
}

func writeReport(out io.Writer, report *inspectReport, format string) error {
	switch format {
	case "json":
		b, err := jsonrows.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(out, "file:             %s (%d bytes)\n", report.File, report.FileSize)
		fmt.Fprintf(out, "version:          %d\n", report.Version)
		fmt.Fprintf(out, "header_length:    %d\n", report.HeaderLength)
		fmt.Fprintf(out, "schema_signature: %s\n", report.SchemaSignature)
		fmt.Fprintf(out, "signature_ok:     %t\n", report.SignatureOK)
		fmt.Fprintf(out, "total_rows:       %d\n\n", report.TotalRows)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tVALUES\tOFFSET\tCOMPRESSED\tUNCOMPRESSED\tRATIO")
		for _, c := range report.Columns {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.3f\n",
				c.Name, c.Type, c.NumValues, c.BlockOffset, c.CompressedSize, c.UncompressedSize, c.Ratio)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, c := range report.Columns {
			if c.Values != nil {
				fmt.Fprintf(out, "\n%s: nulls=%d nans=%d min=%q max=%q\n", c.Name, c.Values.Nulls, c.Values.NaNs, c.Values.Min, c.Values.Max)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// dumpHeader prints the preamble, the header and the first bytes of the data
// region as a hex dump.
func dumpHeader(out io.Writer, path string, h *cstm.Header) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	headerLen := cstm.EncodedHeaderSize(h)
	buf := make([]byte, cstm.PreambleSize+headerLen+16)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	fmt.Fprintln(out, "preamble:")
	fmt.Fprint(out, hex.Dump(buf[:cstm.PreambleSize]))
	fmt.Fprintf(out, "header (%d bytes):\n", headerLen)
	fmt.Fprint(out, hex.Dump(buf[cstm.PreambleSize:cstm.PreambleSize+headerLen]))
	if rest := buf[cstm.PreambleSize+headerLen:]; len(rest) > 0 {
		fmt.Fprintln(out, "data:")
		fmt.Fprint(out, hex.Dump(rest))
	}
	return nil
}
