package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/csvio"
	jsonrows "github.com/ajitpratap0/cstm/pkg/json"
	"github.com/ajitpratap0/cstm/pkg/logger"
	"github.com/ajitpratap0/cstm/pkg/metrics"
)

func newFromCSVCmd(a *app) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "from-csv IN.csv OUT.cstm",
		Short: "Convert a CSV file to CSTM",
		Long: `Read a CSV file with a header row, infer a type for every column and
write a CSTM file. The output is written to a temporary file next to OUT and
renamed into place only when the write succeeds.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWithOperation(cmd.Context(), "from-csv")
			return a.fromCSV(ctx, cmd.OutOrStdout(), args[0], args[1], level)
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "Block compression level (fastest, default, better, best)")
	return cmd
}

func (a *app) fromCSV(ctx context.Context, out io.Writer, in, dst, level string) error {
	ctx = logger.ContextWithFile(ctx, dst)
	log := logger.WithContext(ctx, a.log)
	tracker := metrics.NewThroughputTracker(metrics.OpImport)
	timer := metrics.NewTimer(metrics.OpImport)
	defer timer.ObserveDuration()

	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	columns, err := csvio.Read(f, a.csvOptions())
	f.Close()
	if err != nil {
		return err
	}

	opts, err := a.writerOptions(level)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".cstm-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := cstm.NewWriter(tmp, opts...)
	if err := w.Write(ctx, columns); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), outputMode(dst)); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename output: %w", err)
	}
	committed = true

	h := w.Header()
	tracker.Increment(int64(h.TotalRows))
	stats := w.Stats()
	log.Info("converted CSV",
		zap.String("input", in),
		zap.Int("columns", len(h.Columns)),
		zap.Uint64("rows", h.TotalRows),
		zap.Float64("ratio", stats.Ratio()),
		zap.Float64("rows_per_second", tracker.GetAndReset()))
	fmt.Fprintf(out, "Wrote %s with %d columns and %d rows\n", dst, len(h.Columns), h.TotalRows)
	return nil
}

// outputMode keeps the permissions of an existing destination and otherwise
// uses 0644.
func outputMode(dst string) os.FileMode {
	if fi, err := os.Stat(dst); err == nil && fi.Mode().IsRegular() {
		return fi.Mode().Perm()
	}
	return 0o644
}

func newToCSVCmd(a *app) *cobra.Command {
	var (
		cols     string
		compress string
	)

	cmd := &cobra.Command{
		Use:   "to-csv IN.cstm OUT.csv",
		Short: "Convert a CSTM file to CSV",
		Long: `Write the columns of a CSTM file as CSV. With --cols only the named
columns are read, in the order given. OUT may be "-" for stdout. With
--compress the CSV stream is compressed (gzip, zlib, deflate, snappy, s2,
zstd or lz4).`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWithOperation(cmd.Context(), "to-csv")
			var names []string
			if cols != "" {
				names = strings.Split(cols, ",")
			}
			return a.export(ctx, cmd.OutOrStdout(), args[0], args[1], names, compress, "CSV",
				func(w io.Writer, t *cstm.Table) error { return csvio.Write(w, t, a.csvOptions()) })
		},
	}
	cmd.Flags().StringVar(&cols, "cols", "", "Comma-separated list of columns to export")
	cmd.Flags().StringVar(&compress, "compress", "", "Compress the CSV output with this algorithm; overrides the configuration")
	return cmd
}

func newToJSONCmd(a *app) *cobra.Command {
	var (
		cols     string
		compress string
		array    bool
		indent   string
	)

	cmd := &cobra.Command{
		Use:   "to-json IN.cstm OUT.json",
		Short: "Convert a CSTM file to JSON Lines or a JSON array",
		Long: `Write every row of a CSTM file as a JSON object keyed by column name.
Rows are written one per line unless --array is given. Null strings become
null. OUT may be "-" for stdout.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWithOperation(cmd.Context(), "to-json")
			var names []string
			if cols != "" {
				names = strings.Split(cols, ",")
			}
			opts := jsonrows.Options{Array: array, Indent: indent}
			return a.export(ctx, cmd.OutOrStdout(), args[0], args[1], names, compress, "JSON",
				func(w io.Writer, t *cstm.Table) error { return jsonrows.WriteTable(w, t, opts) })
		},
	}
	cmd.Flags().StringVar(&cols, "cols", "", "Comma-separated list of columns to export")
	cmd.Flags().StringVar(&compress, "compress", "", "Compress the output with this algorithm; overrides the configuration")
	cmd.Flags().BoolVar(&array, "array", false, "Write a single JSON array instead of JSON Lines")
	cmd.Flags().StringVar(&indent, "indent", "", "Pretty-print rows with this indent")
	return cmd
}

// export reads the selected columns of in and writes them to dst with
// encode, compressing the stream when configured.
func (a *app) export(ctx context.Context, stdout io.Writer, in, dst string, names []string, compress, label string,
	encode func(io.Writer, *cstm.Table) error) (err error) {
	ctx = logger.ContextWithFile(ctx, in)
	log := logger.WithContext(ctx, a.log)
	timer := metrics.NewTimer(metrics.OpExport)
	defer timer.ObserveDuration()

	if compress == "" {
		compress = a.cfg.Export.Compression
	}
	algo, err := compression.ParseAlgorithm(compress)
	if err != nil {
		return err
	}
	level, err := compression.ParseLevel(a.cfg.Export.Level)
	if err != nil {
		return err
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: level})
	if err != nil {
		return err
	}

	r, err := a.open(in)
	if err != nil {
		return err
	}
	defer r.Close()

	var table *cstm.Table
	if len(names) > 0 {
		table, err = r.ReadColumns(ctx, names...)
	} else {
		table, err = r.ReadAll(ctx)
	}
	if err != nil {
		return err
	}

	var out io.Writer = stdout
	if dst != "-" {
		f, ferr := os.Create(dst)
		if ferr != nil {
			return fmt.Errorf("failed to create output: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output: %w", cerr)
			}
		}()
		out = f
	}

	if err := writeCompressed(out, table, comp, encode); err != nil {
		return err
	}

	metrics.RowsTotal.WithLabelValues(metrics.OpExport).Add(float64(table.NumRows()))
	log.Info("exported table",
		zap.String("format", label),
		zap.String("output", dst),
		zap.Strings("columns", table.Names()),
		zap.Int("rows", table.NumRows()),
		zap.String("compression", string(algo)))
	if dst != "-" {
		fmt.Fprintf(stdout, "Wrote %s %s\n", label, dst)
	}
	return nil
}

// writeCompressed streams the encoded table through comp into out.
func writeCompressed(out io.Writer, table *cstm.Table, comp compression.Compressor, encode func(io.Writer, *cstm.Table) error) error {
	if comp.Algorithm() == compression.None {
		return encode(out, table)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(encode(pw, table))
	}()
	if err := comp.CompressStream(out, pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to compress output: %w", err)
	}
	return nil
}
