package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/logger"
	"github.com/ajitpratap0/cstm/pkg/metrics"
	"github.com/ajitpratap0/cstm/pkg/performance"
)

// benchResult is one side of a bench comparison.
type benchResult struct {
	rows  int
	usage *performance.ResourceUsage
	size  int64
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		column     string
		profileDir string
	)

	cmd := &cobra.Command{
		Use:   "bench IN.csv IN.cstm",
		Short: "Compare a CSV scan with a selective CSTM column read",
		Long: `Read one column from a CSV file by scanning every record, then read the
same column from a CSTM file by decompressing only its block, and report
the time, CPU and memory each approach needed.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWithOperation(cmd.Context(), "bench")
			if profileDir == "" {
				return a.bench(ctx, cmd.OutOrStdout(), args[0], args[1], column)
			}
			prof := performance.NewProfiler(performance.DefaultProfileConfig(profileDir), a.log)
			if err := prof.Start(); err != nil {
				return err
			}
			err := a.bench(ctx, cmd.OutOrStdout(), args[0], args[1], column)
			files, perr := prof.Stop()
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "profile: %s\n", f)
			}
			return perr
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "Column to read (defaults to the first column)")
	cmd.Flags().StringVar(&profileDir, "profile-dir", "", "Write CPU and heap profiles of the run to this directory")
	return cmd
}

func (a *app) bench(ctx context.Context, out io.Writer, csvPath, cstmPath, column string) error {
	log := logger.WithContext(ctx, a.log)

	mon, err := performance.NewResourceMonitor()
	if err != nil {
		return fmt.Errorf("failed to start resource monitor: %w", err)
	}

	r, err := a.open(cstmPath)
	if err != nil {
		return err
	}
	defer r.Close()
	if column == "" {
		names := r.ColumnNames()
		if len(names) == 0 {
			return fmt.Errorf("%s has no columns", cstmPath)
		}
		column = names[0]
	}
	ctx = logger.ContextWithColumn(ctx, column)

	csvRes := benchResult{}
	csvRes.usage, err = mon.Measure(func() error {
		n, err := scanCSVColumn(csvPath, column)
		csvRes.rows = n
		return err
	})
	if err != nil {
		return err
	}

	cstmRes := benchResult{}
	cstmRes.usage, err = mon.Measure(func() error {
		col, err := r.ReadColumn(ctx, column)
		cstmRes.rows = col.Len()
		return err
	})
	if err != nil {
		return err
	}

	if csvRes.size, err = fileSize(csvPath); err != nil {
		return err
	}
	if cstmRes.size, err = fileSize(cstmPath); err != nil {
		return err
	}
	if csvRes.rows != cstmRes.rows {
		log.Warn("row counts differ", zap.Int("csv_rows", csvRes.rows), zap.Int("cstm_rows", cstmRes.rows))
	}

	tracker := metrics.NewThroughputTracker(metrics.OpRead)
	tracker.Increment(int64(cstmRes.rows))
	tracker.GetAndReset()

	fmt.Fprintf(out, "column: %s\n", column)
	printBenchLine(out, "csv", csvRes)
	printBenchLine(out, "cstm", cstmRes)
	if c := cstmRes.usage.Elapsed.Seconds(); c > 0 {
		fmt.Fprintf(out, "speedup: %.1fx\n", csvRes.usage.Elapsed.Seconds()/c)
	}
	log.Info("bench complete",
		zap.Duration("csv_elapsed", csvRes.usage.Elapsed),
		zap.Duration("cstm_elapsed", cstmRes.usage.Elapsed))
	return nil
}

func printBenchLine(out io.Writer, label string, res benchResult) {
	fmt.Fprintf(out, "%-5s rows=%d elapsed=%s cpu=%.3fs rss=%dKiB size=%dB\n",
		label, res.rows, res.usage.Elapsed, res.usage.CPUSeconds, res.usage.MemoryRSS/1024, res.size)
}

// scanCSVColumn reads every record of a CSV file and counts the non-empty
// cells of one column.
func scanCSVColumn(path, column string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("column %q not found in %s", column, path)
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if idx < len(rec) {
			rows++
		}
	}
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func newGenCSVCmd(a *app) *cobra.Command {
	var (
		cols int
		rows int
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "gen-csv OUT.csv",
		Short: "Generate a wide CSV of random integers",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cols <= 0 || rows < 0 {
				return fmt.Errorf("--cols must be positive and --rows non-negative")
			}
			if err := generateCSV(args[0], cols, rows, seed); err != nil {
				return err
			}
			a.log.Info("generated CSV", zap.String("file", args[0]), zap.Int("columns", cols), zap.Int("rows", rows))
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s with %d columns and %d rows\n", args[0], cols, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&cols, "cols", 100, "Number of columns")
	cmd.Flags().IntVar(&rows, "rows", 100000, "Number of rows")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	return cmd
}

// generateCSV writes a header col0..colN-1 followed by rows of integers in
// [0, 1000000].
func generateCSV(path string, cols, rows int, seed int64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	w := csv.NewWriter(bw)
	rng := rand.New(rand.NewSource(seed))

	rec := make([]string, cols)
	for i := range rec {
		rec[i] = "col" + strconv.Itoa(i)
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	for r := 0; r < rows; r++ {
		for i := range rec {
			rec[i] = strconv.Itoa(rng.Intn(1000001))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
