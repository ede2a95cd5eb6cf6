package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
	"github.com/ajitpratap0/cstm/pkg/testutil"
)

const sampleCSV = "id,name,score\n1,alpha,1.5\n2,beta,2.25\n3,gamma,-4.0\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeSample(t *testing.T) (csvPath, cstmPath string) {
	t.Helper()
	csvPath = testutil.TempFile(t, "in.csv", sampleCSV)
	cstmPath = filepath.Join(filepath.Dir(csvPath), "out.cstm")

	out, err := run(t, "from-csv", csvPath, cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "with 3 columns and 3 rows")
	return csvPath, cstmPath
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cstm v"+version)
	assert.Contains(t, out, "Format version: 1")
}

func TestExitCodes(t *testing.T) {
	_, cstmPath := writeSample(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "missing argument", args: []string{"inspect"}, want: 2},
		{name: "unknown flag", args: []string{"to-csv", "--bogus", cstmPath, "-"}, want: 2},
		{name: "unknown command", args: []string{"explode"}, want: 2},
		{name: "runtime failure", args: []string{"inspect", cstmPath + ".missing"}, want: 1},
		{name: "success", args: []string{"inspect", cstmPath}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Equal(t, tt.want, exitCode(err))
		})
	}
}

func TestCSVRoundTrip(t *testing.T) {
	_, cstmPath := writeSample(t)
	back := filepath.Join(filepath.Dir(cstmPath), "back.csv")

	_, err := run(t, "to-csv", cstmPath, back)
	require.NoError(t, err)

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(got))
}

func TestToCSVSelectedColumnsToStdout(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "to-csv", "--cols", "score,id", cstmPath, "-")
	require.NoError(t, err)
	assert.Equal(t, "score,id\n1.5,1\n2.25,2\n-4.0,3\n", out)
}

func TestToCSVUnknownColumn(t *testing.T) {
	_, cstmPath := writeSample(t)

	_, err := run(t, "to-csv", "--cols", "missing", cstmPath, "-")
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeNotFound))
}

func TestToCSVCompressed(t *testing.T) {
	_, cstmPath := writeSample(t)
	back := filepath.Join(filepath.Dir(cstmPath), "back.csv.gz")

	_, err := run(t, "to-csv", "--compress", "gzip", cstmPath, back)
	require.NoError(t, err)

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	require.Greater(t, len(got), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, got[:2])
}

func TestFromCSVFileMode(t *testing.T) {
	_, cstmPath := writeSample(t)
	fi, err := os.Stat(cstmPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	require.NoError(t, os.Chmod(cstmPath, 0o600))
	csvPath := filepath.Join(filepath.Dir(cstmPath), "in.csv")
	_, err = run(t, "from-csv", csvPath, cstmPath)
	require.NoError(t, err)
	fi, err = os.Stat(cstmPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestFromCSVLeavesNoFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.csv")
	dst := filepath.Join(dir, "bad.cstm")
	require.NoError(t, os.WriteFile(in, []byte("a,b\n1\n"), 0o644))

	_, err := run(t, "from-csv", in, dst)
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeValidation))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bad.csv", entries[0].Name())
}

func TestInspectJSON(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "inspect", "--format", "json", cstmPath)
	require.NoError(t, err)

	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint8(1), report.Version)
	assert.Equal(t, uint64(3), report.TotalRows)
	assert.True(t, report.SignatureOK)
	assert.NotEqual(t, "0x00000000", report.SchemaSignature)
	require.Len(t, report.Columns, 3)
	assert.Equal(t, "id", report.Columns[0].Name)
	assert.Equal(t, "int32", report.Columns[0].Type)
	assert.Equal(t, "string", report.Columns[1].Type)
	assert.Equal(t, "float64", report.Columns[2].Type)
	assert.Equal(t, uint64(12), report.Columns[0].UncompressedSize)
	assert.Equal(t, uint64(cstmPreambleAndHeader(report)), report.Columns[0].BlockOffset)
}

func cstmPreambleAndHeader(r inspectReport) int {
	return 20 + r.HeaderLength
}

func TestInspectColumn(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "inspect", "--format", "yaml", "--column", "score", cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "name: score")
	assert.Contains(t, out, `min: "-4.0"`)
	assert.Contains(t, out, `max: "2.25"`)
	assert.NotContains(t, out, "name: id")
}

func TestInspectText(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "inspect", cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "total_rows:       3")
	assert.Contains(t, out, "signature_ok:     true")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "score")
}

func TestInspectSkipsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.cstm")
	_, err := cstm.WriteFile(context.Background(), path, []cstm.Column{
		cstm.Float64Column("x", 2.5, math.NaN(), -1),
	})
	require.NoError(t, err)

	out, err := run(t, "inspect", "--format", "json", "--column", "x", path)
	require.NoError(t, err)

	var report struct {
		Columns []struct {
			Values struct {
				NaNs int    `json:"nans"`
				Min  string `json:"min"`
				Max  string `json:"max"`
			} `json:"values"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Columns, 1)
	assert.Equal(t, 1, report.Columns[0].Values.NaNs)
	assert.Equal(t, "-1.0", report.Columns[0].Values.Min)
	assert.Equal(t, "2.5", report.Columns[0].Values.Max)
}

func TestInspectHexdump(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "inspect", "--hexdump", cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "43 53 54 4d 01 00 00 00")
	assert.Contains(t, out, "header (")
	assert.Contains(t, out, "data:")
}

func TestInspectRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.cstm")
	require.NoError(t, os.WriteFile(bad, []byte("PARQUET-ISH-DATA-THAT-IS-LONG"), 0o644))

	_, err := run(t, "inspect", bad)
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeFormat))

	_, err = run(t, "inspect", "--format", "xml", bad)
	require.Error(t, err)
}

func TestGenCSVAndBench(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "wide.csv")
	cstmPath := filepath.Join(dir, "wide.cstm")

	out, err := run(t, "gen-csv", "--cols", "5", "--rows", "50", "--seed", "7", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "with 5 columns and 50 rows")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 51)
	assert.Equal(t, "col0,col1,col2,col3,col4", lines[0])

	_, err = run(t, "from-csv", csvPath, cstmPath)
	require.NoError(t, err)

	out, err = run(t, "bench", "--column", "col3", csvPath, cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "column: col3")
	assert.Contains(t, out, "csv   rows=50")
	assert.Contains(t, out, "cstm  rows=50")

	profiles := filepath.Join(dir, "profiles")
	out, err = run(t, "bench", "--profile-dir", profiles, csvPath, cstmPath)
	require.NoError(t, err)
	assert.Contains(t, out, "column: col0")
	assert.Contains(t, out, "profile: ")
	entries, err := os.ReadDir(profiles)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGenCSVIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")

	_, err := run(t, "gen-csv", "--cols", "3", "--rows", "10", "--seed", "42", a)
	require.NoError(t, err)
	_, err = run(t, "gen-csv", "--cols", "3", "--rows", "10", "--seed", "42", b)
	require.NoError(t, err)

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	assert.Equal(t, da, db)
}

func TestMetricsFile(t *testing.T) {
	_, cstmPath := writeSample(t)
	prom := filepath.Join(filepath.Dir(cstmPath), "cstm.prom")

	_, err := run(t, "--metrics-file", prom, "to-csv", cstmPath, "-")
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cstm_blocks_total")
}

func TestConcurrencyFromEnvironment(t *testing.T) {
	t.Setenv("CSTM_WRITER_CONCURRENCY", "3")
	t.Setenv("CSTM_READER_CONCURRENCY", "3")

	_, cstmPath := writeSample(t)
	out, err := run(t, "to-csv", cstmPath, "-")
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, out)
}

func TestToJSONLines(t *testing.T) {
	_, cstmPath := writeSample(t)

	out, err := run(t, "to-json", "--cols", "id,name", cstmPath, "-")
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":1,"name":"alpha"}`+"\n"+
			`{"id":2,"name":"beta"}`+"\n"+
			`{"id":3,"name":"gamma"}`+"\n",
		out)
}

func TestToJSONArrayFile(t *testing.T) {
	_, cstmPath := writeSample(t)
	dst := filepath.Join(filepath.Dir(cstmPath), "rows.json")

	out, err := run(t, "to-json", "--array", cstmPath, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote JSON "+dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, -4.0, rows[2]["score"])
}
