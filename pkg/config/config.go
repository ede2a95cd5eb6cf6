package config

import (
	"unicode/utf8"

	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
	"github.com/ajitpratap0/cstm/pkg/logger"
)

// Config is the complete configuration of the cstm tools.
type Config struct {
	// Log configures the zap logger
	Log logger.Config `yaml:"log" mapstructure:"log"`

	// Writer settings apply to every file the tools write
	Writer WriterConfig `yaml:"writer" mapstructure:"writer"`

	// Reader settings apply to every file the tools open
	Reader ReaderConfig `yaml:"reader" mapstructure:"reader"`

	// CSV controls CSV parsing and emission
	CSV CSVConfig `yaml:"csv" mapstructure:"csv"`

	// Export controls the compression of exported CSV files
	Export ExportConfig `yaml:"export" mapstructure:"export"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// WriterConfig contains CSTM writer settings.
type WriterConfig struct {
	// CompressionLevel is one of fastest, default, better, best
	CompressionLevel string `yaml:"compression_level" mapstructure:"compression_level"`
	// SchemaSignature stores the schema CRC in the header
	SchemaSignature bool `yaml:"schema_signature" mapstructure:"schema_signature"`
	// Concurrency is the number of block compression workers; 0 or 1
	// compresses sequentially
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ReaderConfig contains CSTM reader settings.
type ReaderConfig struct {
	// Mmap serves reads from a memory mapping
	Mmap bool `yaml:"mmap" mapstructure:"mmap"`
	// VerifySignature checks the stored schema signature against the
	// columns found in the header
	VerifySignature bool `yaml:"verify_signature" mapstructure:"verify_signature"`
	// Concurrency is the number of decompression workers used when a whole
	// file is read
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CSVConfig contains CSV settings.
type CSVConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	// NullToken marks a null string cell. Empty disables null handling.
	NullToken string `yaml:"null_token" mapstructure:"null_token"`
	// InferTypes enables Int32 and Float64 inference; otherwise every
	// column is a String column
	InferTypes bool `yaml:"infer_types" mapstructure:"infer_types"`
}

// ExportConfig contains CSV export settings.
type ExportConfig struct {
	// Compression is the stream algorithm applied to exported CSV
	Compression string `yaml:"compression" mapstructure:"compression"`
	Level       string `yaml:"level" mapstructure:"level"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// TextfilePath receives the Prometheus registry after each command
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// TracingConfig contains tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`
	PrettyPrint  bool    `yaml:"pretty_print" mapstructure:"pretty_print"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Writer: WriterConfig{
			CompressionLevel: compression.Default.String(),
			SchemaSignature:  true,
		},
		CSV: CSVConfig{
			Delimiter:  ",",
			InferTypes: true,
		},
		Export: ExportConfig{
			Compression: string(compression.None),
			Level:       compression.Default.String(),
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			PrettyPrint:  true,
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level)
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		return invalid("log.encoding", c.Log.Encoding)
	}
	if _, err := compression.ParseLevel(c.Writer.CompressionLevel); err != nil {
		return invalid("writer.compression_level", c.Writer.CompressionLevel)
	}
	if c.Writer.Concurrency < 0 {
		return invalid("writer.concurrency", c.Writer.Concurrency)
	}
	if c.Reader.Concurrency < 0 {
		return invalid("reader.concurrency", c.Reader.Concurrency)
	}
	if utf8.RuneCountInString(c.CSV.Delimiter) != 1 {
		return invalid("csv.delimiter", c.CSV.Delimiter)
	}
	if r, _ := utf8.DecodeRuneInString(c.CSV.Delimiter); r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return invalid("csv.delimiter", c.CSV.Delimiter)
	}
	if _, err := compression.ParseAlgorithm(c.Export.Compression); err != nil {
		return invalid("export.compression", c.Export.Compression)
	}
	if _, err := compression.ParseLevel(c.Export.Level); err != nil {
		return invalid("export.level", c.Export.Level)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return invalid("tracing.sampling_rate", c.Tracing.SamplingRate)
	}
	return nil
}

// Delimiter returns the CSV delimiter rune. Call Validate first.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.CSV.Delimiter)
	return r
}

func invalid(key string, value interface{}) *cstmerrors.Error {
	return cstmerrors.New(cstmerrors.ErrorTypeConfig, "invalid configuration value").
		WithDetail("key", key).
		WithDetail("value", value)
}
