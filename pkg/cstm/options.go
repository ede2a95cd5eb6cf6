package cstm

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/compression"
)

type options struct {
	logger          *zap.Logger
	level           compression.Level
	compressor      *compression.BlockCompressor
	schemaSignature uint32
	autoSignature   bool
	mmap            bool
	concurrency     int
}

// Option configures a Writer or Reader. Options that do not apply to one
// side are ignored by it.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		level:  compression.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.compressor == nil {
		o.compressor = compression.NewBlockCompressor(o.level)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCompressionLevel sets the zlib level used for new blocks.
func WithCompressionLevel(level compression.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithBlockCompressor shares a compressor, and therefore its Stats, between
// several writers or readers.
func WithBlockCompressor(bc *compression.BlockCompressor) Option {
	return func(o *options) {
		o.compressor = bc
	}
}

// WithSchemaSignature stores sig in the header. Zero means unset.
func WithSchemaSignature(sig uint32) Option {
	return func(o *options) {
		o.schemaSignature = sig
		o.autoSignature = false
	}
}

// WithAutoSchemaSignature stores SchemaSignature(columns) in the header.
func WithAutoSchemaSignature() Option {
	return func(o *options) {
		o.autoSignature = true
	}
}

// WithMmap makes Open serve reads from a memory mapping of the file.
func WithMmap() Option {
	return func(o *options) {
		o.mmap = true
	}
}

// WithConcurrency compresses blocks on write, and decompresses them in
// ReadAll, with up to n workers. Blocks are still written in column order.
// Values below 2 keep the sequential path.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

func (o *options) parallel() *compression.ParallelBlockCompressor {
	if o.concurrency < 2 {
		return nil
	}
	return compression.NewParallelBlockCompressor(o.compressor,
		compression.ParallelConfig{NumWorkers: o.concurrency}, o.logger)
}
