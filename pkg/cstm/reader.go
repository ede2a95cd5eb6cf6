package cstm

import (
	"context"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
	"github.com/ajitpratap0/cstm/pkg/metrics"
	"github.com/ajitpratap0/cstm/pkg/mmap"
	"github.com/ajitpratap0/cstm/pkg/observability"
	"github.com/ajitpratap0/cstm/pkg/pool"
)

// Reader serves column reads from a CSTM file. The header is parsed once at
// open; every block read is a positioned read, so methods are safe for
// concurrent use.
type Reader struct {
	src       io.ReaderAt
	size      int64
	closer    io.Closer
	header    *Header
	dataStart uint64
	opts      *options
	log       *zap.Logger
}

// Open opens the file at path. With WithMmap the file is memory mapped.
func Open(path string, opts ...Option) (*Reader, error) {
	timer := metrics.NewTimer(metrics.OpOpen)
	defer timer.ObserveDuration()

	f, err := os.Open(path)
	if err != nil {
		return nil, recordOpenError(cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to open file").
			WithDetail("path", path))
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, recordOpenError(cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to stat file").
			WithDetail("path", path))
	}

	var (
		src    io.ReaderAt = f
		closer io.Closer   = f
	)
	o := newOptions(opts)
	if o.mmap && st.Size() >= PreambleSize {
		m, err := mmap.NewReader(f)
		if err != nil {
			f.Close()
			return nil, recordOpenError(cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to map file").
				WithDetail("path", path))
		}
		src, closer = m, m
	}

	r, err := newReader(src, st.Size(), o)
	if err != nil {
		closer.Close()
		if e, ok := err.(*cstmerrors.Error); ok {
			e.WithDetail("path", path)
		}
		return nil, recordOpenError(err)
	}
	r.closer = closer
	r.log = r.log.With(zap.String("file", path))
	r.log.Info("file opened",
		zap.Int("columns", len(r.header.Columns)),
		zap.Uint64("rows", r.header.TotalRows),
		zap.Bool("mmap", o.mmap))
	return r, nil
}

// NewReader reads the preamble and header from src, which holds size bytes.
// The caller keeps ownership of src; Close does not close it.
func NewReader(src io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	r, err := newReader(src, size, newOptions(opts))
	if err != nil {
		return nil, recordOpenError(err)
	}
	return r, nil
}

func recordOpenError(err error) error {
	metrics.RecordError(metrics.OpOpen, string(cstmerrors.TypeOf(err)))
	return err
}

func newReader(src io.ReaderAt, size int64, o *options) (*Reader, error) {
	if size < PreambleSize {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "file too short for preamble").
			WithDetail("size", size)
	}

	pre := make([]byte, PreambleSize)
	if err := readFull(src, pre, 0); err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to read preamble")
	}
	headerLen, err := DecodePreamble(pre)
	if err != nil {
		return nil, err
	}
	if headerLen > uint64(size-PreambleSize) {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeFormat, "header length exceeds file size").
			WithDetail("header_length", headerLen).
			WithDetail("size", size)
	}

	raw := make([]byte, headerLen)
	if err := readFull(src, raw, PreambleSize); err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to read header")
	}
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:       src,
		size:      size,
		header:    h,
		dataStart: PreambleSize + headerLen,
		opts:      o,
		log:       o.logger,
	}, nil
}

// readFull reads exactly len(b) bytes at off.
func readFull(src io.ReaderAt, b []byte, off int64) error {
	n, err := src.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Header returns a deep copy of the file header.
func (r *Reader) Header() *Header {
	return r.header.Clone()
}

// NumRows returns total_rows from the header.
func (r *Reader) NumRows() uint64 {
	return r.header.TotalRows
}

// ColumnNames returns the column names in declaration order.
func (r *Reader) ColumnNames() []string {
	names := make([]string, len(r.header.Columns))
	for i := range r.header.Columns {
		names[i] = r.header.Columns[i].Name
	}
	return names
}

// Descriptor returns the header entry for the named column.
func (r *Reader) Descriptor(name string) (ColumnDescriptor, error) {
	i, ok := r.header.Lookup(name)
	if !ok {
		return ColumnDescriptor{}, errColumnNotFound(name)
	}
	return r.header.Columns[i], nil
}

func errColumnNotFound(name string) *cstmerrors.Error {
	return cstmerrors.New(cstmerrors.ErrorTypeNotFound, "column not found").
		WithDetail("column", name)
}

// ReadColumn reads and decodes the named column.
func (r *Reader) ReadColumn(ctx context.Context, name string) (Column, error) {
	i, ok := r.header.Lookup(name)
	if !ok {
		err := errColumnNotFound(name)
		metrics.RecordError(metrics.OpRead, string(err.Type))
		return Column{}, err
	}
	return r.ReadColumnAt(ctx, i)
}

// ReadColumnAt reads and decodes the column at index in declaration order.
func (r *Reader) ReadColumnAt(ctx context.Context, index int) (col Column, err error) {
	if index < 0 || index >= len(r.header.Columns) {
		err := cstmerrors.New(cstmerrors.ErrorTypeNotFound, "column index out of range").
			WithDetail("index", index).
			WithDetail("num_columns", len(r.header.Columns))
		metrics.RecordError(metrics.OpRead, string(err.Type))
		return Column{}, err
	}
	d := r.header.Columns[index]

	_, span := observability.StartSpan(ctx, "cstm.ReadColumn")
	span.SetAttribute("column", d.Name)
	span.SetAttribute("compressed_size", d.CompressedSize)
	timer := metrics.NewTimer(metrics.OpRead)
	defer func() {
		timer.ObserveDuration()
		if err != nil {
			metrics.RecordError(metrics.OpRead, string(cstmerrors.TypeOf(err)))
		}
		span.End(err)
	}()

	if err := ctx.Err(); err != nil {
		return Column{}, cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "read cancelled").
			WithDetail("column", d.Name)
	}
	return r.readBlock(d)
}

func (r *Reader) readBlock(d ColumnDescriptor) (Column, error) {
	if d.IsEmptyBlock() {
		return emptyColumn(d.Name, d.Type), nil
	}
	compressed, err := r.fetchBlock(d)
	if err != nil {
		return Column{}, err
	}
	raw, err := r.opts.compressor.Decompress(compressed, d.UncompressedSize)
	pool.GlobalBufferPool.Put(compressed)
	if err != nil {
		return Column{}, errDecompress(err, d.Name)
	}
	return r.decodeBlock(d, raw)
}

// fetchBlock checks the block range against the file and reads the
// compressed bytes into a buffer from pool.GlobalBufferPool.
func (r *Reader) fetchBlock(d ColumnDescriptor) ([]byte, error) {
	if d.BlockOffset < r.dataStart ||
		d.BlockOffset > uint64(r.size) ||
		d.CompressedSize > uint64(r.size)-d.BlockOffset {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeCorruption, "block range outside data region").
			WithDetail("column", d.Name).
			WithDetail("offset", d.BlockOffset).
			WithDetail("compressed_size", d.CompressedSize).
			WithDetail("file_size", r.size)
	}

	compressed := pool.GlobalBufferPool.Get(int(d.CompressedSize))
	if err := readFull(r.src, compressed, int64(d.BlockOffset)); err != nil {
		pool.GlobalBufferPool.Put(compressed)
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to read block").
			WithDetail("column", d.Name).
			WithDetail("offset", d.BlockOffset)
	}
	return compressed, nil
}

func errDecompress(err error, column string) error {
	return cstmerrors.Wrap(err, cstmerrors.ErrorTypeCorruption, "failed to decompress column").
		WithDetail("column", column)
}

func (r *Reader) decodeBlock(d ColumnDescriptor, raw []byte) (Column, error) {
	col, err := DecodeColumn(d.Name, d.Type, raw, d.NumValues)
	if err != nil {
		return Column{}, err
	}

	metrics.RecordBlock(metrics.OpRead, d.CompressedSize, d.UncompressedSize)
	r.log.Debug("block read",
		zap.String("column", d.Name),
		zap.Stringer("type", d.Type),
		zap.Uint64("offset", d.BlockOffset),
		zap.Uint64("compressed", d.CompressedSize),
		zap.Uint64("uncompressed", d.UncompressedSize))
	return col, nil
}

// ReadColumns reads the named columns in the order given. Only those blocks
// are touched.
func (r *Reader) ReadColumns(ctx context.Context, names ...string) (*Table, error) {
	t := &Table{
		SchemaSignature: r.header.SchemaSignature,
		Columns:         make([]Column, 0, len(names)),
	}
	for _, name := range names {
		col, err := r.ReadColumn(ctx, name)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

// ReadAll reads every column in declaration order. Every column must hold
// total_rows values.
func (r *Reader) ReadAll(ctx context.Context) (t *Table, err error) {
	ctx, span := observability.StartSpan(ctx, "cstm.ReadAll")
	span.SetAttribute("columns", len(r.header.Columns))
	span.SetAttribute("rows", r.header.TotalRows)
	defer func() { span.End(err) }()

	for _, d := range r.header.Columns {
		if d.NumValues != r.header.TotalRows {
			err := cstmerrors.New(cstmerrors.ErrorTypeValidation, "column length differs from total_rows").
				WithDetail("column", d.Name).
				WithDetail("num_values", d.NumValues).
				WithDetail("total_rows", r.header.TotalRows)
			metrics.RecordError(metrics.OpRead, string(err.Type))
			return nil, err
		}
	}

	t = &Table{
		SchemaSignature: r.header.SchemaSignature,
		Columns:         make([]Column, len(r.header.Columns)),
	}
	if pc := r.opts.parallel(); pc != nil {
		if err := r.readAllParallel(ctx, pc, t); err != nil {
			metrics.RecordError(metrics.OpRead, string(cstmerrors.TypeOf(err)))
			return nil, err
		}
	} else {
		for i := range r.header.Columns {
			col, err := r.ReadColumnAt(ctx, i)
			if err != nil {
				return nil, err
			}
			t.Columns[i] = col
		}
	}
	metrics.RowsTotal.WithLabelValues(metrics.OpRead).Add(float64(r.header.TotalRows))
	return t, nil
}

// readAllParallel reads every compressed block, inflates them concurrently
// and decodes them into t.
func (r *Reader) readAllParallel(ctx context.Context, pc *compression.ParallelBlockCompressor, t *Table) error {
	var (
		idx    []int
		blocks [][]byte
		sizes  []uint64
	)
	for i, d := range r.header.Columns {
		if err := ctx.Err(); err != nil {
			putBuffers(blocks)
			return cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "read cancelled").
				WithDetail("column", d.Name)
		}
		if d.IsEmptyBlock() {
			t.Columns[i] = emptyColumn(d.Name, d.Type)
			continue
		}
		compressed, err := r.fetchBlock(d)
		if err != nil {
			putBuffers(blocks)
			return err
		}
		idx = append(idx, i)
		blocks = append(blocks, compressed)
		sizes = append(sizes, d.UncompressedSize)
	}

	results, err := pc.DecompressBlocks(ctx, blocks, sizes)
	putBuffers(blocks)
	if err != nil {
		var be *compression.BlockError
		if errors.As(err, &be) {
			return errDecompress(be.Err, r.header.Columns[idx[be.ID]].Name)
		}
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "read cancelled")
	}
	for j, res := range results {
		i := idx[j]
		col, err := r.decodeBlock(r.header.Columns[i], res.Data)
		if err != nil {
			return err
		}
		t.Columns[i] = col
	}
	return nil
}

func putBuffers(bufs [][]byte) {
	for _, b := range bufs {
		pool.GlobalBufferPool.Put(b)
	}
}

// VerifySignature compares the stored schema signature with expected. A zero
// on either side means unset and always passes.
func (r *Reader) VerifySignature(expected uint32) error {
	got := r.header.SchemaSignature
	if got == 0 || expected == 0 || got == expected {
		return nil
	}
	return cstmerrors.New(cstmerrors.ErrorTypeValidation, "schema signature mismatch").
		WithDetail("stored", got).
		WithDetail("expected", expected)
}

// Stats returns the decompression counters.
func (r *Reader) Stats() compression.BlockStats {
	return r.opts.compressor.Stats()
}

// Close releases the file handle or mapping opened by Open. Readers built
// with NewReader have nothing to release.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	if err := c.Close(); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeRead, "failed to close file")
	}
	return nil
}
