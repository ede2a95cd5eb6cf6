package cstm

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
	"github.com/ajitpratap0/cstm/pkg/metrics"
	"github.com/ajitpratap0/cstm/pkg/observability"
)

// Sink is the destination of a Writer. Blocks are appended with Write and
// the final header is patched in place with WriteAt.
type Sink interface {
	io.Writer
	io.WriterAt
}

type writerState int

const (
	stateInit writerState = iota
	stateHeaderReserved
	stateWritingBlocks
	statePatchingHeader
	stateClosed
	stateFailed
)

func (s writerState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateHeaderReserved:
		return "header_reserved"
	case stateWritingBlocks:
		return "writing_blocks"
	case statePatchingHeader:
		return "patching_header"
	case stateClosed:
		return "closed"
	default:
		return "failed"
	}
}

// Writer writes one CSTM file to a Sink. A Writer is single-use and not safe
// for concurrent use.
type Writer struct {
	sink   Sink
	opts   *options
	log    *zap.Logger
	state  writerState
	offset uint64
	header *Header
}

// NewWriter returns a Writer for sink. Nothing is written until Write.
func NewWriter(sink Sink, opts ...Option) *Writer {
	o := newOptions(opts)
	return &Writer{
		sink: sink,
		opts: o,
		log:  o.logger,
	}
}

// Write writes the preamble, a skeleton header, one compressed block per
// column and then patches the final header over the skeleton. Columns must
// all have the same length. On failure the sink holds a partial file that
// the caller should discard.
func (w *Writer) Write(ctx context.Context, columns []Column) (err error) {
	if w.state != stateInit {
		return cstmerrors.New(cstmerrors.ErrorTypeWrite, "writer already used").
			WithDetail("state", w.state.String())
	}

	ctx, span := observability.StartSpan(ctx, "cstm.Write")
	span.SetAttribute("columns", len(columns))
	timer := metrics.NewTimer(metrics.OpWrite)
	defer func() {
		timer.ObserveDuration()
		if err != nil {
			w.state = stateFailed
			metrics.RecordError(metrics.OpWrite, string(cstmerrors.TypeOf(err)))
		}
		span.End(err)
	}()

	skeleton, err := w.skeleton(columns)
	if err != nil {
		return err
	}
	span.SetAttribute("rows", skeleton.TotalRows)

	skeletonBytes, err := EncodeHeader(skeleton)
	if err != nil {
		return err
	}
	if err := w.write(EncodePreamble(uint64(len(skeletonBytes))), "failed to write preamble"); err != nil {
		return err
	}
	if err := w.write(skeletonBytes, "failed to write header"); err != nil {
		return err
	}
	w.state = stateHeaderReserved

	final := skeleton.Clone()
	w.state = stateWritingBlocks
	if pc := w.opts.parallel(); pc != nil {
		err = w.writeBlocksParallel(ctx, pc, columns, final)
	} else {
		err = w.writeBlocks(ctx, columns, final)
	}
	if err != nil {
		return err
	}

	w.state = statePatchingHeader
	finalBytes, err := EncodeHeader(final)
	if err != nil {
		return err
	}
	if len(finalBytes) != len(skeletonBytes) {
		return cstmerrors.New(cstmerrors.ErrorTypeInternal, "final header length differs from skeleton").
			WithDetail("skeleton", len(skeletonBytes)).
			WithDetail("final", len(finalBytes))
	}
	if _, err := w.sink.WriteAt(finalBytes, PreambleSize); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to patch header")
	}

	w.header = final
	w.state = stateClosed
	metrics.RowsTotal.WithLabelValues(metrics.OpWrite).Add(float64(final.TotalRows))
	w.log.Info("file written",
		zap.Int("columns", len(final.Columns)),
		zap.Uint64("rows", final.TotalRows),
		zap.Uint64("bytes", w.offset))
	return nil
}

// skeleton validates columns and builds the header with every offset and
// size zeroed.
func (w *Writer) skeleton(columns []Column) (*Header, error) {
	h := &Header{
		SchemaSignature: w.opts.schemaSignature,
		Columns:         make([]ColumnDescriptor, len(columns)),
	}
	if w.opts.autoSignature {
		h.SchemaSignature = SchemaSignature(columns)
	}

	for i, c := range columns {
		if err := c.validate(); err != nil {
			return nil, err
		}
		n := uint64(c.Len())
		if i == 0 {
			h.TotalRows = n
		} else if n != h.TotalRows {
			return nil, cstmerrors.New(cstmerrors.ErrorTypeValidation, "column lengths differ").
				WithDetail("column", c.Name).
				WithDetail("length", n).
				WithDetail("expected", h.TotalRows)
		}
		h.Columns[i] = ColumnDescriptor{Name: c.Name, Type: c.Type, NumValues: n}
	}
	return h, nil
}

func (w *Writer) writeBlocks(ctx context.Context, columns []Column, h *Header) error {
	for i, c := range columns {
		if err := ctx.Err(); err != nil {
			return errWriteCancelled(err, c.Name)
		}
		raw, err := EncodeColumn(c)
		if err != nil {
			return err
		}
		compressed, size, err := w.opts.compressor.Compress(raw)
		if err != nil {
			return err
		}
		if err := w.writeBlock(c, &h.Columns[i], compressed, size); err != nil {
			return err
		}
	}
	return nil
}

// writeBlocksParallel encodes every column, compresses the blocks
// concurrently and then appends them in column order.
func (w *Writer) writeBlocksParallel(ctx context.Context, pc *compression.ParallelBlockCompressor, columns []Column, h *Header) error {
	raws := make([][]byte, len(columns))
	for i, c := range columns {
		raw, err := EncodeColumn(c)
		if err != nil {
			return err
		}
		raws[i] = raw
	}

	blocks, err := pc.CompressBlocks(ctx, raws)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errWriteCancelled(ctxErr, "")
		}
		return err
	}
	for i, c := range columns {
		if err := w.writeBlock(c, &h.Columns[i], blocks[i].Data, blocks[i].UncompressedSize); err != nil {
			return err
		}
	}
	return nil
}

func errWriteCancelled(err error, column string) error {
	e := cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "write cancelled")
	if column != "" {
		e = e.WithDetail("column", column)
	}
	return e
}

// writeBlock appends one compressed block and records its location in d.
func (w *Writer) writeBlock(c Column, d *ColumnDescriptor, compressed []byte, size uint64) error {
	d.BlockOffset = w.offset
	d.CompressedSize = uint64(len(compressed))
	d.UncompressedSize = size
	if err := w.write(compressed, "failed to write block"); err != nil {
		return err.WithDetail("column", c.Name)
	}

	metrics.RecordBlock(metrics.OpWrite, d.CompressedSize, d.UncompressedSize)
	w.log.Debug("block written",
		zap.String("column", c.Name),
		zap.Stringer("type", c.Type),
		zap.Uint64("offset", d.BlockOffset),
		zap.Uint64("compressed", d.CompressedSize),
		zap.Uint64("uncompressed", d.UncompressedSize))
	return nil
}

// write appends b to the sink and advances the running offset.
func (w *Writer) write(b []byte, msg string) *cstmerrors.Error {
	n, err := w.sink.Write(b)
	w.offset += uint64(n)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, msg).
			WithDetail("offset", w.offset)
	}
	return nil
}

// Header returns a copy of the final header after a successful Write.
func (w *Writer) Header() *Header {
	if w.header == nil {
		return nil
	}
	return w.header.Clone()
}

// Stats returns the compressor counters.
func (w *Writer) Stats() compression.BlockStats {
	return w.opts.compressor.Stats()
}

// WriteFile creates or truncates path and writes columns to it. The returned
// header describes the written file.
func WriteFile(ctx context.Context, path string, columns []Column, opts ...Option) (*Header, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to create file").
			WithDetail("path", path)
	}

	w := NewWriter(f, opts...)
	if err := w.Write(ctx, columns); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeWrite, "failed to close file").
			WithDetail("path", path)
	}
	return w.Header(), nil
}
