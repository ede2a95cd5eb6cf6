package compression

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zlib"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

const maxInitialBlockBuffer = 64 << 20

// BlockStats holds cumulative byte counts for a BlockCompressor.
type BlockStats struct {
	BlocksCompressed       int64
	BytesIn                int64 // uncompressed bytes passed to Compress
	BytesOut               int64 // compressed bytes produced by Compress
	BlocksDecompressed     int64
	CompressedBytesRead    int64 // compressed bytes passed to Decompress
	DecompressedBytesTotal int64 // bytes produced by Decompress
}

// Ratio returns compressed/uncompressed for the compress direction, or 0
// when nothing has been compressed.
func (s BlockStats) Ratio() float64 {
	if s.BytesIn == 0 {
		return 0
	}
	return float64(s.BytesOut) / float64(s.BytesIn)
}

// BlockCompressor compresses column blocks as independent zlib streams.
// It is safe for concurrent use.
type BlockCompressor struct {
	level      Level
	writerPool sync.Pool

	blocksCompressed   atomic.Int64
	bytesIn            atomic.Int64
	bytesOut           atomic.Int64
	blocksDecompressed atomic.Int64
	compressedRead     atomic.Int64
	decompressedTotal  atomic.Int64
}

// NewBlockCompressor creates a block compressor at the given level.
func NewBlockCompressor(level Level) *BlockCompressor {
	zlevel := mapDeflateLevel(level)
	bc := &BlockCompressor{level: level}
	bc.writerPool.New = func() interface{} {
		w, _ := zlib.NewWriterLevel(nil, zlevel)
		return w
	}
	return bc
}

// Level returns the configured compression level.
func (bc *BlockCompressor) Level() Level {
	return bc.level
}

// Compress returns the zlib stream for raw and the uncompressed size.
func (bc *BlockCompressor) Compress(raw []byte) ([]byte, uint64, error) {
	w := bc.writerPool.Get().(*zlib.Writer)
	defer bc.writerPool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, 0, cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to compress block")
	}
	if err := w.Close(); err != nil {
		return nil, 0, cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to finish compressed block")
	}

	out := buf.Bytes()
	bc.blocksCompressed.Add(1)
	bc.bytesIn.Add(int64(len(raw)))
	bc.bytesOut.Add(int64(len(out)))
	return out, uint64(len(raw)), nil
}

// Decompress inflates a zlib stream that must produce exactly expectedSize
// bytes. At most expectedSize+1 bytes are inflated, so an oversized stream is
// detected without being fully expanded.
func (bc *BlockCompressor) Decompress(compressed []byte, expectedSize uint64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeCorruption, "malformed compressed block").
			WithDetail("compressed_size", len(compressed))
	}
	defer r.Close()

	// A corrupt header can claim any size; grow past this only as data arrives.
	initial := expectedSize
	if initial > maxInitialBlockBuffer {
		initial = maxInitialBlockBuffer
	}
	out := bytes.NewBuffer(make([]byte, 0, initial))
	n, err := io.Copy(out, io.LimitReader(r, int64(expectedSize)+1))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeCorruption, "failed to decompress block").
			WithDetail("compressed_size", len(compressed)).
			WithDetail("expected_size", expectedSize)
	}
	if uint64(n) != expectedSize {
		return nil, cstmerrors.New(cstmerrors.ErrorTypeCorruption, "decompressed size mismatch").
			WithDetail("expected_size", expectedSize).
			WithDetail("actual_size", n)
	}

	bc.blocksDecompressed.Add(1)
	bc.compressedRead.Add(int64(len(compressed)))
	bc.decompressedTotal.Add(n)
	return out.Bytes(), nil
}

// Stats returns a snapshot of the cumulative counters.
func (bc *BlockCompressor) Stats() BlockStats {
	return BlockStats{
		BlocksCompressed:       bc.blocksCompressed.Load(),
		BytesIn:                bc.bytesIn.Load(),
		BytesOut:               bc.bytesOut.Load(),
		BlocksDecompressed:     bc.blocksDecompressed.Load(),
		CompressedBytesRead:    bc.compressedRead.Load(),
		DecompressedBytesTotal: bc.decompressedTotal.Load(),
	}
}
