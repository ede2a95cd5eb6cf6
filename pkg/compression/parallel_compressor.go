package compression

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// CompressedBlock is the result of compressing or decompressing one block.
// ID is the block's position in the input.
type CompressedBlock struct {
	ID               int
	Data             []byte
	UncompressedSize uint64
	Error            error
}

// BlockError reports which block failed in a parallel run.
type BlockError struct {
	ID  int
	Err error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d: %v", e.ID, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// ParallelConfig configures parallel block compression
type ParallelConfig struct {
	NumWorkers int // 0 = auto (NumCPU)
}

// ParallelBlockCompressor fans independent blocks out to a fixed number of
// workers sharing one BlockCompressor. Results are returned in input order.
type ParallelBlockCompressor struct {
	logger     *zap.Logger
	bc         *BlockCompressor
	numWorkers int

	// Metrics
	blocksProcessed int64
	bytesProcessed  int64
}

// NewParallelBlockCompressor creates a parallel compressor around bc.
func NewParallelBlockCompressor(bc *BlockCompressor, config ParallelConfig, logger *zap.Logger) *ParallelBlockCompressor {
	if config.NumWorkers <= 0 {
		config.NumWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParallelBlockCompressor{
		logger:     logger,
		bc:         bc,
		numWorkers: config.NumWorkers,
	}
}

// NumWorkers returns the worker count.
func (pc *ParallelBlockCompressor) NumWorkers() int {
	return pc.numWorkers
}

// CompressBlocks compresses every raw block. The first error cancels the
// remaining work and is returned as a *BlockError.
func (pc *ParallelBlockCompressor) CompressBlocks(ctx context.Context, raws [][]byte) ([]CompressedBlock, error) {
	return pc.run(ctx, len(raws), func(id int) CompressedBlock {
		out, size, err := pc.bc.Compress(raws[id])
		atomic.AddInt64(&pc.bytesProcessed, int64(len(raws[id])))
		return CompressedBlock{ID: id, Data: out, UncompressedSize: size, Error: err}
	})
}

// DecompressBlocks inflates every block, each of which must produce exactly
// sizes[i] bytes.
func (pc *ParallelBlockCompressor) DecompressBlocks(ctx context.Context, blocks [][]byte, sizes []uint64) ([]CompressedBlock, error) {
	return pc.run(ctx, len(blocks), func(id int) CompressedBlock {
		out, err := pc.bc.Decompress(blocks[id], sizes[id])
		atomic.AddInt64(&pc.bytesProcessed, int64(len(blocks[id])))
		return CompressedBlock{ID: id, Data: out, UncompressedSize: sizes[id], Error: err}
	})
}

func (pc *ParallelBlockCompressor) run(ctx context.Context, n int, fn func(id int) CompressedBlock) ([]CompressedBlock, error) {
	results := make([]CompressedBlock, n)
	if n == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := pc.numWorkers
	if workers > n {
		workers = n
	}

	// Create channels for work distribution
	idChan := make(chan int, workers)
	resultChan := make(chan CompressedBlock, n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go pc.worker(ctx, &wg, idChan, resultChan, fn)
	}

	// Distribute work
	go func() {
		defer close(idChan)
		for id := 0; id < n; id++ {
			select {
			case idChan <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	received := 0
	for result := range resultChan {
		if result.Error != nil && firstErr == nil {
			firstErr = &BlockError{ID: result.ID, Err: result.Error}
			cancel() // Cancel all workers
		}
		results[result.ID] = result
		received++
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if received != n {
		// Workers stopped early because the caller's context ended.
		return nil, ctx.Err()
	}

	atomic.AddInt64(&pc.blocksProcessed, int64(n))
	pc.logger.Debug("parallel blocks processed",
		zap.Int("blocks", n),
		zap.Int("workers", workers))
	return results, nil
}

func (pc *ParallelBlockCompressor) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	idChan <-chan int,
	resultChan chan<- CompressedBlock,
	fn func(id int) CompressedBlock,
) {
	defer wg.Done()
	for id := range idChan {
		if ctx.Err() != nil {
			return
		}
		resultChan <- fn(id)
	}
}

// GetMetrics returns the cumulative blocks completed and input bytes handled.
func (pc *ParallelBlockCompressor) GetMetrics() (blocksProcessed, bytesProcessed int64) {
	return atomic.LoadInt64(&pc.blocksProcessed), atomic.LoadInt64(&pc.bytesProcessed)
}
