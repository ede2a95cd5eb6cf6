package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

func parallelBlocks(n int) [][]byte {
	raws := make([][]byte, n)
	for i := range raws {
		raws[i] = bytes.Repeat([]byte(fmt.Sprintf("block-%d;", i)), 100+i)
	}
	return raws
}

func TestParallelBlockCompressorMatchesSequential(t *testing.T) {
	bc := NewBlockCompressor(Default)
	pc := NewParallelBlockCompressor(bc, ParallelConfig{NumWorkers: 4}, zaptest.NewLogger(t))
	raws := parallelBlocks(17)

	results, err := pc.CompressBlocks(context.Background(), raws)
	require.NoError(t, err)
	require.Len(t, results, len(raws))

	seq := NewBlockCompressor(Default)
	for i, res := range results {
		assert.Equal(t, i, res.ID)
		want, size, err := seq.Compress(raws[i])
		require.NoError(t, err)
		assert.Equal(t, want, res.Data, "block %d", i)
		assert.Equal(t, size, res.UncompressedSize)
	}

	blocks := make([][]byte, len(results))
	sizes := make([]uint64, len(results))
	for i, res := range results {
		blocks[i] = res.Data
		sizes[i] = res.UncompressedSize
	}
	inflated, err := pc.DecompressBlocks(context.Background(), blocks, sizes)
	require.NoError(t, err)
	for i, res := range inflated {
		assert.Equal(t, raws[i], res.Data)
	}

	n, _ := pc.GetMetrics()
	assert.Equal(t, int64(34), n)
}

func TestParallelBlockCompressorReportsFailingBlock(t *testing.T) {
	bc := NewBlockCompressor(Default)
	pc := NewParallelBlockCompressor(bc, ParallelConfig{NumWorkers: 2}, nil)

	raws := parallelBlocks(5)
	blocks := make([][]byte, len(raws))
	sizes := make([]uint64, len(raws))
	for i, raw := range raws {
		c, size, err := bc.Compress(raw)
		require.NoError(t, err)
		blocks[i], sizes[i] = c, size
	}
	sizes[3]++

	_, err := pc.DecompressBlocks(context.Background(), blocks, sizes)
	require.Error(t, err)

	var be *BlockError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 3, be.ID)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeCorruption))
}

func TestParallelBlockCompressorCancelled(t *testing.T) {
	pc := NewParallelBlockCompressor(NewBlockCompressor(Default), ParallelConfig{NumWorkers: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pc.CompressBlocks(ctx, parallelBlocks(64))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelBlockCompressorEmptyInput(t *testing.T) {
	pc := NewParallelBlockCompressor(NewBlockCompressor(Default), ParallelConfig{}, nil)
	assert.Greater(t, pc.NumWorkers(), 0)

	results, err := pc.CompressBlocks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
