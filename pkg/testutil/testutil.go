// Package testutil provides testing utilities for cstm
package testutil

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TempFile writes content to name inside a fresh temporary directory and
// returns its path.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// RandomInt32s returns n pseudo-random values that are stable for a seed.
func RandomInt32s(seed int64, n int) []int32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int32, n)
	for i := range out {
		out[i] = rng.Int31() - rng.Int31()
	}
	return out
}

// RandomFloat64s returns n pseudo-random values that are stable for a seed.
func RandomFloat64s(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * 1e6
	}
	return out
}

// RandomStrings returns n words of 0 to maxLen lowercase letters. Entries
// for which the returned mask is false are meant to be null.
func RandomStrings(seed int64, n, maxLen int, nullRate float64) ([]string, []bool) {
	rng := rand.New(rand.NewSource(seed))
	values := make([]string, n)
	valid := make([]bool, n)
	for i := range values {
		if rng.Float64() < nullRate {
			continue
		}
		b := make([]byte, rng.Intn(maxLen+1))
		for j := range b {
			b[j] = byte('a' + rng.Intn(26))
		}
		values[i] = string(b)
		valid[i] = true
	}
	return values, valid
}
