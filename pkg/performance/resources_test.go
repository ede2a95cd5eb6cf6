package performance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceMonitor_Measure(t *testing.T) {
	rm, err := NewResourceMonitor()
	require.NoError(t, err)

	usage, err := rm.Measure(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage.Elapsed, 5*time.Millisecond)
	assert.GreaterOrEqual(t, usage.CPUSeconds, 0.0)
	assert.Greater(t, usage.HeapAlloc, uint64(0))
	assert.Greater(t, usage.GoroutineCount, 0)
}

func TestResourceMonitor_PropagatesError(t *testing.T) {
	rm, err := NewResourceMonitor()
	require.NoError(t, err)

	boom := errors.New("boom")
	usage, err := rm.Measure(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, usage)
}
