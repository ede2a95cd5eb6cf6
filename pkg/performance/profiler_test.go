package performance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

func TestProfiler_WritesProfiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")
	cfg := DefaultProfileConfig(dir)
	cfg.Types = append(cfg.Types, GoroutineProfile, TraceProfile)

	p := NewProfiler(cfg, zaptest.NewLogger(t))
	require.NoError(t, p.Start())

	sum := 0
	for i := 0; i < 1e5; i++ {
		sum += i
	}
	assert.Positive(t, sum)

	files, err := p.Stop()
	require.NoError(t, err)
	require.Len(t, files, 4)
	for _, f := range files {
		assert.Equal(t, dir, filepath.Dir(f))
		st, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, st.Size(), f)
	}
}

func TestProfiler_UnknownType(t *testing.T) {
	p := NewProfiler(&ProfileConfig{Types: []ProfileType{"flame"}, OutputDir: t.TempDir()}, nil)
	err := p.Start()
	require.Error(t, err)
	assert.True(t, cstmerrors.IsType(err, cstmerrors.ErrorTypeConfig))
}
