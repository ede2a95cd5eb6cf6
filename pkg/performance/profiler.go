package performance

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/cstmerrors"
)

// ProfileType represents the type of profiling to perform
type ProfileType string

const (
	CPUProfile       ProfileType = "cpu"
	MemoryProfile    ProfileType = "memory"
	BlockProfile     ProfileType = "block"
	GoroutineProfile ProfileType = "goroutine"
	TraceProfile     ProfileType = "trace"
)

// ProfileConfig contains configuration for profiling
type ProfileConfig struct {
	// Profile types to collect
	Types []ProfileType

	// Output directory for profile files
	OutputDir string

	// Memory profile rate (0 = default rate)
	MemProfileRate int

	// Block profile rate (0 = disabled)
	BlockProfileRate int
}

// DefaultProfileConfig returns a CPU and memory profile configuration
// writing to dir.
func DefaultProfileConfig(dir string) *ProfileConfig {
	return &ProfileConfig{
		Types:     []ProfileType{CPUProfile, MemoryProfile},
		OutputDir: dir,
	}
}

// Profiler writes pprof profiles and an execution trace around a piece of
// work. Only one Profiler with CPU or trace enabled may run at a time.
type Profiler struct {
	config    *ProfileConfig
	logger    *zap.Logger
	startTime time.Time
	cpuFile   *os.File
	traceFile *os.File
	files     []string
}

// NewProfiler creates a new profiler instance
func NewProfiler(config *ProfileConfig, logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{config: config, logger: logger}
}

// Start begins profiling
func (p *Profiler) Start() error {
	p.startTime = time.Now()

	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to create profile directory").
			WithDetail("dir", p.config.OutputDir)
	}
	if p.config.MemProfileRate > 0 {
		runtime.MemProfileRate = p.config.MemProfileRate
	}
	if p.config.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(p.config.BlockProfileRate)
	}

	for _, t := range p.config.Types {
		switch t {
		case CPUProfile:
			f, err := p.create(t, "prof")
			if err != nil {
				return err
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to start CPU profiling")
			}
			p.cpuFile = f
		case TraceProfile:
			f, err := p.create(t, "out")
			if err != nil {
				return err
			}
			if err := trace.Start(f); err != nil {
				f.Close()
				return cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to start tracing")
			}
			p.traceFile = f
		case MemoryProfile, BlockProfile, GoroutineProfile:
		default:
			return cstmerrors.New(cstmerrors.ErrorTypeConfig, "unknown profile type").
				WithDetail("type", string(t))
		}
	}

	p.logger.Info("profiling started",
		zap.String("output_dir", p.config.OutputDir),
		zap.Any("types", p.config.Types))
	return nil
}

// Stop stops profiling, writes the snapshot profiles and returns the paths
// of every file written.
func (p *Profiler) Stop() ([]string, error) {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		keep(p.cpuFile.Close())
		p.cpuFile = nil
	}
	if p.traceFile != nil {
		trace.Stop()
		keep(p.traceFile.Close())
		p.traceFile = nil
	}

	for _, t := range p.config.Types {
		switch t {
		case MemoryProfile:
			runtime.GC()
			keep(p.snapshot(t, "heap"))
		case BlockProfile:
			keep(p.snapshot(t, "block"))
		case GoroutineProfile:
			keep(p.snapshot(t, "goroutine"))
		}
	}

	p.logger.Info("profiling completed",
		zap.Duration("duration", time.Since(p.startTime)),
		zap.Strings("files", p.files))
	return p.files, firstErr
}

func (p *Profiler) snapshot(t ProfileType, name string) error {
	f, err := p.create(t, "prof")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.Lookup(name).WriteTo(f, 0); err != nil {
		return cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to write profile").
			WithDetail("type", string(t))
	}
	return nil
}

func (p *Profiler) create(t ProfileType, ext string) (*os.File, error) {
	name := filepath.Join(p.config.OutputDir,
		fmt.Sprintf("%s_%s.%s", t, p.startTime.Format("20060102_150405"), ext))
	f, err := os.Create(name)
	if err != nil {
		return nil, cstmerrors.Wrap(err, cstmerrors.ErrorTypeInternal, "failed to create profile file").
			WithDetail("file", name)
	}
	p.files = append(p.files, name)
	return f, nil
}
