// Package performance measures the resource cost of CSTM operations for the
// bench command.
package performance

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples process CPU time and memory relative to the
// moment it was created or last reset.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.RWMutex
}

// NewResourceMonitor creates a resource monitor for the current process.
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	rm := &ResourceMonitor{process: proc}
	rm.Reset()
	return rm, nil
}

// Reset starts a new measurement window.
func (rm *ResourceMonitor) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.startCPUTime = 0
	if cpuTime, err := rm.process.Times(); err == nil {
		rm.startCPUTime = cpuTime.Total()
	}
	rm.startTime = time.Now()
}

// ResourceUsage contains resource usage information
type ResourceUsage struct {
	Elapsed               time.Duration
	CPUSeconds            float64
	CPUPercent            float64
	MemoryRSS             uint64
	HeapAlloc             uint64
	SystemMemoryAvailable uint64
	GoroutineCount        int
}

// snapshot returns usage since the start of the window. Fields the
// platform cannot report are left zero.
func (rm *ResourceMonitor) snapshot() *ResourceUsage {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	usage := &ResourceUsage{Elapsed: time.Since(rm.startTime)}

	if cpuTime, err := rm.process.Times(); err == nil {
		usage.CPUSeconds = cpuTime.Total() - rm.startCPUTime
		if s := usage.Elapsed.Seconds(); s > 0 {
			usage.CPUPercent = usage.CPUSeconds / s * 100
		}
	}

	if memInfo, err := rm.process.MemoryInfo(); err == nil {
		usage.MemoryRSS = memInfo.RSS
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryAvailable = vmStat.Available
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	usage.HeapAlloc = memStats.HeapAlloc
	usage.GoroutineCount = runtime.NumGoroutine()

	return usage
}

// Measure runs fn and returns its resource usage.
func (rm *ResourceMonitor) Measure(fn func() error) (*ResourceUsage, error) {
	rm.Reset()
	err := fn()
	return rm.snapshot(), err
}
