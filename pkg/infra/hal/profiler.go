// Package hal reads host facts (memory, disk, network, GPU) into a Profile
// value consumed by the compatibility advisor and the deployment planner.
package hal

import (
	"context"

	"github.com/jguan/chatstack/pkg/infra/logger"
)

const bytesPerGiB = 1024 * 1024 * 1024

// SystemProbe reads memory, disk and network facts from the host.
type SystemProbe interface {
	TotalRAMBytes() (uint64, error)
	FreeDiskBytes(path string) (uint64, error)
	PrimaryIP() (string, error)
}

// GPUProbe detects an accelerator and, independently, queries its
// capabilities. DevicePresent must not require the driver query tool.
type GPUProbe interface {
	// DevicePresent reports whether a device exists on the host at all.
	DevicePresent(ctx context.Context) bool
	// Available reports whether the capability query tool can run.
	Available(ctx context.Context) bool
	// Query returns the device product name and memory in bytes.
	Query(ctx context.Context) (name string, memoryBytes uint64, err error)
}

// Profiler assembles a Profile from its probes. Every probe failure is
// logged and degraded to the documented default; Profile never fails.
type Profiler struct {
	system  SystemProbe
	gpu     GPUProbe
	dataDir string
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithSystemProbe overrides the system probe, primarily for tests.
func WithSystemProbe(p SystemProbe) Option {
	return func(pr *Profiler) { pr.system = p }
}

// WithGPUProbe overrides the GPU probe, primarily for tests.
func WithGPUProbe(p GPUProbe) Option {
	return func(pr *Profiler) { pr.gpu = p }
}

// NewProfiler creates a Profiler measuring disk space at dataDir.
func NewProfiler(dataDir string, opts ...Option) *Profiler {
	p := &Profiler{dataDir: dataDir}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Profile reads all host facts. It has no side effects beyond the host
// queries themselves and always returns a usable value.
func (p *Profiler) Profile(ctx context.Context) Profile {
	var out Profile

	if p.system != nil {
		if ram, err := p.system.TotalRAMBytes(); err != nil {
			logger.Warn("could not read total RAM, assuming minimal", "error", err)
		} else {
			out.RAMGB = int(ram / bytesPerGiB)
		}

		if free, err := p.system.FreeDiskBytes(p.dataDir); err != nil {
			logger.Warn("could not read free disk space", "path", p.dataDir, "error", err)
		} else {
			out.DiskFreeGB = int(free / bytesPerGiB)
		}

		if ip, err := p.system.PrimaryIP(); err != nil {
			logger.Warn("could not determine primary IP", "error", err)
		} else {
			out.PrimaryIP = ip
		}
	}

	if p.gpu != nil {
		out.GPUPresent = p.gpu.DevicePresent(ctx)

		if p.gpu.Available(ctx) {
			name, mem, err := p.gpu.Query(ctx)
			if err != nil {
				logger.Warn("GPU capability query failed", "error", err)
			} else {
				// The query tool responding is itself presence evidence.
				out.GPUPresent = true
				out.GPUName = name
				out.VRAMGB = int(mem / bytesPerGiB)
				out.VRAMKnown = true
			}
		} else if out.GPUPresent {
			logger.Warn("GPU detected but driver query tool unavailable, VRAM unknown")
		}
	}

	return out
}
