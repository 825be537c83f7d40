//go:build !linux

package system

import (
	"github.com/jguan/chatstack/pkg/infra/hal"
)

// The stack targets Linux hosts; on other platforms memory and disk probes
// degrade so the profiler falls back to its documented defaults.

func (p *Probe) TotalRAMBytes() (uint64, error) {
	return 0, hal.ErrNotSupported
}

func (p *Probe) FreeDiskBytes(path string) (uint64, error) {
	return 0, hal.ErrNotSupported
}
