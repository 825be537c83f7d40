//go:build linux

package system

import (
	"golang.org/x/sys/unix"
)

// TotalRAMBytes reads total physical memory via sysinfo(2).
func (p *Probe) TotalRAMBytes() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// FreeDiskBytes reads the space available to unprivileged users on the
// filesystem holding path, via statfs(2).
func (p *Probe) FreeDiskBytes(path string) (uint64, error) {
	if path == "" {
		path = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
