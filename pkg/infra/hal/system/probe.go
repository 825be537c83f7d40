// Package system reads memory, disk and network facts from the host OS.
package system

import (
	"fmt"
	"net"

	"github.com/jguan/chatstack/pkg/infra/hal"
)

// Probe implements hal.SystemProbe using OS syscalls.
type Probe struct{}

var _ hal.SystemProbe = (*Probe)(nil)

// NewProbe creates a system probe.
func NewProbe() *Probe {
	return &Probe{}
}

// PrimaryIP returns the source address of the default outbound route.
// No packet is sent; the UDP dial only resolves the local endpoint.
func (p *Probe) PrimaryIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("resolve outbound interface: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
