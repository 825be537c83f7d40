// Package nvidia probes NVIDIA GPUs. Device presence and capability are two
// separate checks: presence comes from the kernel driver surface (/proc,
// /dev, lspci), capability from nvidia-smi. A host can pass the first and
// fail the second when the CUDA userland is not installed.
package nvidia

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jguan/chatstack/pkg/infra/hal"
)

const defaultSMIPath = "nvidia-smi"

// Probe implements hal.GPUProbe using the nvidia-smi CLI.
type Probe struct {
	path    string
	timeout time.Duration
}

var _ hal.GPUProbe = (*Probe)(nil)

// NewProbe creates a Probe. An empty path uses nvidia-smi from PATH.
func NewProbe(path string) *Probe {
	if path == "" {
		path = defaultSMIPath
	}
	return &Probe{
		path:    path,
		timeout: 10 * time.Second,
	}
}

// SetTimeout overrides the per-command timeout.
func (p *Probe) SetTimeout(d time.Duration) {
	p.timeout = d
}

type smiOutput struct {
	AttachedGPUs int `xml:"attached_gpus"`
	GPUs         []struct {
		ID            string `xml:"id,attr"`
		ProductName   string `xml:"product_name"`
		ProductBrand  string `xml:"product_brand"`
		FBMemoryUsage struct {
			Total string `xml:"total"`
			Used  string `xml:"used"`
			Free  string `xml:"free"`
		} `xml:"fb_memory_usage"`
	} `xml:"gpu"`
}

// DevicePresent checks the kernel driver surface for an NVIDIA device.
// It deliberately avoids nvidia-smi so a broken userland still registers
// as "device present, capability unknown".
func (p *Probe) DevicePresent(ctx context.Context) bool {
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "nvidia")
}

// Available reports whether nvidia-smi can run at all.
func (p *Probe) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, "--version")
	return cmd.Run() == nil
}

// Query returns the first GPU's product name and framebuffer memory size.
func (p *Probe) Query(ctx context.Context) (string, uint64, error) {
	out, err := p.query(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(out.GPUs) == 0 {
		return "", 0, hal.ErrCommandFailed.WithCause(fmt.Errorf("nvidia-smi reported no GPUs"))
	}

	gpu := out.GPUs[0]
	return gpu.ProductName, parseMemory(gpu.FBMemoryUsage.Total), nil
}

func (p *Probe) query(ctx context.Context) (*smiOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, "-q", "--format=xml")
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, hal.ErrCommandFailed.WithCause(
				fmt.Errorf("nvidia-smi exited with code %d: %s", exitErr.ExitCode(), string(exitErr.Stderr)))
		}
		return nil, hal.ErrCommandFailed.WithCause(err)
	}

	var result smiOutput
	if err := xml.Unmarshal(output, &result); err != nil {
		return nil, hal.ErrCommandFailed.WithCause(
			fmt.Errorf("parse nvidia-smi output: %w", err))
	}

	return &result, nil
}

// parseMemory converts an nvidia-smi memory string like "24576 MiB" to bytes.
func parseMemory(s string) uint64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "MiB")
	s = strings.TrimSpace(s)
	var v uint64
	fmt.Sscanf(s, "%d", &v)
	return v * 1024 * 1024
}
