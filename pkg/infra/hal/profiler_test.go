package hal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSystemProbe struct {
	ram     uint64
	ramErr  error
	disk    uint64
	diskErr error
	ip      string
	ipErr   error
}

func (f *fakeSystemProbe) TotalRAMBytes() (uint64, error)            { return f.ram, f.ramErr }
func (f *fakeSystemProbe) FreeDiskBytes(path string) (uint64, error) { return f.disk, f.diskErr }
func (f *fakeSystemProbe) PrimaryIP() (string, error)                { return f.ip, f.ipErr }

type fakeGPUProbe struct {
	present   bool
	available bool
	name      string
	memory    uint64
	queryErr  error
}

func (f *fakeGPUProbe) DevicePresent(ctx context.Context) bool { return f.present }
func (f *fakeGPUProbe) Available(ctx context.Context) bool     { return f.available }
func (f *fakeGPUProbe) Query(ctx context.Context) (string, uint64, error) {
	return f.name, f.memory, f.queryErr
}

const gib = uint64(1024 * 1024 * 1024)

func TestProfile_FullHost(t *testing.T) {
	p := NewProfiler("/var/lib/chatstack",
		WithSystemProbe(&fakeSystemProbe{ram: 32 * gib, disk: 200 * gib, ip: "10.0.0.5"}),
		WithGPUProbe(&fakeGPUProbe{present: true, available: true, name: "NVIDIA RTX 4090", memory: 24 * gib}),
	)

	profile := p.Profile(context.Background())
	assert.Equal(t, 32, profile.RAMGB)
	assert.Equal(t, 200, profile.DiskFreeGB)
	assert.Equal(t, "10.0.0.5", profile.PrimaryIP)
	assert.True(t, profile.GPUPresent)
	assert.Equal(t, "NVIDIA RTX 4090", profile.GPUName)
	assert.Equal(t, 24, profile.VRAMGB)
	assert.True(t, profile.VRAMKnown)
	assert.True(t, profile.GPUUsable())
}

// Every probe failure degrades to the documented zero value; Profile itself
// never fails.
func TestProfile_AllProbesFailing(t *testing.T) {
	boom := errors.New("probe exploded")
	p := NewProfiler("/data",
		WithSystemProbe(&fakeSystemProbe{ramErr: boom, diskErr: boom, ipErr: boom}),
		WithGPUProbe(&fakeGPUProbe{}),
	)

	profile := p.Profile(context.Background())
	assert.Zero(t, profile.RAMGB)
	assert.Zero(t, profile.DiskFreeGB)
	assert.Empty(t, profile.PrimaryIP)
	assert.False(t, profile.GPUPresent)
	assert.False(t, profile.VRAMKnown)
	assert.False(t, profile.GPUUsable())
}

// A device can be present while the driver query tool is missing. The GPU
// stays visible but unusable for tier selection.
func TestProfile_GPUPresentDriverMissing(t *testing.T) {
	p := NewProfiler("/data",
		WithSystemProbe(&fakeSystemProbe{ram: 16 * gib, disk: 50 * gib, ip: "10.0.0.5"}),
		WithGPUProbe(&fakeGPUProbe{present: true, available: false}),
	)

	profile := p.Profile(context.Background())
	assert.True(t, profile.GPUPresent)
	assert.False(t, profile.VRAMKnown)
	assert.Zero(t, profile.VRAMGB)
	assert.False(t, profile.GPUUsable())
}

// A responding query tool is presence evidence on its own, even when the
// device files were not found.
func TestProfile_QuerySuccessImpliesPresence(t *testing.T) {
	p := NewProfiler("/data",
		WithGPUProbe(&fakeGPUProbe{present: false, available: true, name: "Tesla T4", memory: 16 * gib}),
	)

	profile := p.Profile(context.Background())
	assert.True(t, profile.GPUPresent)
	assert.Equal(t, 16, profile.VRAMGB)
	assert.True(t, profile.VRAMKnown)
}

func TestProfile_QueryFailureKeepsVRAMUnknown(t *testing.T) {
	p := NewProfiler("/data",
		WithGPUProbe(&fakeGPUProbe{present: true, available: true, queryErr: errors.New("NVML error")}),
	)

	profile := p.Profile(context.Background())
	assert.True(t, profile.GPUPresent)
	assert.False(t, profile.VRAMKnown)
}

func TestProfile_NilProbes(t *testing.T) {
	profile := NewProfiler("/data").Profile(context.Background())
	assert.Equal(t, Profile{}, profile)
}

func TestProfile_SubGiBRoundsDown(t *testing.T) {
	p := NewProfiler("/data",
		WithSystemProbe(&fakeSystemProbe{ram: 16*gib - 1, disk: gib / 2}),
	)

	profile := p.Profile(context.Background())
	assert.Equal(t, 15, profile.RAMGB)
	assert.Zero(t, profile.DiskFreeGB)
}
