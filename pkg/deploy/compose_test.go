package deploy

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// parsedCompose unmarshals a generated spec back into loose maps for
// assertions.
func parsedCompose(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func composeService(t *testing.T, doc map[string]any, name string) map[string]any {
	t.Helper()
	services, ok := doc["services"].(map[string]any)
	require.True(t, ok, "services block missing")
	svc, ok := services[name].(map[string]any)
	require.True(t, ok, "service %s missing", name)
	return svc
}

func TestGenerateTopologySpec_Idempotent(t *testing.T) {
	in := Inputs{Mode: ModeAdvanced, Domain: "10.0.0.5", GPU: GPUConfig{Enabled: true, Count: 2}}

	a, err := GenerateTopologySpec(in)
	require.NoError(t, err)
	b, err := GenerateTopologySpec(in)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical inputs must produce byte-identical output")
}

func TestGenerateTopologySpec_ThreeServicesOneNetwork(t *testing.T) {
	out, err := GenerateTopologySpec(simpleInputs())
	require.NoError(t, err)
	doc := parsedCompose(t, out)

	services := doc["services"].(map[string]any)
	assert.Len(t, services, 3)
	for _, name := range []string{ServiceProxy, ServiceWebUI, ServiceBackend} {
		svc := composeService(t, doc, name)
		assert.Equal(t, []any{NetworkName}, svc["networks"])
	}

	networks := doc["networks"].(map[string]any)
	assert.Contains(t, networks, NetworkName)
}

// TestGenerateTopologySpec_VolumeInvariance checks that the named volume set
// is identical across a Fresh→Advanced→Simple→Advanced transition sequence:
// no mode switch may orphan or recreate persisted data.
func TestGenerateTopologySpec_VolumeInvariance(t *testing.T) {
	sequence := []Inputs{
		{Mode: ModeSimple, Domain: "10.0.0.5"},
		{Mode: ModeAdvanced, Domain: "10.0.0.5"},
		{Mode: ModeSimple, Domain: "10.0.0.5"},
		{Mode: ModeAdvanced, Domain: "10.0.0.5"},
	}

	var first []string
	for i, in := range sequence {
		out, err := GenerateTopologySpec(in)
		require.NoError(t, err)

		markers, err := parseTopologyMarkers(out)
		require.NoError(t, err)
		sort.Strings(markers.Volumes)

		if i == 0 {
			first = markers.Volumes
			assert.Equal(t, []string{VolumeModelData, VolumeBackendData}, first)
		} else {
			assert.Equal(t, first, markers.Volumes, "transition %d changed the volume set", i)
		}
	}
}

// TestGenerateTopologySpec_APIPortNeverPublishedUnlessExposed covers the
// monotonic port exposure property for both modes.
func TestGenerateTopologySpec_APIPortNeverPublishedUnlessExposed(t *testing.T) {
	for _, mode := range []Mode{ModeSimple, ModeAdvanced} {
		t.Run(mode.String(), func(t *testing.T) {
			out, err := GenerateTopologySpec(Inputs{Mode: mode, Domain: "10.0.0.5"})
			require.NoError(t, err)
			doc := parsedCompose(t, out)

			backend := composeService(t, doc, ServiceBackend)
			assert.Nil(t, backend["ports"], "backend must have no published ports")

			services := doc["services"].(map[string]any)
			for name, raw := range services {
				svc := raw.(map[string]any)
				ports, _ := svc["ports"].([]any)
				for _, p := range ports {
					assert.NotContains(t, p, fmt.Sprintf("%d", BackendPort),
						"service %s must not publish the backend port", name)
				}
			}
		})
	}
}

func TestGenerateTopologySpec_ExposedAPI(t *testing.T) {
	out, err := GenerateTopologySpec(Inputs{Mode: ModeSimple, Domain: "10.0.0.5", ExposeAPI: true})
	require.NoError(t, err)
	doc := parsedCompose(t, out)

	backend := composeService(t, doc, ServiceBackend)
	assert.Equal(t, []any{"11434:11434"}, backend["ports"])
}

func TestGenerateTopologySpec_GPUReservation(t *testing.T) {
	out, err := GenerateTopologySpec(Inputs{
		Mode:   ModeSimple,
		Domain: "10.0.0.5",
		GPU:    GPUConfig{Enabled: true, Count: 2},
	})
	require.NoError(t, err)
	doc := parsedCompose(t, out)

	backend := composeService(t, doc, ServiceBackend)

	deploy := backend["deploy"].(map[string]any)
	resources := deploy["resources"].(map[string]any)
	reservations := resources["reservations"].(map[string]any)
	devices := reservations["devices"].([]any)
	require.Len(t, devices, 1)

	device := devices[0].(map[string]any)
	assert.Equal(t, "nvidia", device["driver"])
	assert.Equal(t, 2, device["count"])
	assert.Equal(t, []any{"gpu"}, device["capabilities"])

	assert.Contains(t, backend["environment"], "CUDA_VISIBLE_DEVICES=0,1")
}

func TestGenerateTopologySpec_NoGPUBlockWithoutGPU(t *testing.T) {
	out, err := GenerateTopologySpec(simpleInputs())
	require.NoError(t, err)
	doc := parsedCompose(t, out)

	backend := composeService(t, doc, ServiceBackend)
	assert.Nil(t, backend["deploy"])
}

func TestGenerateTopologySpec_ProxyPortsAndMountsFollowMode(t *testing.T) {
	simple, err := GenerateTopologySpec(Inputs{Mode: ModeSimple, Domain: "d"})
	require.NoError(t, err)
	advanced, err := GenerateTopologySpec(Inputs{Mode: ModeAdvanced, Domain: "d"})
	require.NoError(t, err)

	simpleProxy := composeService(t, parsedCompose(t, simple), ServiceProxy)
	assert.Equal(t, []any{"80:80"}, simpleProxy["ports"])
	assert.Len(t, simpleProxy["volumes"], 1)

	advProxy := composeService(t, parsedCompose(t, advanced), ServiceProxy)
	assert.Equal(t, []any{"80:80", "443:443"}, advProxy["ports"])
	assert.Len(t, advProxy["volumes"], 2)
	assert.Contains(t, advProxy["volumes"], "./certs:/etc/nginx/certs:ro")
}

func TestDeviceIndexList(t *testing.T) {
	assert.Equal(t, "0", deviceIndexList(1))
	assert.Equal(t, "0,1", deviceIndexList(2))
	assert.Equal(t, "0,1,2,3", deviceIndexList(4))
}

// ---------------------------------------------------------------------------
// parseTopologyMarkers
// ---------------------------------------------------------------------------

func TestParseTopologyMarkers_AdvancedLayout(t *testing.T) {
	out, err := GenerateTopologySpec(Inputs{Mode: ModeAdvanced, Domain: "d"})
	require.NoError(t, err)

	m, err := parseTopologyMarkers(out)
	require.NoError(t, err)
	assert.True(t, m.TLSPortBound)
	assert.True(t, m.CertMountPresent)
}

func TestParseTopologyMarkers_SimpleLayout(t *testing.T) {
	out, err := GenerateTopologySpec(Inputs{Mode: ModeSimple, Domain: "d"})
	require.NoError(t, err)

	m, err := parseTopologyMarkers(out)
	require.NoError(t, err)
	assert.False(t, m.TLSPortBound)
	assert.False(t, m.CertMountPresent)
}

func TestParseTopologyMarkers_Garbage(t *testing.T) {
	_, err := parseTopologyMarkers([]byte("services: [not a mapping"))
	assert.Error(t, err)

	_, err = parseTopologyMarkers([]byte("version: '3'\n"))
	assert.Error(t, err)

	_, err = parseTopologyMarkers([]byte("services:\n  other: {}\n"))
	assert.Error(t, err)
}
