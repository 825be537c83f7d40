package deploy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service images. The tags are pinned loosely on purpose: the stack follows
// upstream, and image refresh is an explicit operator action, never part of
// a mode transition.
const (
	proxyImage   = "nginx:1.27-alpine"
	webuiImage   = "ghcr.io/open-webui/open-webui:main"
	backendImage = "ollama/ollama:latest"
)

const roleLabel = "com.chatstack.role"

// The topology document is marshalled from fixed structs rather than maps
// so the output is byte-identical for identical inputs.

type topologyDoc struct {
	Services topologyServices `yaml:"services"`
	Networks topologyNetworks `yaml:"networks"`
	Volumes  topologyVolumes  `yaml:"volumes"`
}

type topologyServices struct {
	Proxy   serviceDef `yaml:"proxy"`
	WebUI   serviceDef `yaml:"webui"`
	Backend serviceDef `yaml:"ollama"`
}

type serviceDef struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Restart       string            `yaml:"restart"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	Environment   []string          `yaml:"environment,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	DependsOn     []string          `yaml:"depends_on,omitempty"`
	Networks      []string          `yaml:"networks"`
	Deploy        *deployResources  `yaml:"deploy,omitempty"`
}

type deployResources struct {
	Resources struct {
		Reservations struct {
			Devices []deviceReservation `yaml:"devices"`
		} `yaml:"reservations"`
	} `yaml:"resources"`
}

type deviceReservation struct {
	Driver       string   `yaml:"driver"`
	Count        int      `yaml:"count"`
	Capabilities []string `yaml:"capabilities"`
}

type topologyNetworks struct {
	Net networkDef `yaml:"chatstack-net"`
}

type networkDef struct {
	Driver string `yaml:"driver"`
}

type topologyVolumes struct {
	WebUIData  struct{} `yaml:"chatstack-webui-data"`
	OllamaData struct{} `yaml:"chatstack-ollama-data"`
}

// GenerateTopologySpec renders the compose document for the given inputs.
// The two named volumes appear identically in every mode so that no
// transition can orphan or recreate persisted data.
func GenerateTopologySpec(in Inputs) ([]byte, error) {
	networks := []string{NetworkName}

	proxy := serviceDef{
		Image:         proxyImage,
		ContainerName: ContainerPrefix + ServiceProxy,
		Restart:       "unless-stopped",
		Labels:        map[string]string{roleLabel: ServiceProxy},
		Ports:         []string{fmt.Sprintf("%d:%d", HTTPPort, HTTPPort)},
		Volumes: []string{
			fmt.Sprintf("./%s:/etc/nginx/conf.d/default.conf:ro", ProxyConfigName),
		},
		DependsOn: []string{ServiceWebUI},
		Networks:  networks,
	}
	if in.Mode == ModeAdvanced {
		proxy.Ports = append(proxy.Ports, fmt.Sprintf("%d:%d", HTTPSPort, HTTPSPort))
		proxy.Volumes = append(proxy.Volumes, fmt.Sprintf("./%s:/etc/nginx/certs:ro", CertsDirName))
	}

	webui := serviceDef{
		Image:         webuiImage,
		ContainerName: ContainerPrefix + ServiceWebUI,
		Restart:       "unless-stopped",
		Labels:        map[string]string{roleLabel: ServiceWebUI},
		Environment: []string{
			fmt.Sprintf("OLLAMA_BASE_URL=http://%s:%d", ServiceBackend, BackendPort),
		},
		Volumes:   []string{VolumeBackendData + ":/app/backend/data"},
		DependsOn: []string{ServiceBackend},
		Networks:  networks,
	}

	backend := serviceDef{
		Image:         backendImage,
		ContainerName: ContainerPrefix + ServiceBackend,
		Restart:       "unless-stopped",
		Labels:        map[string]string{roleLabel: ServiceBackend},
		Environment:   []string{"OLLAMA_HOST=0.0.0.0"},
		Volumes:       []string{VolumeModelData + ":/root/.ollama"},
		Networks:      networks,
	}
	if in.ExposeAPI {
		// Host exposure is opt-in; otherwise the API stays on the private
		// network, reachable only by the web UI.
		backend.Ports = []string{fmt.Sprintf("%d:%d", BackendPort, BackendPort)}
	}
	if in.GPU.Enabled {
		res := &deployResources{}
		res.Resources.Reservations.Devices = []deviceReservation{{
			Driver:       "nvidia",
			Count:        in.GPU.Count,
			Capabilities: []string{"gpu"},
		}}
		backend.Deploy = res
		backend.Environment = append(backend.Environment,
			"CUDA_VISIBLE_DEVICES="+deviceIndexList(in.GPU.Count))
	}

	doc := topologyDoc{
		Services: topologyServices{
			Proxy:   proxy,
			WebUI:   webui,
			Backend: backend,
		},
		Networks: topologyNetworks{
			Net: networkDef{Driver: "bridge"},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, &GenerationError{Artifact: ComposeFileName, Err: err}
	}
	return out, nil
}

// deviceIndexList renders the explicit visible-device list "0,1,...,n-1".
func deviceIndexList(count int) string {
	idx := make([]string, 0, count)
	for i := 0; i < count; i++ {
		idx = append(idx, fmt.Sprintf("%d", i))
	}
	return strings.Join(idx, ",")
}

// topologyMarkers are the facts state detection reads back out of a
// previously generated compose file.
type topologyMarkers struct {
	// TLSPortBound is true when the proxy publishes the HTTPS port.
	TLSPortBound bool
	// CertMountPresent is true when the proxy mounts the certificate dir.
	CertMountPresent bool
	// Volumes is the set of named top-level volumes.
	Volumes []string
}

// parseTopologyMarkers inspects a compose document, which may have been
// written by an older release, so parsing is deliberately loose.
func parseTopologyMarkers(data []byte) (topologyMarkers, error) {
	var doc struct {
		Services map[string]struct {
			Ports   []string `yaml:"ports"`
			Volumes []string `yaml:"volumes"`
		} `yaml:"services"`
		Volumes map[string]any `yaml:"volumes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return topologyMarkers{}, fmt.Errorf("parse topology spec: %w", err)
	}
	if len(doc.Services) == 0 {
		return topologyMarkers{}, fmt.Errorf("topology spec declares no services")
	}

	var m topologyMarkers
	proxy, ok := doc.Services[ServiceProxy]
	if !ok {
		return topologyMarkers{}, fmt.Errorf("topology spec has no %q service", ServiceProxy)
	}
	for _, p := range proxy.Ports {
		if strings.HasPrefix(p, fmt.Sprintf("%d:", HTTPSPort)) {
			m.TLSPortBound = true
		}
	}
	for _, v := range proxy.Volumes {
		if strings.Contains(v, "/etc/nginx/certs") {
			m.CertMountPresent = true
		}
	}
	for name := range doc.Volumes {
		m.Volumes = append(m.Volumes, name)
	}
	return m, nil
}
