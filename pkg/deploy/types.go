// Package deploy generates the reverse-proxy and compose artifacts for the
// chat stack, detects what is already installed on the host, and drives
// transitions between deployment modes.
package deploy

import (
	"fmt"
	"strings"
)

// Service and artifact names shared across generation, detection and
// verification. Renaming any of these is a breaking change for hosts with
// an existing installation.
const (
	ServiceProxy   = "proxy"
	ServiceWebUI   = "webui"
	ServiceBackend = "ollama"

	ContainerPrefix = "chatstack-"

	NetworkName = "chatstack-net"

	// The two named volumes that persist across every mode transition.
	VolumeBackendData = "chatstack-webui-data"
	VolumeModelData   = "chatstack-ollama-data"

	ComposeFileName = "docker-compose.yml"
	ProxyConfigName = "nginx.conf"
	CertsDirName    = "certs"

	CertFileName = "chatstack.crt"
	KeyFileName  = "chatstack.key"

	HTTPPort    = 80
	HTTPSPort   = 443
	WebUIPort   = 8080
	BackendPort = 11434
)

// Mode is the deployment variant: plain HTTP or TLS-terminated HTTPS.
type Mode int

const (
	ModeSimple Mode = iota
	ModeAdvanced
)

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeAdvanced:
		return "advanced"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name. Accepts "simple" and "advanced",
// case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return ModeSimple, nil
	case "advanced":
		return ModeAdvanced, nil
	default:
		return ModeSimple, &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q (valid: simple, advanced)", s)}
	}
}

// GPUConfig declares how many accelerators the inference backend reserves.
// Count is only meaningful when Enabled.
type GPUConfig struct {
	Enabled bool
	Count   int
}

// CertificateParams are the X.509 subject fields for the issued pair.
// CommonName is bound to the chosen domain or IP.
type CertificateParams struct {
	Country    string
	State      string
	City       string
	Org        string
	OrgUnit    string
	CommonName string
}

// DefaultCertificateParams returns the subject used when the operator
// declares nothing. The common name is filled from the domain at issue time.
func DefaultCertificateParams() CertificateParams {
	return CertificateParams{
		Country: "US",
		State:   "State",
		City:    "City",
		Org:     "ChatStack",
		OrgUnit: "IT",
	}
}

// withDefaults fills empty subject fields and binds the common name.
func (c CertificateParams) withDefaults(domain string) CertificateParams {
	def := DefaultCertificateParams()
	if c.Country == "" {
		c.Country = def.Country
	}
	if c.State == "" {
		c.State = def.State
	}
	if c.City == "" {
		c.City = def.City
	}
	if c.Org == "" {
		c.Org = def.Org
	}
	if c.OrgUnit == "" {
		c.OrgUnit = def.OrgUnit
	}
	if c.CommonName == "" {
		c.CommonName = domain
	}
	return c
}

// Inputs is the complete declared input surface for one provisioning run.
// It is built once, before any decision logic runs, and passed by value:
// no component reads ambient state.
type Inputs struct {
	Mode      Mode
	Domain    string
	GPU       GPUConfig
	ExposeAPI bool
	Cert      CertificateParams
}

// Validate rejects malformed inputs before any artifact is generated.
func (in Inputs) Validate() error {
	domain := strings.TrimSpace(in.Domain)
	if domain == "" {
		return &ValidationError{Field: "domain", Message: "domain or IP must not be empty"}
	}
	if strings.ContainsAny(domain, " \t\n") {
		return &ValidationError{Field: "domain", Message: fmt.Sprintf("domain %q contains whitespace", in.Domain)}
	}
	if in.GPU.Enabled && in.GPU.Count < 1 {
		return &ValidationError{Field: "gpu.count", Message: fmt.Sprintf("GPU count must be at least 1, got %d", in.GPU.Count)}
	}
	return nil
}

// State classifies what is already installed on the host.
type State int

const (
	// StateFresh means no prior installation was found.
	StateFresh State = iota
	// StateSimple means a prior HTTP-only installation exists.
	StateSimple
	// StateAdvanced means a prior TLS installation exists.
	StateAdvanced
	// StateAmbiguous means the host does not cleanly match any known
	// layout; the orchestrator refuses to guess.
	StateAmbiguous
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateSimple:
		return "existing-simple"
	case StateAdvanced:
		return "existing-advanced"
	case StateAmbiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeploymentState is the full detection result.
type DeploymentState struct {
	State State
	// HasCertMaterial reports whether both certificate files exist. A stale
	// certificate alone never promotes the state to advanced.
	HasCertMaterial bool
	// ServicesRunning reports whether any stack container is running.
	ServicesRunning bool
	// Reason explains an ambiguous classification.
	Reason string
}

// Artifacts are the two generated documents. They are always replaced
// wholesale, never patched in place.
type Artifacts struct {
	ProxyConfig []byte
	Compose     []byte
}

// Generate produces both artifacts from one set of inputs. It is a pure
// function: identical inputs yield byte-identical artifacts.
func Generate(in Inputs) (Artifacts, error) {
	if err := in.Validate(); err != nil {
		return Artifacts{}, err
	}

	proxy, err := GenerateProxyConfig(in)
	if err != nil {
		return Artifacts{}, err
	}
	compose, err := GenerateTopologySpec(in)
	if err != nil {
		return Artifacts{}, err
	}
	return Artifacts{ProxyConfig: proxy, Compose: compose}, nil
}
