package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jguan/chatstack/pkg/infra/docker"
	"github.com/jguan/chatstack/pkg/infra/logger"
)

// Detector classifies what is already installed on the host by reading the
// stack directory and asking the Docker daemon about stack containers.
//
// Classification is keyed on the previously generated topology spec, never
// on certificate files alone: a stale or hand-copied certificate must not
// silently switch the inferred state.
type Detector struct {
	// Dir is the stack directory holding the generated artifacts.
	Dir string
	// Docker is optional; when nil, the running check degrades to false.
	Docker docker.Client
}

// NewDetector creates a Detector for the given stack directory.
func NewDetector(dir string, cli docker.Client) *Detector {
	return &Detector{Dir: dir, Docker: cli}
}

// Detect inspects the host and classifies the installation.
func (d *Detector) Detect(ctx context.Context) DeploymentState {
	state := DeploymentState{
		HasCertMaterial: NewIssuer(filepath.Join(d.Dir, CertsDirName)).Present(),
		ServicesRunning: d.servicesRunning(ctx),
	}

	composePath := filepath.Join(d.Dir, ComposeFileName)
	data, err := os.ReadFile(composePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if state.ServicesRunning {
			// Containers without the spec that created them: someone removed
			// or moved the file. Refuse to guess which layout they follow.
			state.State = StateAmbiguous
			state.Reason = "stack containers are running but no topology spec exists at " + composePath
			return state
		}
		state.State = StateFresh
		return state
	case err != nil:
		state.State = StateAmbiguous
		state.Reason = fmt.Sprintf("topology spec unreadable: %v", err)
		return state
	}

	markers, err := parseTopologyMarkers(data)
	if err != nil {
		state.State = StateAmbiguous
		state.Reason = fmt.Sprintf("topology spec does not match any known layout: %v", err)
		return state
	}

	if markers.TLSPortBound && markers.CertMountPresent {
		state.State = StateAdvanced
	} else {
		state.State = StateSimple
	}
	return state
}

func (d *Detector) servicesRunning(ctx context.Context) bool {
	if d.Docker == nil {
		return false
	}
	if err := d.Docker.Ping(ctx); err != nil {
		logger.Warn("docker daemon unreachable, assuming no services running", "error", err)
		return false
	}

	containers, err := d.Docker.ListByNamePrefix(ctx, ContainerPrefix)
	if err != nil {
		logger.Warn("could not list stack containers", "error", err)
		return false
	}
	for _, c := range containers {
		if c.Running() {
			return true
		}
	}
	return false
}
