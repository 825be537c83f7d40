package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/jguan/chatstack/pkg/infra/docker"
)

// VerifyServices asks the daemon whether the three stack containers exist
// and run, and whether the proxy publishes the ports the mode requires.
// Findings are warnings, never errors: containers may legitimately still be
// starting when this runs.
func VerifyServices(ctx context.Context, cli docker.Client, in Inputs) []string {
	if cli == nil {
		return nil
	}
	if err := cli.Ping(ctx); err != nil {
		return []string{fmt.Sprintf("could not verify containers, docker daemon unreachable: %v", err)}
	}

	var warnings []string
	for _, role := range []string{ServiceProxy, ServiceWebUI, ServiceBackend} {
		containers, err := cli.ListByLabel(ctx, roleLabel, role)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not inspect the %s container: %v", role, err))
			continue
		}
		if len(containers) == 0 {
			warnings = append(warnings, fmt.Sprintf("no %s container found", role))
			continue
		}

		c := containers[0]
		if !c.Running() {
			warnings = append(warnings, fmt.Sprintf("%s container %s is %s, expected running", role, c.Name, c.State))
			continue
		}
		if role == ServiceProxy {
			warnings = append(warnings, verifyProxyPorts(c, in.Mode)...)
		}
	}
	return warnings
}

// verifyProxyPorts checks the proxy's published ports against the mode:
// HTTP always, HTTPS only in advanced mode.
func verifyProxyPorts(c docker.ContainerInfo, mode Mode) []string {
	required := []int{HTTPPort}
	if mode == ModeAdvanced {
		required = append(required, HTTPSPort)
	}

	var warnings []string
	for _, port := range required {
		prefix := fmt.Sprintf("%d:", port)
		published := false
		for _, p := range c.PublishedPorts {
			if strings.HasPrefix(p, prefix) {
				published = true
				break
			}
		}
		if !published {
			warnings = append(warnings, fmt.Sprintf("proxy container does not publish port %d", port))
		}
	}
	return warnings
}
