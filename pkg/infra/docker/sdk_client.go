package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// SDKClient implements Client using the official Docker Go SDK.
type SDKClient struct {
	cli *dockerclient.Client
}

// NewSDKClient creates an SDKClient configured from environment variables
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH, DOCKER_API_VERSION).
func NewSDKClient() (*SDKClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// Ping verifies the daemon is reachable.
func (c *SDKClient) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker Ping: %w", err)
	}
	return nil
}

// ListByLabel returns all containers carrying label=value.
func (c *SDKClient) ListByLabel(ctx context.Context, label, value string) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", label+"="+value)
	return c.list(ctx, f, "")
}

// ListByNamePrefix returns all containers whose name starts with prefix.
// The daemon's name filter is substring-based, so the prefix is re-checked
// client-side.
func (c *SDKClient) ListByNamePrefix(ctx context.Context, prefix string) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("name", prefix)
	return c.list(ctx, f, prefix)
}

func (c *SDKClient) list(ctx context.Context, f filters.Args, namePrefix string) ([]ContainerInfo, error) {
	summaries, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("docker ContainerList: %w", err)
	}

	out := make([]ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		name := ""
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		if namePrefix != "" && !strings.HasPrefix(name, namePrefix) {
			continue
		}

		info := ContainerInfo{
			ID:    s.ID,
			Name:  name,
			State: s.State,
		}
		for _, p := range s.Ports {
			if p.PublicPort == 0 {
				continue
			}
			port := nat.Port(fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
			info.PublishedPorts = append(info.PublishedPorts,
				fmt.Sprintf("%d:%s/%s", p.PublicPort, port.Port(), port.Proto()))
		}
		out = append(out, info)
	}
	return out, nil
}
