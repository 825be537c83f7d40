// Package docker inspects the containers of an existing stack installation.
// Creating and recreating containers is the compose runner's job; this
// client only observes.
package docker

import "context"

// ContainerInfo is the subset of container facts state detection and
// verification need.
type ContainerInfo struct {
	// ID is the container ID.
	ID string
	// Name is the container name without the leading slash.
	Name string
	// State is the lifecycle state, e.g. "running", "exited".
	State string
	// PublishedPorts are host-published ports as "hostPort:containerPort/proto".
	PublishedPorts []string
}

// Running reports whether the container is in the running state.
func (c ContainerInfo) Running() bool {
	return c.State == "running"
}

// Client is the read-only view of the Docker daemon the provisioner uses.
type Client interface {
	// Ping verifies the daemon is reachable.
	Ping(ctx context.Context) error

	// ListByLabel returns all containers (running or not) carrying the
	// given label value.
	ListByLabel(ctx context.Context, label, value string) ([]ContainerInfo, error)

	// ListByNamePrefix returns all containers whose name starts with prefix.
	ListByNamePrefix(ctx context.Context, prefix string) ([]ContainerInfo, error)
}

// Compile-time assertion: SDKClient must implement Client.
var _ Client = (*SDKClient)(nil)
