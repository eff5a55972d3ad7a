package docker

import (
	"context"
)

// Client abstracts the Docker daemon queries that feed the console tables.
// All methods are reads; rows come back in a deterministic order so that
// identical daemon state yields identical snapshots.
type Client interface {
	// ContainerList returns all containers, including stopped ones.
	ContainerList(ctx context.Context) ([]Container, error)

	// ImageList returns all local images.
	ImageList(ctx context.Context) ([]Image, error)

	// NetworkList returns all networks.
	NetworkList(ctx context.Context) ([]Network, error)

	// VolumeList returns all volumes.
	VolumeList(ctx context.Context) ([]Volume, error)

	// ConfigList returns swarm configs. Daemons that are not swarm managers
	// return an empty list, not an error.
	ConfigList(ctx context.Context) ([]Config, error)

	// Events streams resource lifecycle events until ctx is cancelled. Both
	// channels are closed when the stream ends.
	Events(ctx context.Context) (<-chan Event, <-chan error)

	// Close releases any resources held by the client.
	Close() error
}

// NewClient returns an SDKClient for host, or for the environment
// (DOCKER_HOST, default socket) when host is empty.
func NewClient(host string) (Client, error) {
	if host != "" {
		return NewSDKClientWithHost(host)
	}
	return NewSDKClient()
}
