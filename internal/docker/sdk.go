package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// parseHealthFromStatus extracts the health status from Docker's human-readable
// Status string (e.g. "Up 2 hours (unhealthy)"). Returns "healthy", "unhealthy",
// "starting", or "" if no healthcheck is configured.
func parseHealthFromStatus(state, status string) string {
	if state != "running" || status == "" {
		return ""
	}
	lower := strings.ToLower(status)
	if strings.HasSuffix(lower, "(unhealthy)") {
		return "unhealthy"
	}
	if strings.HasSuffix(lower, "(healthy)") {
		return "healthy"
	}
	if strings.HasSuffix(lower, "(health: starting)") {
		return "starting"
	}
	return ""
}

// SDKClient implements Client using the Docker Engine SDK.
type SDKClient struct {
	cli *client.Client
}

// NewSDKClient creates an SDKClient that connects to the Docker daemon
// via the default socket (DOCKER_HOST or /var/run/docker.sock).
func NewSDKClient() (*SDKClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker sdk: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// NewSDKClientWithHost creates an SDKClient connected to a specific Docker host.
// The host parameter should be a full URI like "unix:///path/to/docker.sock".
func NewSDKClientWithHost(host string) (*SDKClient, error) {
	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker sdk with host: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

func (s *SDKClient) ContainerList(ctx context.Context) ([]Container, error) {
	raw, err := s.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	result := make([]Container, 0, len(raw))
	for _, c := range raw {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		ip := ""
		if c.NetworkSettings != nil {
			// First non-empty address in network name order
			netNames := make([]string, 0, len(c.NetworkSettings.Networks))
			for n := range c.NetworkSettings.Networks {
				netNames = append(netNames, n)
			}
			sort.Strings(netNames)
			for _, n := range netNames {
				if ep := c.NetworkSettings.Networks[n]; ep != nil && ep.IPAddress != "" {
					ip = ep.IPAddress
					break
				}
			}
		}

		ports := make([]ContainerPort, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, ContainerPort{
				HostPort:      p.PublicPort,
				ContainerPort: p.PrivatePort,
				Protocol:      p.Type,
			})
		}

		result = append(result, Container{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			State:     strings.ToLower(c.State),
			Status:    c.Status,
			Health:    parseHealthFromStatus(c.State, c.Status),
			Created:   time.Unix(c.Created, 0).UTC(),
			StackName: StackName(c.Labels),
			Service:   c.Labels[LabelComposeService],
			IPAddress: ip,
			Ports:     ports,
			Labels:    c.Labels,
		})
	}

	// Sort by name for deterministic snapshots
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (s *SDKClient) ImageList(ctx context.Context) ([]Image, error) {
	imgs, err := s.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("image list: %w", err)
	}

	result := make([]Image, 0, len(imgs))
	for _, img := range imgs {
		tags := make([]string, 0, len(img.RepoTags))
		for _, t := range img.RepoTags {
			if t != "<none>:<none>" {
				tags = append(tags, t)
			}
		}

		result = append(result, Image{
			ID:       img.ID,
			RepoTags: tags,
			Size:     img.Size,
			Created:  time.Unix(img.Created, 0).UTC(),
			Dangling: len(tags) == 0,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (s *SDKClient) NetworkList(ctx context.Context) ([]Network, error) {
	networks, err := s.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("network list: %w", err)
	}

	result := make([]Network, 0, len(networks))
	for _, n := range networks {
		subnet, gateway := "", ""
		if len(n.IPAM.Config) > 0 {
			subnet = n.IPAM.Config[0].Subnet
			gateway = n.IPAM.Config[0].Gateway
		}
		result = append(result, Network{
			ID:         n.ID,
			Name:       n.Name,
			Driver:     n.Driver,
			Scope:      n.Scope,
			Internal:   n.Internal,
			Attachable: n.Attachable,
			Created:    n.Created.UTC(),
			StackName:  StackName(n.Labels),
			Subnet:     subnet,
			Gateway:    gateway,
			Labels:     n.Labels,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (s *SDKClient) VolumeList(ctx context.Context) ([]Volume, error) {
	volResp, err := s.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("volume list: %w", err)
	}

	result := make([]Volume, 0, len(volResp.Volumes))
	for _, v := range volResp.Volumes {
		if v == nil {
			continue
		}
		result = append(result, Volume{
			Name:       v.Name,
			Driver:     v.Driver,
			Mountpoint: v.Mountpoint,
			Scope:      v.Scope,
			Created:    parseTimestamp(v.CreatedAt),
			StackName:  StackName(v.Labels),
			Labels:     v.Labels,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (s *SDKClient) ConfigList(ctx context.Context) ([]Config, error) {
	configs, err := s.cli.ConfigList(ctx, swarm.ConfigListOptions{})
	if err != nil {
		// Not a swarm manager
		if cerrdefs.IsUnavailable(err) || cerrdefs.IsFailedPrecondition(err) {
			slog.Debug("config list unavailable", "err", err)
			return []Config{}, nil
		}
		return nil, fmt.Errorf("config list: %w", err)
	}

	result := make([]Config, 0, len(configs))
	for _, c := range configs {
		result = append(result, Config{
			ID:      c.ID,
			Name:    c.Spec.Name,
			Created: c.CreatedAt.UTC(),
			Updated: c.UpdatedAt.UTC(),
			Version: c.Version.Index,
			Labels:  c.Spec.Labels,
			Data:    string(c.Spec.Data),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (s *SDKClient) Events(ctx context.Context) (<-chan Event, <-chan error) {
	out := make(chan Event, 64)
	outErr := make(chan error, 1)

	opts := events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("type", string(events.NetworkEventType)),
			filters.Arg("type", string(events.ImageEventType)),
			filters.Arg("type", string(events.VolumeEventType)),
			filters.Arg("type", string(events.ConfigEventType)),
		),
	}

	msgCh, errCh := s.cli.Events(ctx, opts)

	go func() {
		defer close(out)
		defer close(outErr)

		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}

				// Container events that don't change the table rows are dropped
				if msg.Type == events.ContainerEventType {
					switch msg.Action {
					case events.ActionStart, events.ActionStop, events.ActionDie,
						events.ActionPause, events.ActionUnPause, events.ActionRename,
						events.ActionDestroy, events.ActionCreate:
					default:
						if !strings.HasPrefix(string(msg.Action), "health_status") {
							continue
						}
					}
				}

				evt := Event{
					Type:   string(msg.Type),
					Action: string(msg.Action),
					ID:     msg.Actor.ID,
					Stack:  StackName(msg.Actor.Attributes),
				}

				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}

			case err, ok := <-errCh:
				if !ok {
					return
				}
				select {
				case outErr <- err:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out, outErr
}

func (s *SDKClient) Close() error {
	return s.cli.Close()
}

// parseTimestamp parses the RFC 3339 timestamps the volume API returns.
// Unparseable values yield the zero time, which sorts first.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
