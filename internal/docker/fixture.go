package docker

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// fixtureFile is the schema of a daemon fixture. Sizes are human readable
// ("245.3MiB") and timestamps are RFC 3339.
type fixtureFile struct {
	Containers []fixtureContainer `yaml:"containers"`
	Images     []fixtureImage     `yaml:"images"`
	Networks   []fixtureNetwork   `yaml:"networks"`
	Volumes    []fixtureVolume    `yaml:"volumes"`
	Configs    []fixtureConfig    `yaml:"configs"`
}

type fixtureContainer struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Image   string            `yaml:"image"`
	State   string            `yaml:"state"`
	Health  string            `yaml:"health"`
	Created string            `yaml:"created"`
	Stack   string            `yaml:"stack"`
	Service string            `yaml:"service"`
	IP      string            `yaml:"ip"`
	Ports   []string          `yaml:"ports"` // "8080:80/tcp"
	Labels  map[string]string `yaml:"labels"`
}

type fixtureImage struct {
	ID      string   `yaml:"id"`
	Tags    []string `yaml:"tags"`
	Size    string   `yaml:"size"`
	Created string   `yaml:"created"`
}

type fixtureNetwork struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"`
	Internal bool   `yaml:"internal"`
	Stack    string `yaml:"stack"`
	Subnet   string `yaml:"subnet"`
	Gateway  string `yaml:"gateway"`
	Created  string `yaml:"created"`
}

type fixtureVolume struct {
	Name    string `yaml:"name"`
	Driver  string `yaml:"driver"`
	Stack   string `yaml:"stack"`
	Created string `yaml:"created"`
}

type fixtureConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Data    string            `yaml:"data"`
	Created string            `yaml:"created"`
	Labels  map[string]string `yaml:"labels"`
}

// LoadFixture reads a YAML fixture into a StaticClient, for running the
// console against a canned daemon state.
func LoadFixture(path string) (*StaticClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixture(data)
}

// ParseFixture is LoadFixture for in-memory YAML.
func ParseFixture(data []byte) (*StaticClient, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}

	s := NewStaticClient()

	containers := make([]Container, 0, len(f.Containers))
	for _, c := range f.Containers {
		ports, err := parseFixturePorts(c.Ports)
		if err != nil {
			return nil, fmt.Errorf("fixture container %q: %w", c.Name, err)
		}
		labels := stackLabels(c.Labels, c.Stack)
		if c.Service != "" {
			labels[LabelComposeService] = c.Service
		}
		state := c.State
		if state == "" {
			state = "running"
		}
		containers = append(containers, Container{
			ID:        c.ID,
			Name:      c.Name,
			Image:     c.Image,
			State:     state,
			Status:    fixtureStatus(state, c.Health),
			Health:    c.Health,
			Created:   parseTimestamp(c.Created),
			StackName: c.Stack,
			Service:   c.Service,
			IPAddress: c.IP,
			Ports:     ports,
			Labels:    labels,
		})
	}
	s.SetContainers(containers)

	images := make([]Image, 0, len(f.Images))
	for _, img := range f.Images {
		var size int64
		if img.Size != "" {
			n, err := units.RAMInBytes(img.Size)
			if err != nil {
				return nil, fmt.Errorf("fixture image %q: %w", img.ID, err)
			}
			size = n
		}
		images = append(images, Image{
			ID:       img.ID,
			RepoTags: img.Tags,
			Size:     size,
			Created:  parseTimestamp(img.Created),
			Dangling: len(img.Tags) == 0,
		})
	}
	s.SetImages(images)

	networks := make([]Network, 0, len(f.Networks))
	for _, n := range f.Networks {
		driver := n.Driver
		if driver == "" {
			driver = "bridge"
		}
		networks = append(networks, Network{
			ID:        n.ID,
			Name:      n.Name,
			Driver:    driver,
			Scope:     "local",
			Internal:  n.Internal,
			Created:   parseTimestamp(n.Created),
			StackName: n.Stack,
			Subnet:    n.Subnet,
			Gateway:   n.Gateway,
			Labels:    stackLabels(nil, n.Stack),
		})
	}
	s.SetNetworks(networks)

	volumes := make([]Volume, 0, len(f.Volumes))
	for _, v := range f.Volumes {
		driver := v.Driver
		if driver == "" {
			driver = "local"
		}
		volumes = append(volumes, Volume{
			Name:       v.Name,
			Driver:     driver,
			Mountpoint: "/var/lib/docker/volumes/" + v.Name + "/_data",
			Scope:      "local",
			Created:    parseTimestamp(v.Created),
			StackName:  v.Stack,
			Labels:     stackLabels(nil, v.Stack),
		})
	}
	s.SetVolumes(volumes)

	configs := make([]Config, 0, len(f.Configs))
	for _, c := range f.Configs {
		created := parseTimestamp(c.Created)
		configs = append(configs, Config{
			ID:      c.ID,
			Name:    c.Name,
			Created: created,
			Updated: created,
			Version: 1,
			Labels:  c.Labels,
			Data:    c.Data,
		})
	}
	s.SetConfigs(configs)

	return s, nil
}

func stackLabels(labels map[string]string, stack string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	if stack != "" {
		out[LabelComposeProject] = stack
	}
	return out
}

// fixtureStatus renders the human readable status the daemon would report.
func fixtureStatus(state, health string) string {
	switch state {
	case "running":
		if health == "starting" {
			return "Up 1 minute (health: starting)"
		}
		if health != "" {
			return "Up 1 minute (" + health + ")"
		}
		return "Up 1 minute"
	case "exited":
		return "Exited (0) 1 minute ago"
	case "paused":
		return "Up 1 minute (Paused)"
	default:
		return strings.ToUpper(state[:1]) + state[1:]
	}
}

// parseFixturePorts accepts "host:container[/proto]" and "container[/proto]".
func parseFixturePorts(specs []string) ([]ContainerPort, error) {
	ports := make([]ContainerPort, 0, len(specs))
	for _, spec := range specs {
		proto := "tcp"
		if p, rest, ok := strings.Cut(spec, "/"); ok {
			spec, proto = p, rest
		}
		var p ContainerPort
		p.Protocol = proto
		host, ctr, mapped := strings.Cut(spec, ":")
		if !mapped {
			ctr, host = host, ""
		}
		n, err := parsePort(ctr)
		if err != nil {
			return nil, err
		}
		p.ContainerPort = n
		if host != "" {
			if p.HostPort, err = parsePort(host); err != nil {
				return nil, err
			}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}
