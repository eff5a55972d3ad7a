package docker

import "time"

// Label keys that tie a resource to a stack.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
	LabelStackNamespace = "com.docker.stack.namespace"
)

// StackName derives the owning stack of a resource from its labels. Compose
// projects take priority over swarm stack namespaces.
func StackName(labels map[string]string) string {
	if v := labels[LabelComposeProject]; v != "" {
		return v
	}
	return labels[LabelStackNamespace]
}

// Container is the container row shown in the containers table.
type Container struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	State     string            `json:"state"`  // running, exited, created, paused, dead, ...
	Status    string            `json:"status"` // human readable, e.g. "Up 2 hours (healthy)"
	Health    string            `json:"health"` // healthy, unhealthy, starting, or ""
	Created   time.Time         `json:"created"`
	StackName string            `json:"stackName"`
	Service   string            `json:"service"`
	IPAddress string            `json:"ipAddress"`
	Ports     []ContainerPort   `json:"ports"`
	Labels    map[string]string `json:"labels"`
}

// ContainerPort holds port mapping info for a container.
type ContainerPort struct {
	HostPort      uint16 `json:"hostPort"`
	ContainerPort uint16 `json:"containerPort"`
	Protocol      string `json:"protocol"` // "tcp", "udp"
}

// Image is the image row shown in the images table.
type Image struct {
	ID       string    `json:"id"`
	RepoTags []string  `json:"repoTags"`
	Size     int64     `json:"size"` // bytes
	Created  time.Time `json:"created"`
	Dangling bool      `json:"dangling"`
}

// Network is the network row shown in the networks table.
type Network struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Scope      string            `json:"scope"`
	Internal   bool              `json:"internal"`
	Attachable bool              `json:"attachable"`
	Created    time.Time         `json:"created"`
	StackName  string            `json:"stackName"`
	Subnet     string            `json:"subnet"`
	Gateway    string            `json:"gateway"`
	Labels     map[string]string `json:"labels"`
}

// Volume is the volume row shown in the volumes table.
type Volume struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Scope      string            `json:"scope"`
	Created    time.Time         `json:"created"`
	StackName  string            `json:"stackName"`
	Labels     map[string]string `json:"labels"`
}

// Config is the swarm config row shown in the configs table. Data holds the
// decoded config payload.
type Config struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Created time.Time         `json:"created"`
	Updated time.Time         `json:"updated"`
	Version uint64            `json:"version"`
	Labels  map[string]string `json:"labels"`
	Data    string            `json:"data"`
}

// Event represents a Docker resource lifecycle event.
type Event struct {
	Type   string // "container", "network", "image", "volume", "config"
	Action string // start, stop, die, create, destroy, connect, pull, tag, ...
	ID     string
	Stack  string // from the resource's stack labels, when present
}
